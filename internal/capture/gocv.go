package capture

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"github.com/linto-ai/fisheye-recorder/internal/frame"
)

// VideoSource reads frames from a camera index or stream URL through
// OpenCV. Reads are bounded by a timeout: the blocking OpenCV read runs
// on a dedicated goroutine and the caller waits on it for at most the
// configured duration.
type VideoSource struct {
	cap     *gocv.VideoCapture
	mat     gocv.Mat
	width   int
	height  int
	timeout time.Duration

	req      chan struct{}
	res      chan bool
	inflight bool
	closed   bool
}

// OpenVideoSource opens a capture device. src is either a numeric
// device index ("0") or a stream identifier/URL. A failure to open is
// reported as ErrUnavailable.
func OpenVideoSource(src string, timeout time.Duration) (*VideoSource, error) {
	var (
		cap *gocv.VideoCapture
		err error
	)
	if idx, convErr := strconv.Atoi(src); convErr == nil {
		cap, err = gocv.OpenVideoCapture(idx)
	} else {
		cap, err = gocv.OpenVideoCapture(src)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, src, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, src)
	}

	s := &VideoSource{
		cap:     cap,
		mat:     gocv.NewMat(),
		width:   int(cap.Get(gocv.VideoCaptureFrameWidth)),
		height:  int(cap.Get(gocv.VideoCaptureFrameHeight)),
		timeout: timeout,
		req:     make(chan struct{}),
		res:     make(chan bool, 1),
	}
	go s.reader()
	return s, nil
}

// ReportedFPS returns the frame rate the device advertises, or 0 when
// unknown.
func (s *VideoSource) ReportedFPS() float64 {
	return s.cap.Get(gocv.VideoCaptureFPS)
}

// Dimensions returns the source frame size.
func (s *VideoSource) Dimensions() (int, int) {
	return s.width, s.height
}

// reader services read requests so Read can enforce a timeout on the
// otherwise unbounded OpenCV call.
func (s *VideoSource) reader() {
	for range s.req {
		s.res <- s.cap.Read(&s.mat)
	}
}

// Read returns the next frame as an interleaved BGR buffer.
func (s *VideoSource) Read() (*frame.Frame, error) {
	if s.closed {
		return nil, fmt.Errorf("%w: source closed", ErrRead)
	}

	if !s.inflight {
		s.req <- struct{}{}
		s.inflight = true
	}

	var ok bool
	select {
	case ok = <-s.res:
		s.inflight = false
	case <-time.After(s.timeout):
		return nil, fmt.Errorf("%w: no frame within %v", ErrRead, s.timeout)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %dx%d stream ended", ErrExhausted, s.width, s.height)
	}
	if s.mat.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrRead)
	}

	pix := s.mat.ToBytes()
	f, err := frame.FromBytes(s.mat.Cols(), s.mat.Rows(), s.mat.Channels(), pix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return f, nil
}

// Close releases the device.
func (s *VideoSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.req)
	if s.inflight {
		<-s.res
		s.inflight = false
	}
	s.mat.Close()
	return s.cap.Close()
}

// VideoSink appends frames to a video file through OpenCV. The codec is
// implied by the target extension: XVID for .avi, MJPG otherwise.
type VideoSink struct {
	writer   *gocv.VideoWriter
	width    int
	height   int
	channels int
}

// OpenVideoSink creates the output video file.
func OpenVideoSink(path string, fps float64, width, height, channels int) (*VideoSink, error) {
	codec := "XVID"
	if !strings.EqualFold(filepath.Ext(path), ".avi") {
		codec = "MJPG"
	}
	writer, err := gocv.VideoWriterFile(path, codec, fps, width, height, channels == frame.ChannelsColor)
	if err != nil {
		return nil, fmt.Errorf("failed to open output video %s: %w", path, err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, fmt.Errorf("failed to open output video %s (codec %s)", path, codec)
	}
	return &VideoSink{writer: writer, width: width, height: height, channels: channels}, nil
}

// Write appends one frame to the output file.
func (s *VideoSink) Write(f *frame.Frame) error {
	if f.Width != s.width || f.Height != s.height || f.Channels != s.channels {
		return fmt.Errorf("%w: frame is %dx%dx%d, sink expects %dx%dx%d",
			ErrSinkWrite, f.Width, f.Height, f.Channels, s.width, s.height, s.channels)
	}
	mat, err := matFromFrame(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkWrite, err)
	}
	defer mat.Close()
	if err := s.writer.Write(mat); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkWrite, err)
	}
	return nil
}

// Close finalises the output file.
func (s *VideoSink) Close() error {
	return s.writer.Close()
}

// WindowPreview shows frames in an OpenCV window. Pressing q in the
// window requests a stop.
type WindowPreview struct {
	window *gocv.Window
	stop   bool
}

// NewWindowPreview opens the preview window.
func NewWindowPreview(title string) *WindowPreview {
	return &WindowPreview{window: gocv.NewWindow(title)}
}

// Show presents one frame and polls the keyboard.
func (p *WindowPreview) Show(f *frame.Frame) error {
	mat, err := matFromFrame(f)
	if err != nil {
		return err
	}
	defer mat.Close()
	p.window.IMShow(mat)
	if key := p.window.WaitKey(1); key == 'q' {
		p.stop = true
	}
	return nil
}

// StopRequested reports whether q was pressed.
func (p *WindowPreview) StopRequested() bool {
	return p.stop
}

// Close destroys the window.
func (p *WindowPreview) Close() error {
	return p.window.Close()
}

func matFromFrame(f *frame.Frame) (gocv.Mat, error) {
	matType := gocv.MatTypeCV8UC3
	if f.Channels == frame.ChannelsGray {
		matType = gocv.MatTypeCV8UC1
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, matType, f.Pix)
}
