package capture

import (
	"fmt"
	"sync"

	"github.com/linto-ai/fisheye-recorder/internal/frame"
)

// MockSource implements Source with scriptable behaviour for testing.
// Reads consume queued errors first, then queued frames; a drained
// source reports ErrExhausted.
type MockSource struct {
	mu sync.Mutex

	// Width, Height are reported by Dimensions.
	Width  int
	Height int

	frames []*frame.Frame
	// script holds the outcome of upcoming reads; a nil entry means
	// "deliver the next queued frame".
	script []error

	// ReadCalls records the number of Read calls.
	ReadCalls int

	// Closed indicates whether Close was called.
	Closed bool

	// CloseCalls records the number of Close calls.
	CloseCalls int
}

// NewMockSource creates a mock source reporting the given dimensions.
func NewMockSource(width, height int) *MockSource {
	return &MockSource{Width: width, Height: height}
}

// QueueFrame schedules a successful read delivering f.
func (m *MockSource) QueueFrame(f *frame.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, f)
	m.script = append(m.script, nil)
}

// QueueError schedules a failing read.
func (m *MockSource) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, err)
}

// Read pops the next scripted outcome.
func (m *MockSource) Read() (*frame.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReadCalls++

	if m.Closed {
		return nil, fmt.Errorf("%w: source closed", ErrRead)
	}
	if len(m.script) == 0 {
		return nil, fmt.Errorf("%w: no more scripted frames", ErrExhausted)
	}

	next := m.script[0]
	m.script = m.script[1:]
	if next != nil {
		return nil, next
	}

	f := m.frames[0]
	m.frames = m.frames[1:]
	return f, nil
}

// Dimensions returns the configured frame size.
func (m *MockSource) Dimensions() (int, int) {
	return m.Width, m.Height
}

// Close marks the source closed.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	m.CloseCalls++
	return nil
}

// MockSink implements Sink, capturing written frames.
type MockSink struct {
	mu sync.Mutex

	// Written holds every frame passed to Write.
	Written []*frame.Frame

	// WriteError, when set, is returned by the next Write call.
	WriteError error

	// Closed indicates whether Close was called.
	Closed bool

	// CloseCalls records the number of Close calls.
	CloseCalls int
}

// Write captures the frame or returns the scripted error.
func (m *MockSink) Write(f *frame.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return fmt.Errorf("%w: sink closed", ErrSinkWrite)
	}
	if m.WriteError != nil {
		err := m.WriteError
		m.WriteError = nil
		return err
	}
	m.Written = append(m.Written, f)
	return nil
}

// WrittenCount returns the number of frames written so far.
func (m *MockSink) WrittenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Written)
}

// Close marks the sink closed.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	m.CloseCalls++
	return nil
}

// MockPreview implements Preview, counting shows and optionally
// requesting a stop after a fixed number of frames.
type MockPreview struct {
	mu sync.Mutex

	// StopAfter, when positive, makes StopRequested return true once
	// that many frames have been shown.
	StopAfter int

	// ShowCalls records the number of Show calls.
	ShowCalls int

	// Closed indicates whether Close was called.
	Closed bool

	// CloseCalls records the number of Close calls.
	CloseCalls int
}

// Show counts the presented frame.
func (m *MockPreview) Show(*frame.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShowCalls++
	return nil
}

// StopRequested reports whether the scripted stop point was reached.
func (m *MockPreview) StopRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StopAfter > 0 && m.ShowCalls >= m.StopAfter
}

// Close marks the preview closed.
func (m *MockPreview) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	m.CloseCalls++
	return nil
}
