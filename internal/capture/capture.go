// Package capture defines the frame source, frame sink and preview
// interfaces the capture loop drives, together with OpenCV-backed
// implementations and scriptable mocks. The abstractions keep the loop
// and the mapper testable without camera hardware.
package capture

import (
	"errors"

	"github.com/linto-ai/fisheye-recorder/internal/frame"
)

// Sentinel errors classifying source and sink failures. The capture
// loop matches them with errors.Is to pick its failure policy.
var (
	// ErrUnavailable means the source could not be opened. Fatal at
	// start-up; never retried.
	ErrUnavailable = errors.New("capture source unavailable")

	// ErrRead is a transient frame read failure. The loop retries a
	// read once before giving up.
	ErrRead = errors.New("capture read failed")

	// ErrExhausted means the stream ended. Triggers a graceful stop.
	ErrExhausted = errors.New("capture source exhausted")

	// ErrSinkWrite means a frame could not be appended to the output.
	// Fatal; the loop stops immediately.
	ErrSinkWrite = errors.New("sink write failed")
)

// Source delivers raw frames, one per capture tick. Read blocks until a
// frame is available, bounded by the implementation's read timeout.
type Source interface {
	// Read returns the next frame. It returns an error wrapping
	// ErrExhausted when the stream has ended and ErrRead on a
	// transient failure.
	Read() (*frame.Frame, error)

	// Dimensions returns the fixed frame size the source produces.
	Dimensions() (width, height int)

	// Close releases the underlying device. Safe to call once.
	Close() error
}

// Sink appends finished frames to an output video file.
type Sink interface {
	// Write appends one frame. Errors wrap ErrSinkWrite.
	Write(*frame.Frame) error

	// Close flushes and finalises the output file.
	Close() error
}

// Preview presents frames during capture and reports user stop
// requests. The handle is owned by the capture loop and released on
// every exit path.
type Preview interface {
	// Show presents one frame.
	Show(*frame.Frame) error

	// StopRequested polls for the user stop key.
	StopRequested() bool

	// Close destroys the preview window.
	Close() error
}
