package recorder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linto-ai/fisheye-recorder/internal/capture"
	"github.com/linto-ai/fisheye-recorder/internal/frame"
	"github.com/linto-ai/fisheye-recorder/internal/timeutil"
)

// State is the capture loop's lifecycle state.
type State int32

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Converter re-projects a captured frame. *equirect.Mapper satisfies it.
type Converter interface {
	Convert(*frame.Frame) (*frame.Frame, error)
}

// FrameStats receives per-frame timing samples. Implementations must
// tolerate being called once per tick; recording failures are logged by
// the loop, never escalated.
type FrameStats interface {
	RecordFrame(seq int, capturedAt time.Time, convert, write, sleep time.Duration) error
}

// Deps are the collaborators the loop owns for the duration of a run.
// Source and Sink are required; the rest are optional. The loop releases
// Source, Sink and Preview exactly once, on every exit path.
type Deps struct {
	Source  capture.Source
	Sink    capture.Sink
	Preview capture.Preview
	Conv    Converter
	Clock   timeutil.Clock
	Stats   FrameStats
}

// Loop is the single-threaded capture loop. Each tick pulls one frame,
// optionally converts and previews it, writes it, then sleeps out the
// remainder of the frame interval.
type Loop struct {
	cfg  Config
	deps Deps

	state  atomic.Int32
	frames atomic.Int64

	releaseOnce sync.Once
}

// NewLoop validates cfg and builds a loop around the given deps.
func NewLoop(cfg Config, deps Deps) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("%w: frame source is required", ErrConfigInvalid)
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("%w: frame sink is required", ErrConfigInvalid)
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	return &Loop{cfg: cfg, deps: deps}, nil
}

// State returns the loop's lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Frames returns the number of frames written so far.
func (l *Loop) Frames() int {
	return int(l.frames.Load())
}

// release closes the owned handles. Guarded so every exit path releases
// exactly once.
func (l *Loop) release() {
	l.releaseOnce.Do(func() {
		if l.deps.Preview != nil {
			if err := l.deps.Preview.Close(); err != nil {
				log.Printf("failed to close preview: %v", err)
			}
		}
		if err := l.deps.Sink.Close(); err != nil {
			log.Printf("failed to close sink: %v", err)
		}
		if err := l.deps.Source.Close(); err != nil {
			log.Printf("failed to close source: %v", err)
		}
	})
}

// Run executes the capture loop until the context is cancelled, the
// user requests a stop, the source ends, or a fatal error occurs. It
// returns nil on every graceful stop path and an error on fatal ones.
func (l *Loop) Run(ctx context.Context) error {
	l.state.Store(int32(Running))
	defer func() {
		l.state.Store(int32(Stopping))
		l.release()
		l.state.Store(int32(Stopped))
	}()

	interval := l.cfg.Interval()
	clock := l.deps.Clock

	var (
		expectW, expectH int
		retried          bool
		seq              int
	)

	for {
		// The stop signal is observed only between ticks, so an
		// in-flight conversion always completes before shutdown.
		select {
		case <-ctx.Done():
			log.Printf("stop signal received after %d frames", seq)
			return nil
		default:
		}
		if l.deps.Preview != nil && l.deps.Preview.StopRequested() {
			log.Printf("preview stop requested after %d frames", seq)
			return nil
		}

		tickStart := clock.Now()

		f, err := l.deps.Source.Read()
		if err != nil {
			if errors.Is(err, capture.ErrExhausted) {
				log.Printf("source exhausted after %d frames", seq)
				return nil
			}
			if !retried {
				retried = true
				log.Printf("transient read failure, retrying once: %v", err)
				continue
			}
			log.Printf("stopping after repeated read failures: %v", err)
			return nil
		}
		retried = false

		// Frame dimensions are fixed for the run; a resize mid-stream
		// is a configuration fault, not a recoverable event.
		if expectW == 0 {
			expectW, expectH = f.Width, f.Height
		} else if f.Width != expectW || f.Height != expectH {
			return fmt.Errorf("%w: source resized mid-run from %dx%d to %dx%d",
				ErrConfigInvalid, expectW, expectH, f.Width, f.Height)
		}

		if l.cfg.Profile == ProfileGray {
			f = f.Gray()
		}

		var convertDur time.Duration
		if l.deps.Conv != nil {
			convertStart := clock.Now()
			f, err = l.deps.Conv.Convert(f)
			if err != nil {
				return fmt.Errorf("%w: conversion failed: %v", ErrConfigInvalid, err)
			}
			convertDur = clock.Since(convertStart)
		}

		if l.deps.Preview != nil {
			if err := l.deps.Preview.Show(f); err != nil {
				log.Printf("preview failed: %v", err)
			}
		}

		writeStart := clock.Now()
		if err := l.deps.Sink.Write(f); err != nil {
			return fmt.Errorf("aborting capture: %w", err)
		}
		writeDur := clock.Since(writeStart)

		seq++
		l.frames.Store(int64(seq))

		// Pace to the requested rate. When a tick overran the interval
		// the next frame is taken immediately; there is no frame
		// dropping and no catch-up burst.
		var sleep time.Duration
		if elapsed := clock.Since(tickStart); elapsed < interval {
			sleep = interval - elapsed
			clock.Sleep(sleep)
		}

		if l.deps.Stats != nil {
			if err := l.deps.Stats.RecordFrame(seq, tickStart, convertDur, writeDur, sleep); err != nil {
				log.Printf("failed to record frame stats: %v", err)
			}
		}
	}
}
