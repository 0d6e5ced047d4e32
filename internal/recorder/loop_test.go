package recorder

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linto-ai/fisheye-recorder/internal/capture"
	"github.com/linto-ai/fisheye-recorder/internal/frame"
	"github.com/linto-ai/fisheye-recorder/internal/timeutil"
)

func testConfig() Config {
	return Config{
		Source:     "0",
		OutputPath: "out.avi",
		Framerate:  10,
		Profile:    ProfileColor,
	}
}

func testFrame(t *testing.T, fill uint8) *frame.Frame {
	t.Helper()
	f, err := frame.New(8, 4, frame.ChannelsColor)
	require.NoError(t, err)
	for i := range f.Pix {
		f.Pix[i] = fill
	}
	return f
}

// slowConverter advances the mock clock to model per-frame processing
// cost, and passes frames through unchanged.
type slowConverter struct {
	clock *timeutil.MockClock
	cost  time.Duration
	calls int
}

func (c *slowConverter) Convert(f *frame.Frame) (*frame.Frame, error) {
	c.calls++
	c.clock.Advance(c.cost)
	return f, nil
}

// recordingStats captures the loop's per-frame samples.
type recordingStats struct {
	seqs   []int
	sleeps []time.Duration
}

func (r *recordingStats) RecordFrame(seq int, _ time.Time, _, _, sleep time.Duration) error {
	r.seqs = append(r.seqs, seq)
	r.sleeps = append(r.sleeps, sleep)
	return nil
}

func TestNewLoopValidation(t *testing.T) {
	t.Parallel()

	src := capture.NewMockSource(8, 4)
	sink := &capture.MockSink{}

	t.Run("rejects invalid config", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Framerate = 0
		_, err := NewLoop(cfg, Deps{Source: src, Sink: sink})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfigInvalid))
	})

	t.Run("requires source and sink", func(t *testing.T) {
		t.Parallel()
		_, err := NewLoop(testConfig(), Deps{Sink: sink})
		assert.Error(t, err)
		_, err = NewLoop(testConfig(), Deps{Source: src})
		assert.Error(t, err)
	})
}

func TestRunWritesAllFramesUntilExhausted(t *testing.T) {
	t.Parallel()

	src := capture.NewMockSource(8, 4)
	for i := 0; i < 5; i++ {
		src.QueueFrame(testFrame(t, uint8(i)))
	}
	sink := &capture.MockSink{}
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	loop, err := NewLoop(testConfig(), Deps{Source: src, Sink: sink, Clock: clock})
	require.NoError(t, err)
	assert.Equal(t, Idle, loop.State())

	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, Stopped, loop.State())
	assert.Equal(t, 5, loop.Frames())
	assert.Equal(t, 5, sink.WrittenCount())
	assert.Equal(t, 1, src.CloseCalls, "source must be released exactly once")
	assert.Equal(t, 1, sink.CloseCalls, "sink must be released exactly once")
}

func TestRunWithoutConvertWritesFramesUnmodified(t *testing.T) {
	t.Parallel()

	original := testFrame(t, 42)
	src := capture.NewMockSource(8, 4)
	src.QueueFrame(original)
	sink := &capture.MockSink{}
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	loop, err := NewLoop(testConfig(), Deps{Source: src, Sink: sink, Clock: clock})
	require.NoError(t, err)
	require.NoError(t, loop.Run(context.Background()))

	require.Equal(t, 1, sink.WrittenCount())
	if diff := cmp.Diff(original.Pix, sink.Written[0].Pix); diff != "" {
		t.Errorf("frame modified despite conversion being disabled (-want +got):\n%s", diff)
	}
}

func TestRunConvertsWhenEnabled(t *testing.T) {
	t.Parallel()

	src := capture.NewMockSource(8, 4)
	src.QueueFrame(testFrame(t, 1))
	src.QueueFrame(testFrame(t, 2))
	sink := &capture.MockSink{}
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	conv := &slowConverter{clock: clock}

	cfg := testConfig()
	cfg.Convert = true
	loop, err := NewLoop(cfg, Deps{Source: src, Sink: sink, Clock: clock, Conv: conv})
	require.NoError(t, err)
	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, 2, conv.calls)
	assert.Equal(t, 2, sink.WrittenCount())
}

func TestRunPacesToFrameInterval(t *testing.T) {
	t.Parallel()

	t.Run("fast processing sleeps out the remainder", func(t *testing.T) {
		t.Parallel()
		src := capture.NewMockSource(8, 4)
		for i := 0; i < 4; i++ {
			src.QueueFrame(testFrame(t, 0))
		}
		sink := &capture.MockSink{}
		clock := timeutil.NewMockClock(time.Unix(0, 0))
		conv := &slowConverter{clock: clock, cost: 30 * time.Millisecond}

		cfg := testConfig() // framerate 10 => 100ms interval
		loop, err := NewLoop(cfg, Deps{Source: src, Sink: sink, Clock: clock, Conv: conv})
		require.NoError(t, err)
		require.NoError(t, loop.Run(context.Background()))

		sleeps := clock.Sleeps()
		require.Len(t, sleeps, 4)
		for _, s := range sleeps {
			assert.Equal(t, 70*time.Millisecond, s)
		}
	})

	t.Run("slow processing proceeds immediately", func(t *testing.T) {
		t.Parallel()
		src := capture.NewMockSource(8, 4)
		for i := 0; i < 3; i++ {
			src.QueueFrame(testFrame(t, 0))
		}
		sink := &capture.MockSink{}
		clock := timeutil.NewMockClock(time.Unix(0, 0))
		conv := &slowConverter{clock: clock, cost: 150 * time.Millisecond}

		loop, err := NewLoop(testConfig(), Deps{Source: src, Sink: sink, Clock: clock, Conv: conv})
		require.NoError(t, err)
		require.NoError(t, loop.Run(context.Background()))

		assert.Empty(t, clock.Sleeps(), "an overrunning tick must not add artificial delay")
		assert.Equal(t, 3, sink.WrittenCount(), "no frames may be dropped")
	})
}

func TestRunRetriesTransientReadOnce(t *testing.T) {
	t.Parallel()

	src := capture.NewMockSource(8, 4)
	src.QueueError(fmt.Errorf("%w: dropped frame", capture.ErrRead))
	src.QueueFrame(testFrame(t, 1))
	sink := &capture.MockSink{}
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	loop, err := NewLoop(testConfig(), Deps{Source: src, Sink: sink, Clock: clock})
	require.NoError(t, err)
	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, 1, sink.WrittenCount(), "frame after a single transient failure must be captured")
}

func TestRunStopsAfterRepeatedReadFailures(t *testing.T) {
	t.Parallel()

	src := capture.NewMockSource(8, 4)
	src.QueueFrame(testFrame(t, 1))
	src.QueueError(fmt.Errorf("%w: dropped frame", capture.ErrRead))
	src.QueueError(fmt.Errorf("%w: dropped frame", capture.ErrRead))
	src.QueueFrame(testFrame(t, 2)) // never reached
	sink := &capture.MockSink{}
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	loop, err := NewLoop(testConfig(), Deps{Source: src, Sink: sink, Clock: clock})
	require.NoError(t, err)

	// Two consecutive failures stop the run gracefully.
	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, 1, sink.WrittenCount())
	assert.Equal(t, Stopped, loop.State())
	assert.Equal(t, 1, src.CloseCalls)
	assert.Equal(t, 1, sink.CloseCalls)
}

func TestRunStopsImmediatelyOnSinkWriteFailure(t *testing.T) {
	t.Parallel()

	src := capture.NewMockSource(8, 4)
	src.QueueFrame(testFrame(t, 1))
	src.QueueFrame(testFrame(t, 2))
	sink := &capture.MockSink{
		WriteError: fmt.Errorf("%w: disk full", capture.ErrSinkWrite),
	}
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	loop, err := NewLoop(testConfig(), Deps{Source: src, Sink: sink, Clock: clock})
	require.NoError(t, err)

	err = loop.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, capture.ErrSinkWrite))
	assert.Equal(t, 0, sink.WrittenCount())
	assert.Equal(t, 1, src.CloseCalls, "source must be released on the error path")
	assert.Equal(t, 1, sink.CloseCalls, "sink must be released on the error path")
	assert.Equal(t, Stopped, loop.State())
}

func TestRunFailsOnMidRunResize(t *testing.T) {
	t.Parallel()

	src := capture.NewMockSource(8, 4)
	src.QueueFrame(testFrame(t, 1))
	bigger, err := frame.New(16, 8, frame.ChannelsColor)
	require.NoError(t, err)
	src.QueueFrame(bigger)
	sink := &capture.MockSink{}
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	loop, err := NewLoop(testConfig(), Deps{Source: src, Sink: sink, Clock: clock})
	require.NoError(t, err)

	err = loop.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigInvalid))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	src := capture.NewMockSource(8, 4)
	src.QueueFrame(testFrame(t, 1))
	sink := &capture.MockSink{}
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	loop, err := NewLoop(testConfig(), Deps{Source: src, Sink: sink, Clock: clock})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, loop.Run(ctx), "user stop is a normal termination")
	assert.Equal(t, 0, sink.WrittenCount(), "stop signal is observed before the first tick")
	assert.Equal(t, Stopped, loop.State())
	assert.Equal(t, 1, src.CloseCalls)
}

func TestRunStopsOnPreviewRequest(t *testing.T) {
	t.Parallel()

	src := capture.NewMockSource(8, 4)
	for i := 0; i < 10; i++ {
		src.QueueFrame(testFrame(t, uint8(i)))
	}
	sink := &capture.MockSink{}
	preview := &capture.MockPreview{StopAfter: 3}
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	cfg := testConfig()
	cfg.Preview = true
	loop, err := NewLoop(cfg, Deps{Source: src, Sink: sink, Preview: preview, Clock: clock})
	require.NoError(t, err)

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, 3, sink.WrittenCount())
	assert.Equal(t, 3, preview.ShowCalls)
	assert.Equal(t, 1, preview.CloseCalls, "preview must be released")
}

func TestRunGrayProfileConvertsFrames(t *testing.T) {
	t.Parallel()

	src := capture.NewMockSource(8, 4)
	src.QueueFrame(testFrame(t, 200))
	sink := &capture.MockSink{}
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	cfg := testConfig()
	cfg.Profile = ProfileGray
	loop, err := NewLoop(cfg, Deps{Source: src, Sink: sink, Clock: clock})
	require.NoError(t, err)
	require.NoError(t, loop.Run(context.Background()))

	require.Equal(t, 1, sink.WrittenCount())
	assert.Equal(t, frame.ChannelsGray, sink.Written[0].Channels)
}

func TestRunReportsFrameStats(t *testing.T) {
	t.Parallel()

	src := capture.NewMockSource(8, 4)
	src.QueueFrame(testFrame(t, 1))
	src.QueueFrame(testFrame(t, 2))
	sink := &capture.MockSink{}
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	stats := &recordingStats{}

	loop, err := NewLoop(testConfig(), Deps{Source: src, Sink: sink, Clock: clock, Stats: stats})
	require.NoError(t, err)
	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, []int{1, 2}, stats.seqs)
	require.Len(t, stats.sleeps, 2)
	for _, s := range stats.sleeps {
		assert.Equal(t, 100*time.Millisecond, s, "idle ticks sleep the full interval")
	}
}
