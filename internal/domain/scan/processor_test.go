package scan

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proscan-server-go/internal/domain/frame"
	"proscan-server-go/internal/domain/quality"
	"proscan-server-go/internal/platform/logging"
)

func newTestProcessor(t *testing.T, dec Decoder, sink Sink, mutate func(*Options)) *Processor {
	t.Helper()
	opts := Options{
		Decoder:   dec,
		Inspector: strongInspector{},
		Sink:      sink,
		Config:    ProcessingConfig{TargetFPS: 60, SuppressionWindow: 3 * time.Second},
	}
	if mutate != nil {
		mutate(&opts)
	}
	p, err := NewProcessor(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Stop() })
	return p
}

func TestProcessor_EndToEnd(t *testing.T) {
	src := newScriptedSource(testFrame(1), testFrame(2), testFrame(3), testFrame(4), testFrame(5))
	dec := &payloadDecoder{bySeq: map[uint64][]string{1: {"ABC123"}, 3: {"ABC123"}}}
	sink := &recordingSink{}
	p := newTestProcessor(t, dec, sink, nil)

	require.NoError(t, p.StartWith(context.Background(), openWith(src)))
	require.Eventually(t, func() bool { return sink.count("frame") == 5 }, 3*time.Second, 5*time.Millisecond)
	require.NoError(t, p.Stop())

	events := sink.events()
	require.Len(t, events, 1)
	assert.Equal(t, "ABC123", events[0].Code.Payload)
	assert.Equal(t, quality.GradeA, events[0].Code.Grade)
	assert.Equal(t, quality.DefectOK, events[0].Code.Defect)
	assert.NotEmpty(t, events[0].ID)
	assert.NotNil(t, events[0].Frame)

	assert.Equal(t, 5, sink.count("frame"))
	assert.GreaterOrEqual(t, sink.count("fps"), 1)
	assert.Equal(t, 0, sink.count("error"))
	assert.True(t, src.released.Load())

	st := p.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, uint64(5), st.FramesProcessed)
	assert.Equal(t, uint64(1), st.EventsEmitted)
}

func TestProcessor_EmissionOrderPerIteration(t *testing.T) {
	src := newScriptedSource(testFrame(1))
	dec := &payloadDecoder{bySeq: map[uint64][]string{1: {"A", "B"}}}
	sink := &recordingSink{}
	p := newTestProcessor(t, dec, sink, nil)

	require.NoError(t, p.StartWith(context.Background(), openWith(src)))
	require.Eventually(t, func() bool { return sink.count("fps") >= 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, p.Stop())

	calls := sink.snapshot()
	require.GreaterOrEqual(t, len(calls), 4)
	kinds := []string{calls[0].kind, calls[1].kind, calls[2].kind, calls[3].kind}
	assert.Equal(t, []string{"frame", "event", "event", "fps"}, kinds)
	assert.Len(t, calls[0].frame.Detections, 2)
	assert.Len(t, calls[0].frame.Events, 2)
	assert.Same(t, calls[0].frame.Frame, calls[1].event.Frame)
}

func TestProcessor_SuppressionTimeline(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var now atomic.Int64
	clock := func() time.Time { return base.Add(time.Duration(now.Load())) }

	src := newGatedSource()
	dec := &payloadDecoder{all: "X"}
	sink := &recordingSink{}
	p := newTestProcessor(t, dec, sink, func(o *Options) { o.Clock = clock })

	require.NoError(t, p.StartWith(context.Background(), openWith(src)))

	// X at t=0, 2 and 4 with a 3s window: reported at 0 and 4
	for i, sec := range []int{0, 2, 4} {
		now.Store(int64(time.Duration(sec) * time.Second))
		src.frames <- testFrame(uint64(i + 1))
		want := i + 1
		require.Eventually(t, func() bool { return sink.count("frame") == want }, 2*time.Second, 2*time.Millisecond)
	}
	require.NoError(t, p.Stop())

	events := sink.events()
	require.Len(t, events, 2)
	assert.Equal(t, base, events[0].Timestamp)
	assert.Equal(t, base.Add(4*time.Second), events[1].Timestamp)
}

func TestProcessor_ResetSuppression(t *testing.T) {
	src := newGatedSource()
	sink := &recordingSink{}
	p := newTestProcessor(t, &payloadDecoder{all: "X"}, sink, nil)
	require.NoError(t, p.StartWith(context.Background(), openWith(src)))

	src.frames <- testFrame(1)
	require.Eventually(t, func() bool { return sink.count("frame") == 1 }, 2*time.Second, 2*time.Millisecond)

	p.ResetSuppression()
	polls := src.polls.Load()
	require.Eventually(t, func() bool { return src.polls.Load() >= polls+2 }, 2*time.Second, 2*time.Millisecond)

	src.frames <- testFrame(2)
	require.Eventually(t, func() bool { return sink.count("frame") == 2 }, 2*time.Second, 2*time.Millisecond)
	require.NoError(t, p.Stop())

	assert.Len(t, sink.events(), 2)
}

func TestProcessor_WindowChangeAppliesNextIteration(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var now atomic.Int64
	clock := func() time.Time { return base.Add(time.Duration(now.Load())) }

	src := newGatedSource()
	sink := &recordingSink{}
	p := newTestProcessor(t, &payloadDecoder{all: "X"}, sink, func(o *Options) {
		o.Clock = clock
		o.Config = ProcessingConfig{TargetFPS: 60, SuppressionWindow: 10 * time.Second}
	})
	require.NoError(t, p.StartWith(context.Background(), openWith(src)))

	src.frames <- testFrame(1)
	require.Eventually(t, func() bool { return sink.count("frame") == 1 }, 2*time.Second, 2*time.Millisecond)

	require.NoError(t, p.SetSuppressionWindow(time.Second))
	polls := src.polls.Load()
	require.Eventually(t, func() bool { return src.polls.Load() >= polls+2 }, 2*time.Second, 2*time.Millisecond)

	now.Store(int64(2 * time.Second))
	src.frames <- testFrame(2)
	require.Eventually(t, func() bool { return sink.count("frame") == 2 }, 2*time.Second, 2*time.Millisecond)
	require.NoError(t, p.Stop())

	assert.Len(t, sink.events(), 2)
}

func TestProcessor_ErrorsAreReportedAndLoopContinues(t *testing.T) {
	src := newScriptedSource(testFrame(1), testFrame(2), testFrame(3), testFrame(4))
	dec := &payloadDecoder{
		bySeq: map[uint64][]string{4: {"LATE"}},
		err:   map[uint64]error{2: errors.New("corrupt symbol")},
		panic: map[uint64]bool{3: true},
	}
	sink := &recordingSink{}
	p := newTestProcessor(t, dec, sink, nil)

	require.NoError(t, p.StartWith(context.Background(), openWith(src)))
	require.Eventually(t, func() bool { return len(sink.events()) == 1 }, 3*time.Second, 5*time.Millisecond)
	require.NoError(t, p.Stop())

	var msgs []string
	for _, c := range sink.snapshot() {
		if c.kind == "error" {
			msgs = append(msgs, c.msg)
		}
	}
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "corrupt symbol")
	assert.Contains(t, msgs[1], "panic")
	assert.Equal(t, 2, sink.count("frame"))
	assert.Equal(t, uint64(2), p.Status().Errors)
}

func TestProcessor_StartTwiceAndStopIdle(t *testing.T) {
	p := newTestProcessor(t, &payloadDecoder{}, &recordingSink{}, nil)

	assert.ErrorIs(t, p.Stop(), ErrNotRunning)

	require.NoError(t, p.StartWith(context.Background(), openWith(newGatedSource())))
	assert.True(t, p.Running())
	assert.ErrorIs(t, p.StartWith(context.Background(), openWith(newGatedSource())), ErrAlreadyRunning)

	require.NoError(t, p.Stop())
	assert.False(t, p.Running())

	// a stopped processor can be started again
	require.NoError(t, p.StartWith(context.Background(), openWith(newGatedSource())))
	require.NoError(t, p.Stop())
}

func TestProcessor_OpenFailureLeavesIdle(t *testing.T) {
	p := newTestProcessor(t, &payloadDecoder{}, &recordingSink{}, nil)

	err := p.StartWith(context.Background(), func(context.Context) (FrameSource, error) {
		return nil, errors.New("camera 0 not found")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camera 0 not found")
	assert.Equal(t, StateIdle, p.Status().State)
	assert.ErrorIs(t, p.Stop(), ErrNotRunning)

	err = p.Start(context.Background())
	assert.Error(t, err, "no opener configured")
}

func TestProcessor_ForcedStop(t *testing.T) {
	logs := &syncBuffer{}
	src := newStuckSource()
	sink := &recordingSink{}
	p := newTestProcessor(t, &payloadDecoder{all: "X"}, sink, func(o *Options) {
		o.StopTimeout = 100 * time.Millisecond
		o.Logger = logging.NewWriter(logs, "info")
	})

	require.NoError(t, p.StartWith(context.Background(), openWith(src)))
	<-src.entered

	started := time.Now()
	require.NoError(t, p.Stop())
	assert.Less(t, time.Since(started), 600*time.Millisecond)

	assert.Equal(t, uint64(1), p.Status().ForcedStops)
	assert.Equal(t, 1, strings.Count(logs.String(), "forcefully terminated"))

	// the abandoned read completes but its frame is never delivered
	require.Eventually(t, src.returned.Load, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, sink.count("frame"))
	assert.Equal(t, 0, sink.count("fps"))
	assert.Empty(t, sink.events())

	// nor does its throughput leak into the idle status
	st := p.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Zero(t, st.Throughput)
}

func TestProcessor_ThroughputTracksLatency(t *testing.T) {
	frames := make([]*frame.Frame, 12)
	for i := range frames {
		frames[i] = testFrame(uint64(i + 1))
	}
	src := newScriptedSource(frames...)
	src.latency = 20 * time.Millisecond
	sink := &recordingSink{}
	p := newTestProcessor(t, &payloadDecoder{}, sink, nil)

	require.NoError(t, p.StartWith(context.Background(), openWith(src)))
	require.Eventually(t, func() bool { return sink.count("frame") == 12 }, 3*time.Second, 5*time.Millisecond)
	require.NoError(t, p.Stop())

	var last float64
	for _, c := range sink.snapshot() {
		if c.kind == "fps" {
			assert.GreaterOrEqual(t, c.fps, 0.0)
			last = c.fps
		}
	}
	assert.Greater(t, last, 5.0)
	assert.LessOrEqual(t, last, 50.0)
}

func TestProcessor_AnnotatesDeliveredCopy(t *testing.T) {
	src := newScriptedSource(testFrame(1))
	sink := &recordingSink{}
	p := newTestProcessor(t, &payloadDecoder{all: "X"}, sink, func(o *Options) { o.Annotate = true })

	require.NoError(t, p.StartWith(context.Background(), openWith(src)))
	require.Eventually(t, func() bool { return sink.count("frame") == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, p.Stop())

	delivered := sink.snapshot()[0].frame.Frame
	require.NotNil(t, delivered)
	assert.Equal(t, frame.RGB, delivered.Channels)
	p0 := (4*32 + 4) * 3
	assert.Equal(t, []byte{0, 255, 0}, delivered.Data[p0:p0+3])
	assert.Equal(t, byte(0), src.frames[0].Data[4*32+4], "source frame untouched")
}

func TestProcessor_ConfigUpdates(t *testing.T) {
	p := newTestProcessor(t, &payloadDecoder{}, &recordingSink{}, nil)

	assert.ErrorIs(t, p.SetTargetFPS(4), ErrInvalidConfig)
	assert.ErrorIs(t, p.SetTargetFPS(61), ErrInvalidConfig)
	require.NoError(t, p.SetTargetFPS(5))
	require.NoError(t, p.SetTargetFPS(60))

	assert.ErrorIs(t, p.SetSuppressionWindow(500*time.Millisecond), ErrInvalidConfig)
	assert.ErrorIs(t, p.SetSuppressionWindow(31*time.Second), ErrInvalidConfig)
	require.NoError(t, p.SetSuppressionWindow(30*time.Second))

	cfg := p.Config()
	assert.Equal(t, 60, cfg.TargetFPS)
	assert.Equal(t, 30*time.Second, cfg.SuppressionWindow)
	assert.Equal(t, time.Second/60, cfg.FrameInterval())
}

func TestProcessor_ConcurrentConfigUpdates(t *testing.T) {
	p := newTestProcessor(t, &payloadDecoder{}, &recordingSink{}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = p.SetTargetFPS(5 + i%56)
		}
	}()
	for i := 0; i < 200; i++ {
		_ = p.SetSuppressionWindow(time.Duration(1+i%30) * time.Second)
	}
	<-done

	assert.NoError(t, p.Config().Validate())
}

func TestNewProcessor_Validation(t *testing.T) {
	_, err := NewProcessor(Options{})
	assert.Error(t, err)

	_, err = NewProcessor(Options{Decoder: &payloadDecoder{}, Config: ProcessingConfig{TargetFPS: 100, SuppressionWindow: time.Second}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
