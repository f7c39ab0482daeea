package scan

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"proscan-server-go/internal/domain/frame"
	"proscan-server-go/internal/domain/quality"
)

var errReleased = errors.New("source released")

// scriptedSource yields a fixed list of frames; a nil entry is an empty
// poll. After the script it only reports "no frame".
type scriptedSource struct {
	mu       sync.Mutex
	frames   []*frame.Frame
	next     int
	latency  time.Duration
	released atomic.Bool
}

func newScriptedSource(frames ...*frame.Frame) *scriptedSource {
	return &scriptedSource{frames: frames}
}

func (s *scriptedSource) TryRead(context.Context) (*frame.Frame, bool, error) {
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.frames) {
		return nil, false, nil
	}
	f := s.frames[s.next]
	s.next++
	return f, f != nil, nil
}

func (s *scriptedSource) Release() error {
	s.released.Store(true)
	return nil
}

// gatedSource hands out frames pushed by the test.
type gatedSource struct {
	frames   chan *frame.Frame
	polls    atomic.Int64
	released atomic.Bool
}

func newGatedSource() *gatedSource {
	return &gatedSource{frames: make(chan *frame.Frame, 8)}
}

func (s *gatedSource) TryRead(context.Context) (*frame.Frame, bool, error) {
	s.polls.Add(1)
	select {
	case f := <-s.frames:
		return f, true, nil
	default:
		return nil, false, nil
	}
}

func (s *gatedSource) Release() error {
	s.released.Store(true)
	return nil
}

// stuckSource blocks reads until released, ignoring the context, and then
// returns one last frame.
type stuckSource struct {
	unblock  chan struct{}
	once     sync.Once
	entered  chan struct{}
	returned atomic.Bool
}

func newStuckSource() *stuckSource {
	return &stuckSource{unblock: make(chan struct{}), entered: make(chan struct{}, 1)}
}

func (s *stuckSource) TryRead(context.Context) (*frame.Frame, bool, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.unblock
	defer s.returned.Store(true)
	return testFrame(99), true, nil
}

func (s *stuckSource) Release() error {
	s.once.Do(func() { close(s.unblock) })
	return nil
}

func openWith(src FrameSource) OpenFunc {
	return func(context.Context) (FrameSource, error) { return src, nil }
}

func testFrame(seq uint64) *frame.Frame {
	f := frame.New(32, 32, frame.Gray)
	f.Seq = seq
	return f
}

// payloadDecoder returns payloads keyed by frame sequence number.
type payloadDecoder struct {
	bySeq map[uint64][]string
	all   string
	err   map[uint64]error
	panic map[uint64]bool
}

func (d *payloadDecoder) Decode(_ context.Context, f *frame.Frame) ([]Detection, error) {
	if d.panic[f.Seq] {
		panic("decoder exploded")
	}
	if err := d.err[f.Seq]; err != nil {
		return nil, err
	}
	payloads := d.bySeq[f.Seq]
	if d.all != "" {
		payloads = []string{d.all}
	}
	out := make([]Detection, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, Detection{
			Payload:   p,
			Symbology: "QR_CODE",
			Box:       frame.BoundingBox{X: 4, Y: 4, Width: 20, Height: 20},
		})
	}
	return out, nil
}

// strongInspector grades everything A/OK.
type strongInspector struct{}

func (strongInspector) Inspect(*frame.Frame, frame.BoundingBox) quality.Inspection {
	m := quality.Metrics{Sharpness: 900, Contrast: 80, Modulation: 0.2}
	return quality.Inspection{Metrics: m, Score: quality.Score(m), Grade: quality.GradeA, Defect: quality.DefectOK}
}

type sinkCall struct {
	kind  string
	frame FrameResult
	event ScanEvent
	fps   float64
	msg   string
}

// recordingSink keeps every call in order.
type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (s *recordingSink) add(c sinkCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

func (s *recordingSink) OnFrame(r FrameResult)   { s.add(sinkCall{kind: "frame", frame: r}) }
func (s *recordingSink) OnScanEvent(e ScanEvent) { s.add(sinkCall{kind: "event", event: e}) }
func (s *recordingSink) OnThroughput(f float64)  { s.add(sinkCall{kind: "fps", fps: f}) }
func (s *recordingSink) OnError(m string)        { s.add(sinkCall{kind: "error", msg: m}) }

func (s *recordingSink) snapshot() []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkCall(nil), s.calls...)
}

func (s *recordingSink) count(kind string) int {
	n := 0
	for _, c := range s.snapshot() {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func (s *recordingSink) events() []ScanEvent {
	var out []ScanEvent
	for _, c := range s.snapshot() {
		if c.kind == "event" {
			out = append(out, c.event)
		}
	}
	return out
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
