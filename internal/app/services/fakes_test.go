package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"proscan-server-go/internal/domain/frame"
	"proscan-server-go/internal/domain/scan"
	"proscan-server-go/internal/platform/storage"
)

// feedSource hands out frames pushed by the test.
type feedSource struct {
	frames chan *frame.Frame
}

func newFeedSource() *feedSource {
	return &feedSource{frames: make(chan *frame.Frame, 16)}
}

func (s *feedSource) TryRead(context.Context) (*frame.Frame, bool, error) {
	select {
	case f := <-s.frames:
		return f, true, nil
	default:
		return nil, false, nil
	}
}

func (s *feedSource) Release() error { return nil }

func (s *feedSource) open(context.Context) (scan.FrameSource, error) { return s, nil }

// fixedDecoder reports one code covering the whole frame.
type fixedDecoder struct {
	payload atomic.Value
}

func newFixedDecoder(payload string) *fixedDecoder {
	d := &fixedDecoder{}
	d.payload.Store(payload)
	return d
}

func (d *fixedDecoder) Decode(_ context.Context, f *frame.Frame) ([]scan.Detection, error) {
	return []scan.Detection{{
		Payload:   d.payload.Load().(string),
		Symbology: "QR_CODE",
		Box:       frame.BoundingBox{Width: f.Width, Height: f.Height},
	}}, nil
}

// stepEdge grades A / OK under the default thresholds.
func stepEdge() *frame.Frame {
	f := frame.New(40, 40, frame.Gray)
	for y := 0; y < 40; y++ {
		for x := 20; x < 40; x++ {
			f.Data[y*40+x] = 255
		}
	}
	return f
}

type broadcastRecorder struct {
	mu     sync.Mutex
	topics map[string]int
	last   map[string]any
}

func newBroadcastRecorder() *broadcastRecorder {
	return &broadcastRecorder{topics: map[string]int{}, last: map[string]any{}}
}

func (b *broadcastRecorder) Broadcast(topic string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics[topic]++
	b.last[topic] = payload
}

func (b *broadcastRecorder) count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.topics[topic]
}

// flakyStore fails the first n saves.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	saved    []*storage.ScanRecord
	attempts int
}

func (s *flakyStore) Save(_ context.Context, rec *storage.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failures > 0 {
		s.failures--
		return errors.New("database is locked")
	}
	s.saved = append(s.saved, rec)
	return nil
}

func (s *flakyStore) snapshot() (attempts int, saved int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts, len(s.saved)
}

type countingPublisher struct {
	n atomic.Int32
}

func (p *countingPublisher) Publish(context.Context, scan.ScanEvent) (string, error) {
	p.n.Add(1)
	return "1-0", nil
}
