package scan

import (
	"context"

	"proscan-server-go/internal/domain/frame"
	"proscan-server-go/internal/domain/quality"
)

// FrameSource yields frames on demand. TryRead returns ok=false when no frame
// is ready, which the loop treats as an idle poll rather than an error.
//
// The loop owns the source for the whole run and is normally the one that
// releases it, after it has exited. A forced stop is the exception: Stop
// releases the source from its own goroutine while the abandoned loop may
// still be inside TryRead. Release must therefore be safe to call
// concurrently with TryRead and must make that read return.
type FrameSource interface {
	TryRead(ctx context.Context) (f *frame.Frame, ok bool, err error)
	Release() error
}

// OpenFunc acquires a frame source. It is called synchronously by Start.
type OpenFunc func(ctx context.Context) (FrameSource, error)

// Decoder finds symbols in a frame. An empty result is not an error.
type Decoder interface {
	Decode(ctx context.Context, f *frame.Frame) ([]Detection, error)
}

// Inspector grades and classifies a region.
type Inspector interface {
	Inspect(f *frame.Frame, box frame.BoundingBox) quality.Inspection
}

// Sink receives loop notifications. Implementations must not block the
// caller for long; delivery to consumers is expected to be asynchronous.
// Calls made for one iteration arrive in order: OnFrame, OnScanEvent per new
// event, then OnThroughput.
type Sink interface {
	OnFrame(FrameResult)
	OnScanEvent(ScanEvent)
	OnThroughput(fps float64)
	OnError(message string)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) OnFrame(FrameResult)   {}
func (NopSink) OnScanEvent(ScanEvent) {}
func (NopSink) OnThroughput(float64)  {}
func (NopSink) OnError(string)        {}
