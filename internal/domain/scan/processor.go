package scan

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"proscan-server-go/internal/domain/dedup"
	"proscan-server-go/internal/domain/frame"
	"proscan-server-go/internal/domain/quality"
	"proscan-server-go/internal/platform/errors"
	"proscan-server-go/internal/platform/logging"
	"proscan-server-go/internal/platform/observability"
)

const (
	// IdleBackoff is the pause after a poll that returned no frame.
	IdleBackoff = 50 * time.Millisecond
	// ErrorBackoff is the pause after a failed iteration.
	ErrorBackoff = 100 * time.Millisecond
	// DefaultStopTimeout bounds how long Stop waits for the loop.
	DefaultStopTimeout = 2 * time.Second
)

var (
	ErrAlreadyRunning = errors.New(errors.KindDomain, "processor.start", "already running")
	ErrNotRunning     = errors.New(errors.KindDomain, "processor.stop", "not running")
)

// State of the processor lifecycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Options configures a Processor. Open, Decoder and Sink are required.
type Options struct {
	Open        OpenFunc
	Decoder     Decoder
	Inspector   Inspector
	Sink        Sink
	Logger      *logging.Logger
	Config      ProcessingConfig
	StopTimeout time.Duration
	// Annotate draws detection overlays on the frame copy handed to the sink.
	Annotate bool
	// Clock stamps events and drives suppression; defaults to time.Now.
	Clock func() time.Time
}

// Status is a point-in-time snapshot for callers outside the loop.
type Status struct {
	State           State            `json:"state"`
	Throughput      float64          `json:"throughput"`
	FramesProcessed uint64           `json:"frames_processed"`
	EventsEmitted   uint64           `json:"events_emitted"`
	Errors          uint64           `json:"errors"`
	ForcedStops     uint64           `json:"forced_stops"`
	Config          ProcessingConfig `json:"config"`
	StartedAt       time.Time        `json:"started_at,omitempty"`
}

// Processor runs the capture, decode, grade and suppress loop on its own
// goroutine. The frame source and the suppression cache are touched only by
// that goroutine; configuration reaches it through an atomic pointer.
type Processor struct {
	open        OpenFunc
	decoder     Decoder
	inspector   Inspector
	sink        Sink
	logger      *logging.Logger
	annotate    bool
	clock       func() time.Time
	stopTimeout time.Duration

	cfg            atomic.Pointer[ProcessingConfig]
	resetRequested atomic.Bool
	state          atomic.Int32

	// mu serialises Start and Stop.
	mu        sync.Mutex
	run       *run
	startedAt atomic.Int64

	frames      atomic.Uint64
	events      atomic.Uint64
	errs        atomic.Uint64
	forcedStops atomic.Uint64
	fpsBits     atomic.Uint64
}

// run is the state of one Running session.
type run struct {
	ctx         context.Context
	cancel      context.CancelFunc
	stopCh      chan struct{}
	stopOnce    sync.Once
	done        chan struct{}
	abandoned   atomic.Bool
	source      FrameSource
	releaseOnce sync.Once
}

func (r *run) requestStop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *run) stopping() bool {
	select {
	case <-r.stopCh:
		return true
	default:
		return r.ctx.Err() != nil
	}
}

func (r *run) release(logger *logging.Logger) {
	r.releaseOnce.Do(func() {
		if err := r.source.Release(); err != nil {
			logger.WarnTag(logging.TagCapture, "release frame source: %v", err)
		}
	})
}

// sleep waits for d or until the run is stopped; it reports whether the full
// duration elapsed.
func (r *run) sleep(d time.Duration) bool {
	if d <= 0 {
		return !r.stopping()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.stopCh:
		return false
	case <-r.ctx.Done():
		return false
	}
}

func NewProcessor(opts Options) (*Processor, error) {
	if opts.Decoder == nil {
		return nil, errors.New(errors.KindDomain, "processor.new", "decoder is required")
	}
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	if opts.Inspector == nil {
		opts.Inspector = quality.NewInspector(quality.DefaultThresholds())
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.Config == (ProcessingConfig{}) {
		opts.Config = DefaultProcessingConfig()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	p := &Processor{
		open:        opts.Open,
		decoder:     opts.Decoder,
		inspector:   opts.Inspector,
		sink:        opts.Sink,
		logger:      opts.Logger,
		annotate:    opts.Annotate,
		clock:       opts.Clock,
		stopTimeout: opts.StopTimeout,
	}
	cfg := opts.Config
	p.cfg.Store(&cfg)
	return p, nil
}

// Start opens the configured source and launches the loop.
func (p *Processor) Start(ctx context.Context) error {
	return p.StartWith(ctx, p.open)
}

// StartWith is Start with an explicit source opener. An open failure leaves
// the processor Idle and holding nothing.
func (p *Processor) StartWith(ctx context.Context, open OpenFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if State(p.state.Load()) != StateIdle {
		return ErrAlreadyRunning
	}
	if open == nil {
		return errors.New(errors.KindCapture, "processor.start", "no frame source configured")
	}

	source, err := open(ctx)
	if err != nil {
		return errors.Wrap(errors.KindCapture, "processor.start", "open frame source", err)
	}
	if source == nil {
		return errors.New(errors.KindCapture, "processor.start", "frame source opener returned nil")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		ctx:    runCtx,
		cancel: cancel,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		source: source,
	}
	p.run = r
	p.startedAt.Store(p.clock().UnixNano())
	p.fpsBits.Store(0)
	p.state.Store(int32(StateRunning))

	go p.loop(r)

	cfg := p.Config()
	p.logger.InfoTag(logging.TagScan, "processor started (target %d fps, window %s)", cfg.TargetFPS, cfg.SuppressionWindow)
	return nil
}

// Stop asks the loop to finish its iteration and waits up to the stop
// timeout. Past the timeout the run is cancelled and abandoned: whatever it
// was doing is discarded and nothing more from it reaches the sink.
func (p *Processor) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.run
	if r == nil || State(p.state.Load()) != StateRunning {
		return ErrNotRunning
	}
	p.state.Store(int32(StateStopping))
	r.requestStop()

	timer := time.NewTimer(p.stopTimeout)
	defer timer.Stop()

	select {
	case <-r.done:
		p.logger.InfoTag(logging.TagScan, "processor stopped")
	case <-timer.C:
		r.abandoned.Store(true)
		r.cancel()
		p.forcedStops.Add(1)
		p.logger.WarnTag(logging.TagScan, "processor loop forcefully terminated after %s", p.stopTimeout)
		r.release(p.logger)
	}

	r.cancel()
	p.run = nil
	p.fpsBits.Store(0)
	p.state.Store(int32(StateIdle))
	return nil
}

// Running reports whether a session is active.
func (p *Processor) Running() bool {
	return State(p.state.Load()) == StateRunning
}

func (p *Processor) Config() ProcessingConfig {
	return *p.cfg.Load()
}

// SetTargetFPS takes effect from the next iteration.
func (p *Processor) SetTargetFPS(fps int) error {
	if err := validateFPS(fps); err != nil {
		return err
	}
	p.updateConfig(func(c *ProcessingConfig) { c.TargetFPS = fps })
	return nil
}

// SetSuppressionWindow takes effect from the next iteration.
func (p *Processor) SetSuppressionWindow(d time.Duration) error {
	if err := validateWindow(d); err != nil {
		return err
	}
	p.updateConfig(func(c *ProcessingConfig) { c.SuppressionWindow = d })
	return nil
}

// SetConfig replaces both values at once.
func (p *Processor) SetConfig(cfg ProcessingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.cfg.Store(&cfg)
	return nil
}

func (p *Processor) updateConfig(mutate func(*ProcessingConfig)) {
	for {
		old := p.cfg.Load()
		next := *old
		mutate(&next)
		if p.cfg.CompareAndSwap(old, &next) {
			return
		}
	}
}

// ResetSuppression forgets all suppressed payloads. The loop applies it at
// the start of its next iteration.
func (p *Processor) ResetSuppression() {
	p.resetRequested.Store(true)
}

func (p *Processor) Status() Status {
	var started time.Time
	if ns := p.startedAt.Load(); ns != 0 {
		started = time.Unix(0, ns)
	}

	return Status{
		State:           State(p.state.Load()),
		Throughput:      math.Float64frombits(p.fpsBits.Load()),
		FramesProcessed: p.frames.Load(),
		EventsEmitted:   p.events.Load(),
		Errors:          p.errs.Load(),
		ForcedStops:     p.forcedStops.Load(),
		Config:          p.Config(),
		StartedAt:       started,
	}
}

func (p *Processor) loop(r *run) {
	defer close(r.done)
	defer r.release(p.logger)

	cfg := p.Config()
	cache := dedup.NewCache(cfg.SuppressionWindow)
	window := NewThroughputWindow(DefaultThroughputSamples)

	for !r.stopping() {
		p.iterate(r, cache, window)
	}
}

// iterate runs one poll/decode/analyse/emit/throttle cycle.
func (p *Processor) iterate(r *run, cache *dedup.Cache, window *ThroughputWindow) {
	start := time.Now()

	cfg := p.Config()
	cache.SetWindow(cfg.SuppressionWindow)
	if p.resetRequested.Swap(false) {
		cache.Reset()
	}

	_, end := observability.StartSpan(r.ctx, "scan", "iteration")
	produced, err := p.processFrame(r, cache)
	if err != nil {
		end(err)
		if r.abandoned.Load() || r.ctx.Err() != nil {
			return
		}
		p.errs.Add(1)
		msg := err.Error()
		p.logger.ErrorTag(logging.TagScan, "frame iteration failed: %s", msg)
		p.sink.OnError(msg)
		r.sleep(ErrorBackoff)
		return
	}
	if !produced {
		r.sleep(IdleBackoff)
		return
	}
	end(nil)

	// an abandoned run must not overwrite the reset throughput
	if r.abandoned.Load() {
		return
	}
	elapsed := time.Since(start)
	window.Add(elapsed)
	fps := window.Rate()
	p.fpsBits.Store(math.Float64bits(fps))
	p.sink.OnThroughput(fps)
	observability.RecordMetric(r.ctx, "scan.throughput", fps, nil)

	r.sleep(cfg.FrameInterval() - time.Since(start))
}

// processFrame reports whether a frame was read. Panics from collaborators
// are converted to errors so a bad frame never ends the loop.
func (p *Processor) processFrame(r *run, cache *dedup.Cache) (produced bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.New(errors.KindAnalysis, "processor.iterate", fmt.Sprintf("panic: %v", rec))
		}
	}()

	f, ok, err := r.source.TryRead(r.ctx)
	if err != nil {
		return false, errors.Wrap(errors.KindCapture, "processor.read", "read frame", err)
	}
	if !ok || f == nil {
		return false, nil
	}
	if err := f.Validate(); err != nil {
		return false, errors.Wrap(errors.KindCapture, "processor.read", "malformed frame", err)
	}

	detections, err := p.decoder.Decode(r.ctx, f)
	if err != nil {
		return false, errors.Wrap(errors.KindAnalysis, "processor.decode", "decode frame", err)
	}

	now := p.clock()
	codes := make([]DetectedCode, 0, len(detections))
	var events []ScanEvent
	for _, d := range detections {
		in := p.inspector.Inspect(f, d.Box)
		code := DetectedCode{
			Payload:   d.Payload,
			Symbology: d.Symbology,
			Box:       d.Box,
			Grade:     in.Grade,
			Defect:    in.Defect,
			Metrics:   in.Metrics,
			Score:     in.Score,
		}
		codes = append(codes, code)
		if cache.Observe(d.Payload, now) == dedup.New {
			events = append(events, ScanEvent{ID: uuid.NewString(), Timestamp: now, Code: code})
		}
	}
	cache.Sweep(now)

	out := p.deliverable(f, codes)
	for i := range events {
		events[i].Frame = out
	}

	// an abandoned run commits nothing
	if r.abandoned.Load() {
		return true, nil
	}
	p.sink.OnFrame(FrameResult{
		Seq:        f.Seq,
		Timestamp:  now,
		Frame:      out,
		Detections: codes,
		Events:     events,
	})
	for _, ev := range events {
		p.sink.OnScanEvent(ev)
	}
	p.frames.Add(1)
	p.events.Add(uint64(len(events)))
	return true, nil
}

// deliverable is the copy of f handed downstream, with overlays when
// annotation is on.
func (p *Processor) deliverable(f *frame.Frame, codes []DetectedCode) *frame.Frame {
	if !p.annotate || len(codes) == 0 {
		return f.Clone()
	}
	overlays := make([]frame.Overlay, 0, len(codes))
	for _, c := range codes {
		color := frame.OverlayPass
		if !c.Defect.OK() {
			color = frame.OverlayFail
		}
		overlays = append(overlays, frame.Overlay{
			Box:   c.Box,
			Label: fmt.Sprintf("%s | %s | %s", c.Symbology, c.Grade, c.Defect),
			Color: color,
		})
	}
	return frame.Annotate(f, overlays)
}
