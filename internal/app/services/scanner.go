// Package services holds the application services that sit between the
// transports and the scanning domain.
package services

import (
	"context"
	"io"
	"sync"
	"time"

	"proscan-server-go/internal/domain/capture"
	"proscan-server-go/internal/domain/eventbus"
	"proscan-server-go/internal/domain/report"
	"proscan-server-go/internal/domain/scan"
	"proscan-server-go/internal/domain/stats"
	"proscan-server-go/internal/platform/config"
	"proscan-server-go/internal/platform/errors"
	"proscan-server-go/internal/platform/logging"
	"proscan-server-go/internal/platform/observability"
	"proscan-server-go/internal/platform/storage"
)

// Broadcast topics pushed to live clients.
const (
	BroadcastScan       = "scan"
	BroadcastFrame      = "frame"
	BroadcastThroughput = "throughput"
	BroadcastError      = "error"
	BroadcastStatus     = "status"
)

// ErrNoScans is returned when an export needs at least one scan.
var ErrNoScans = errors.New(errors.KindDomain, "scanner.export", "no scans recorded")

// Broadcaster pushes live updates to connected clients.
type Broadcaster interface {
	Broadcast(topic string, payload any)
}

// HistoryStore is the persisted scan history.
type HistoryStore interface {
	ScanStore
	List(ctx context.Context, f storage.ScanFilter) ([]storage.ScanRecord, int64, error)
	CountByGrade(ctx context.Context) (map[string]int64, error)
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)
}

// FrameSummary is the live frame notification without pixel data.
type FrameSummary struct {
	Seq        uint64              `json:"seq"`
	Timestamp  time.Time           `json:"timestamp"`
	Width      int                 `json:"width"`
	Height     int                 `json:"height"`
	Detections []scan.DetectedCode `json:"detections"`
	NewEvents  int                 `json:"new_events"`
}

// ScannerStatus is the combined view served by the status endpoint.
type ScannerStatus struct {
	Processor   scan.Status      `json:"processor"`
	Dispatcher  eventbus.Stats   `json:"dispatcher"`
	Persistence PersistenceStats `json:"persistence"`
	Source      string           `json:"source"`
}

// ScannerConfig wires a ScannerService. History, Publisher and Broadcaster
// are optional; Open defaults to the configured capture source.
type ScannerConfig struct {
	Config      *config.Config
	Logger      *logging.Logger
	Open        scan.OpenFunc
	Decoder     scan.Decoder
	History     HistoryStore
	Publisher   EventPublisher
	Broadcaster Broadcaster
	Clock       func() time.Time
}

// ScannerService owns the processor and everything that consumes its
// notifications: statistics, the recent table, persistence and live
// broadcast.
type ScannerService struct {
	logger      *logging.Logger
	processor   *scan.Processor
	dispatcher  *eventbus.Dispatcher
	inspector   *swappableInspector
	statistics  *stats.Statistics
	recent      *stats.Recent
	persistence *PersistenceService
	history     HistoryStore
	broadcaster Broadcaster

	mu  sync.RWMutex
	cfg config.Config
}

func NewScannerService(sc ScannerConfig) (*ScannerService, error) {
	if sc.Config == nil {
		return nil, errors.New(errors.KindBootstrap, "scanner.new", "config is required")
	}
	if sc.Logger == nil {
		sc.Logger = logging.Discard()
	}

	cfg := *sc.Config
	procCfg, err := scan.NewProcessingConfig(cfg.Processing.TargetFPS,
		time.Duration(cfg.Processing.SuppressionWindowSeconds)*time.Second)
	if err != nil {
		return nil, err
	}

	s := &ScannerService{
		logger:      sc.Logger,
		dispatcher:  eventbus.NewDispatcher(eventbus.DefaultQueueSize, sc.Logger),
		inspector:   newSwappableInspector(ThresholdsFromConfig(cfg.Quality)),
		statistics:  stats.NewStatistics(),
		recent:      stats.NewRecent(stats.DefaultRecentLimit),
		history:     sc.History,
		broadcaster: sc.Broadcaster,
		cfg:         cfg,
	}

	var store ScanStore
	if sc.History != nil {
		store = sc.History
	}
	s.persistence = NewPersistenceService(PersistenceConfig{
		Output:    cfg.Output,
		Store:     store,
		Publisher: sc.Publisher,
		Logger:    sc.Logger,
	})

	open := sc.Open
	if open == nil {
		open = capture.Opener(s.CaptureConfig)
	}
	s.processor, err = scan.NewProcessor(scan.Options{
		Open:        open,
		Decoder:     sc.Decoder,
		Inspector:   s.inspector,
		Sink:        s.dispatcher,
		Logger:      sc.Logger,
		Config:      procCfg,
		StopTimeout: cfg.Processing.StopTimeout,
		Annotate:    cfg.Processing.Annotate,
		Clock:       sc.Clock,
	})
	if err != nil {
		return nil, err
	}

	if err := s.subscribe(); err != nil {
		return nil, err
	}
	s.dispatcher.Start()
	return s, nil
}

func (s *ScannerService) subscribe() error {
	subs := map[string]any{
		eventbus.TopicScanEvent:  s.onScanEvent,
		eventbus.TopicFrame:      s.onFrame,
		eventbus.TopicThroughput: s.onThroughput,
		eventbus.TopicError:      s.onError,
	}
	for topic, fn := range subs {
		if err := s.dispatcher.Subscribe(topic, fn); err != nil {
			return errors.Wrap(errors.KindBootstrap, "scanner.subscribe", topic, err)
		}
	}
	return nil
}

func (s *ScannerService) onScanEvent(ev scan.ScanEvent) {
	s.statistics.Add(ev)
	s.recent.Add(ev)
	observability.IncCounter("scan.events", 1, map[string]string{"grade": string(ev.Code.Grade)})

	s.logger.InfoTag(logging.TagScan, "%s %q grade=%s defect=%s score=%.1f",
		ev.Code.Symbology, ev.Code.Payload, ev.Code.Grade, ev.Code.Defect, ev.Code.Score)

	if err := s.persistence.Enqueue(ev); err != nil {
		s.logger.WarnTag(logging.TagStorage, "dropping persistence for %s: %v", ev.ID, err)
	}
	s.broadcast(BroadcastScan, stats.RowFromEvent(ev))
}

func (s *ScannerService) onFrame(r scan.FrameResult) {
	sum := FrameSummary{
		Seq:        r.Seq,
		Timestamp:  r.Timestamp,
		Detections: r.Detections,
		NewEvents:  len(r.Events),
	}
	if r.Frame != nil {
		sum.Width, sum.Height = r.Frame.Width, r.Frame.Height
	}
	s.broadcast(BroadcastFrame, sum)
}

func (s *ScannerService) onThroughput(fps float64) {
	observability.RecordMetric(context.Background(), "scan.throughput", fps, nil)
	s.broadcast(BroadcastThroughput, map[string]float64{"fps": fps})
}

func (s *ScannerService) onError(msg string) {
	s.broadcast(BroadcastError, map[string]string{"message": msg})
}

func (s *ScannerService) broadcast(topic string, payload any) {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(topic, payload)
	}
}

// Start begins scanning with the configured source.
func (s *ScannerService) Start(ctx context.Context) error {
	if err := s.processor.Start(ctx); err != nil {
		return err
	}
	s.logger.InfoTag(logging.TagScan, "scanner started (%s)", s.sourceName())
	s.broadcast(BroadcastStatus, s.processor.Status())
	return nil
}

// Stop ends scanning. A loop that had to be abandoned is not an error.
func (s *ScannerService) Stop() error {
	if err := s.processor.Stop(); err != nil {
		return err
	}
	s.logger.InfoTag(logging.TagScan, "scanner stopped")
	s.broadcast(BroadcastStatus, s.processor.Status())
	return nil
}

func (s *ScannerService) Running() bool {
	return s.processor.Running()
}

func (s *ScannerService) Status() ScannerStatus {
	return ScannerStatus{
		Processor:   s.processor.Status(),
		Dispatcher:  s.dispatcher.Stats(),
		Persistence: s.persistence.Stats(),
		Source:      s.sourceName(),
	}
}

func (s *ScannerService) sourceName() string {
	c := s.Config().Capture
	if c.Type == "http" {
		return "http:" + c.URL
	}
	return "directory:" + c.Path
}

// Config returns a copy of the active configuration.
func (s *ScannerService) Config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// ProcessingUpdate carries the runtime-adjustable knobs. Nil fields are left
// unchanged.
type ProcessingUpdate struct {
	TargetFPS                *int `json:"target_fps"`
	SuppressionWindowSeconds *int `json:"suppression_window_seconds"`
}

// UpdateProcessing validates and applies u atomically: either every field
// takes effect or none does.
func (s *ScannerService) UpdateProcessing(u ProcessingUpdate) (scan.ProcessingConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.processor.Config()
	if u.TargetFPS != nil {
		next.TargetFPS = *u.TargetFPS
	}
	if u.SuppressionWindowSeconds != nil {
		next.SuppressionWindow = time.Duration(*u.SuppressionWindowSeconds) * time.Second
	}
	if err := s.processor.SetConfig(next); err != nil {
		return s.processor.Config(), err
	}
	s.cfg.Processing.TargetFPS = next.TargetFPS
	s.cfg.Processing.SuppressionWindowSeconds = int(next.SuppressionWindow / time.Second)
	s.logger.InfoTag(logging.TagConfig, "processing updated: fps=%d window=%s", next.TargetFPS, next.SuppressionWindow)
	return next, nil
}

// ApplyConfig takes a reloaded configuration. Processing, quality, output
// and log level apply immediately; capture settings apply at the next Start.
// Server, storage and redis settings need a restart.
func (s *ScannerService) ApplyConfig(next *config.Config) error {
	procCfg, err := scan.NewProcessingConfig(next.Processing.TargetFPS,
		time.Duration(next.Processing.SuppressionWindowSeconds)*time.Second)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.processor.SetConfig(procCfg); err != nil {
		return err
	}
	s.inspector.Set(ThresholdsFromConfig(next.Quality))
	s.persistence.SetOutput(next.Output)
	s.logger.SetLevel(next.Log.Level)
	s.cfg = *next
	s.logger.InfoTag(logging.TagConfig, "configuration reloaded")
	return nil
}

// CaptureConfig is read by the source opener at Start.
func (s *ScannerService) CaptureConfig() config.CaptureConfig {
	return s.Config().Capture
}

func (s *ScannerService) Stats() stats.Snapshot {
	return s.statistics.Snapshot()
}

func (s *ScannerService) ResetStats() {
	s.statistics.Reset()
}

// Recent returns up to limit rows, oldest first; limit <= 0 means all.
func (s *ScannerService) Recent(limit int) []stats.Row {
	return s.recent.Rows(limit)
}

// ClearScans empties the recent table and forgets suppression so codes still
// in view are reported again.
func (s *ScannerService) ClearScans() {
	s.recent.Clear()
	s.processor.ResetSuppression()
	s.logger.InfoTag(logging.TagScan, "recent scans cleared")
}

// ExportCSV writes the recent table.
func (s *ScannerService) ExportCSV(w io.Writer) error {
	return report.WriteCSV(w, s.recent.Rows(0))
}

// ExportLastReport writes the ISO report for the newest scan.
func (s *ScannerService) ExportLastReport() (string, error) {
	ev, ok := s.recent.Last()
	if !ok {
		return "", ErrNoScans
	}
	return s.persistence.ExportReport(ev)
}

// History queries the persisted scan history.
func (s *ScannerService) History(ctx context.Context, f storage.ScanFilter) ([]storage.ScanRecord, int64, error) {
	if s.history == nil {
		return nil, 0, errors.New(errors.KindStorage, "scanner.history", "history storage disabled")
	}
	return s.history.List(ctx, f)
}

// PruneHistory applies the retention setting.
func (s *ScannerService) PruneHistory(ctx context.Context, now time.Time) (int64, error) {
	days := s.Config().Storage.RetentionDays
	if s.history == nil || days <= 0 {
		return 0, nil
	}
	n, err := s.history.DeleteBefore(ctx, now.AddDate(0, 0, -days))
	if err == nil && n > 0 {
		s.logger.InfoTag(logging.TagStorage, "pruned %d history records older than %d days", n, days)
	}
	return n, err
}

// Close stops scanning and drains the notification and persistence queues.
func (s *ScannerService) Close(ctx context.Context) error {
	if err := s.processor.Stop(); err != nil && err != scan.ErrNotRunning {
		s.logger.WarnTag(logging.TagScan, "stop on close: %v", err)
	}
	s.dispatcher.Stop()
	return s.persistence.Stop(ctx)
}
