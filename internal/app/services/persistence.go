package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"

	"proscan-server-go/internal/domain/report"
	"proscan-server-go/internal/domain/scan"
	"proscan-server-go/internal/platform/config"
	"proscan-server-go/internal/platform/logging"
	"proscan-server-go/internal/platform/observability"
	"proscan-server-go/internal/platform/storage"
	"proscan-server-go/internal/util/work"
)

const (
	priorityNormal = 0
	// failing codes are persisted ahead of the backlog
	priorityDefect = 10
)

// ScanStore is the slice of the history repository persistence needs.
type ScanStore interface {
	Save(ctx context.Context, rec *storage.ScanRecord) error
}

// EventPublisher forwards events to an external consumer.
type EventPublisher interface {
	Publish(ctx context.Context, ev scan.ScanEvent) (string, error)
}

// persistJob walks an event through its stages. Retries skip the stages
// already done.
type persistJob struct {
	event     scan.ScanEvent
	output    config.OutputConfig
	snapshot  string
	report    string
	stored    bool
	published bool
}

// PersistenceStats reports queue activity.
type PersistenceStats struct {
	Queue     work.Stats `json:"queue"`
	Snapshots int64      `json:"snapshots"`
	Reports   int64      `json:"reports"`
	Records   int64      `json:"records"`
	Published int64      `json:"published"`
}

// PersistenceService stores snapshots, reports and history for scan events
// off the processing loop.
type PersistenceService struct {
	logger    *logging.Logger
	store     ScanStore
	publisher EventPublisher
	output    atomic.Pointer[config.OutputConfig]
	queue     *work.WorkQueue[*persistJob]
	// marshalReport encodes the report column of history rows.
	marshalReport func(any) ([]byte, error)

	snapshots atomic.Int64
	reports   atomic.Int64
	records   atomic.Int64
	published atomic.Int64
}

// PersistenceConfig wires a PersistenceService. Store and Publisher are
// optional.
type PersistenceConfig struct {
	Output    config.OutputConfig
	Store     ScanStore
	Publisher EventPublisher
	Logger    *logging.Logger
	Backoff   time.Duration
}

func NewPersistenceService(cfg PersistenceConfig) *PersistenceService {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	s := &PersistenceService{
		logger:        cfg.Logger,
		store:         cfg.Store,
		publisher:     cfg.Publisher,
		marshalReport: sonic.Marshal,
	}
	out := cfg.Output
	s.output.Store(&out)
	s.queue = work.NewWorkQueue(s.handle, work.Options[*persistJob]{
		Workers:     out.Workers,
		BaseBackoff: cfg.Backoff,
		OnFailure:   s.onFailure,
	})
	return s
}

// SetOutput applies to events enqueued afterwards.
func (s *PersistenceService) SetOutput(out config.OutputConfig) {
	s.output.Store(&out)
}

func (s *PersistenceService) Output() config.OutputConfig {
	return *s.output.Load()
}

// Enqueue schedules ev. It never blocks on I/O.
func (s *PersistenceService) Enqueue(ev scan.ScanEvent) error {
	job := &persistJob{event: ev, output: s.Output()}
	priority := priorityNormal
	if !ev.Code.Passed() {
		priority = priorityDefect
	}
	return s.queue.SubmitWithRetries(job, priority, job.output.Retries)
}

// ExportReport writes the ISO report for ev right away.
func (s *PersistenceService) ExportReport(ev scan.ScanEvent) (string, error) {
	path, err := report.NewISOWriter(s.Output().ReportDir).Write(ev)
	if err != nil {
		return "", err
	}
	s.reports.Add(1)
	s.logger.InfoTag(logging.TagReport, "report written: %s", path)
	return path, nil
}

func (s *PersistenceService) Stats() PersistenceStats {
	return PersistenceStats{
		Queue:     s.queue.Stats(),
		Snapshots: s.snapshots.Load(),
		Reports:   s.reports.Load(),
		Records:   s.records.Load(),
		Published: s.published.Load(),
	}
}

// Stop drains pending jobs until ctx ends.
func (s *PersistenceService) Stop(ctx context.Context) error {
	return s.queue.Stop(ctx)
}

func (s *PersistenceService) handle(ctx context.Context, job *persistJob) (err error) {
	ctx, finish := observability.StartSpan(ctx, "persistence", "job")
	defer func() { finish(err) }()

	ev := job.event
	out := job.output

	if out.Snapshots && job.snapshot == "" && ev.Frame != nil {
		path, err := report.NewSnapshotWriter(out.SaveDir).Write(out.OrderID, ev)
		if err != nil {
			return err
		}
		job.snapshot = path
		s.snapshots.Add(1)
	}

	if out.AutoExport && job.report == "" {
		path, err := report.NewISOWriter(out.ReportDir).Write(ev)
		if err != nil {
			return err
		}
		job.report = path
		s.reports.Add(1)
	}

	if s.store != nil && !job.stored {
		rec := storage.RecordFromEvent(ev, out.OrderID)
		rec.SnapshotPath = job.snapshot
		rec.ReportPath = job.report
		if data, err := s.marshalReport(report.BuildISOReport(ev)); err != nil {
			// the row is still worth keeping; the report file, if any, is intact
			observability.IncCounter("persistence.report_json.failed", 1, nil)
			s.logger.WarnTag(logging.TagStorage, "history row for %s (%s) saved without report: %v",
				ev.Code.Payload, ev.ID, err)
		} else {
			rec.Report = datatypes.JSON(data)
		}
		if err := s.store.Save(ctx, rec); err != nil {
			return err
		}
		job.stored = true
		s.records.Add(1)
	}

	if s.publisher != nil && !job.published {
		if _, err := s.publisher.Publish(ctx, ev); err != nil {
			return err
		}
		job.published = true
		s.published.Add(1)
	}
	return nil
}

func (s *PersistenceService) onFailure(item *work.WorkItem[*persistJob], err error) {
	observability.IncCounter("persistence.failed", 1, nil)
	s.logger.ErrorTag(logging.TagStorage, "persisting %s (%s) failed after %d attempts: %v",
		item.Data.event.Code.Payload, item.Data.event.ID, item.Retries, err)
}
