package storage

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"proscan-server-go/internal/domain/frame"
	"proscan-server-go/internal/domain/quality"
	"proscan-server-go/internal/domain/scan"
	"proscan-server-go/internal/platform/errors"
)

// ScanRecord is one persisted scan event.
type ScanRecord struct {
	ID           uint                                  `gorm:"primaryKey" json:"id"`
	EventID      string                                `gorm:"uniqueIndex;not null" json:"event_id"`
	ScannedAt    time.Time                             `gorm:"index;not null" json:"scanned_at"`
	Payload      string                                `gorm:"index;not null" json:"payload"`
	Symbology    string                                `gorm:"not null" json:"symbology"`
	Grade        string                                `gorm:"index;not null" json:"grade"`
	Defect       string                                `gorm:"not null" json:"defect"`
	Score        float64                               `json:"score"`
	Sharpness    float64                               `json:"sharpness"`
	Contrast     float64                               `json:"contrast"`
	Modulation   float64                               `json:"modulation"`
	Box          datatypes.JSONType[frame.BoundingBox] `json:"box"`
	SnapshotPath string                                `json:"snapshot_path,omitempty"`
	ReportPath   string                                `json:"report_path,omitempty"`
	OrderID      string                                `json:"order_id,omitempty"`
	Report       datatypes.JSON                        `json:"report,omitempty"`
	CreatedAt    time.Time                             `json:"created_at"`
}

func (ScanRecord) TableName() string {
	return "scan_records"
}

// RecordFromEvent maps an event onto a record; paths and report are filled
// in by the persistence jobs.
func RecordFromEvent(ev scan.ScanEvent, orderID string) *ScanRecord {
	c := ev.Code
	return &ScanRecord{
		EventID:    ev.ID,
		ScannedAt:  ev.Timestamp,
		Payload:    c.Payload,
		Symbology:  c.Symbology,
		Grade:      string(c.Grade),
		Defect:     string(c.Defect),
		Score:      c.Score,
		Sharpness:  c.Metrics.Sharpness,
		Contrast:   c.Metrics.Contrast,
		Modulation: c.Metrics.Modulation,
		Box:        datatypes.NewJSONType(c.Box),
		OrderID:    orderID,
	}
}

// Passed mirrors DetectedCode.Passed for stored rows.
func (r *ScanRecord) Passed() bool {
	return quality.Grade(r.Grade).Passing()
}

// ScanFilter narrows List. Zero fields are ignored.
type ScanFilter struct {
	Payload string
	Grade   string
	Defect  string
	Since   time.Time
	Until   time.Time
	Limit   int
	Offset  int
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// ScanRepository stores scan history.
type ScanRepository struct {
	db *gorm.DB
}

func NewScanRepository(db *gorm.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Save inserts rec. Saving an event id twice is a no-op.
func (r *ScanRepository) Save(ctx context.Context, rec *ScanRecord) error {
	var existing int64
	if err := r.db.WithContext(ctx).Model(&ScanRecord{}).Where("event_id = ?", rec.EventID).Count(&existing).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "scan.save", "failed to check scan record", err)
	}
	if existing > 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "scan.save", "failed to save scan record", err)
	}
	return nil
}

// FindByEventID returns nil, nil when no record matches.
func (r *ScanRepository) FindByEventID(ctx context.Context, eventID string) (*ScanRecord, error) {
	var rec ScanRecord
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&rec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(errors.KindStorage, "scan.find", "failed to find scan record", err)
	}
	return &rec, nil
}

// List returns matching records newest first, plus the total match count.
func (r *ScanRepository) List(ctx context.Context, f ScanFilter) ([]ScanRecord, int64, error) {
	q := r.db.WithContext(ctx).Model(&ScanRecord{})
	if f.Payload != "" {
		q = q.Where("payload = ?", f.Payload)
	}
	if f.Grade != "" {
		q = q.Where("grade = ?", f.Grade)
	}
	if f.Defect != "" {
		q = q.Where("defect = ?", f.Defect)
	}
	if !f.Since.IsZero() {
		q = q.Where("scanned_at >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("scanned_at < ?", f.Until)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(errors.KindStorage, "scan.list", "failed to count scan records", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	var recs []ScanRecord
	err := q.Order("scanned_at DESC").Order("id DESC").Limit(limit).Offset(f.Offset).Find(&recs).Error
	if err != nil {
		return nil, 0, errors.Wrap(errors.KindStorage, "scan.list", "failed to list scan records", err)
	}
	return recs, total, nil
}

// CountByGrade returns the stored grade histogram.
func (r *ScanRepository) CountByGrade(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Grade string
		N     int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&ScanRecord{}).
		Select("grade, COUNT(*) AS n").Group("grade").Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "scan.count_by_grade", "failed to count grades", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Grade] = r.N
	}
	return out, nil
}

// UpdateArtifacts records where the snapshot and report ended up.
func (r *ScanRepository) UpdateArtifacts(ctx context.Context, eventID string, updates map[string]any) error {
	err := r.db.WithContext(ctx).Model(&ScanRecord{}).Where("event_id = ?", eventID).Updates(updates).Error
	if err != nil {
		return errors.Wrap(errors.KindStorage, "scan.update", "failed to update scan record", err)
	}
	return nil
}

// DeleteBefore removes records scanned before t and returns how many went.
func (r *ScanRepository) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("scanned_at < ?", t).Delete(&ScanRecord{})
	if res.Error != nil {
		return 0, errors.Wrap(errors.KindStorage, "scan.delete_before", "failed to prune scan records", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteAll empties the history.
func (r *ScanRepository) DeleteAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&ScanRecord{})
	if res.Error != nil {
		return 0, errors.Wrap(errors.KindStorage, "scan.delete_all", "failed to clear scan records", res.Error)
	}
	return res.RowsAffected, nil
}
