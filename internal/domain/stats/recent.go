package stats

import (
	"sync"
	"time"

	"proscan-server-go/internal/domain/quality"
	"proscan-server-go/internal/domain/scan"
)

// DefaultRecentLimit is the number of rows the recent table keeps.
const DefaultRecentLimit = 500

// Row is one line of the recent scans table and of the tabular export.
type Row struct {
	ID        string               `json:"id"`
	Time      time.Time            `json:"time"`
	Payload   string               `json:"payload"`
	Symbology string               `json:"symbology"`
	Grade     quality.Grade        `json:"grade"`
	Defect    quality.DefectStatus `json:"defect"`
	Metrics   quality.Metrics      `json:"metrics"`
}

func RowFromEvent(ev scan.ScanEvent) Row {
	return Row{
		ID:        ev.ID,
		Time:      ev.Timestamp,
		Payload:   ev.Code.Payload,
		Symbology: ev.Code.Symbology,
		Grade:     ev.Code.Grade,
		Defect:    ev.Code.Defect,
		Metrics:   ev.Code.Metrics,
	}
}

// Recent is a ring buffer of the newest rows; the oldest is evicted once
// the limit is reached.
type Recent struct {
	mu    sync.RWMutex
	rows  []Row
	start int
	count int
	last  *scan.ScanEvent
}

func NewRecent(limit int) *Recent {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return &Recent{rows: make([]Row, limit)}
}

func (r *Recent) Add(ev scan.ScanEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := RowFromEvent(ev)
	if r.count < len(r.rows) {
		r.rows[(r.start+r.count)%len(r.rows)] = row
		r.count++
	} else {
		r.rows[r.start] = row
		r.start = (r.start + 1) % len(r.rows)
	}
	last := ev
	r.last = &last
}

// Rows returns up to limit rows, oldest first. limit <= 0 returns all.
func (r *Recent) Rows(limit int) []Row {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Row, 0, n)
	for i := r.count - n; i < r.count; i++ {
		out = append(out, r.rows[(r.start+i)%len(r.rows)])
	}
	return out
}

// Last returns the most recent event, including its frame.
func (r *Recent) Last() (scan.ScanEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return scan.ScanEvent{}, false
	}
	return *r.last, true
}

func (r *Recent) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

func (r *Recent) Limit() int {
	return len(r.rows)
}

func (r *Recent) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.rows)
	r.start, r.count = 0, 0
	r.last = nil
}
