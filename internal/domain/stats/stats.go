// Package stats aggregates scan events for the operator views: running
// counters, the grade histogram and a bounded table of recent scans.
package stats

import (
	"sync"
	"time"

	"proscan-server-go/internal/domain/quality"
	"proscan-server-go/internal/domain/scan"
)

// Snapshot is a consistent copy of the counters.
type Snapshot struct {
	Total           int                          `json:"total"`
	Passed          int                          `json:"passed"`
	Defects         int                          `json:"defects"`
	PassRate        float64                      `json:"pass_rate"`
	Grades          map[quality.Grade]int        `json:"grades"`
	DefectBreakdown map[quality.DefectStatus]int `json:"defect_breakdown"`
	Since           time.Time                    `json:"since"`
}

// Statistics counts scan events. A defect is any status other than OK; the
// pass rate is the share of non-defective scans and is 100 when empty.
type Statistics struct {
	mu       sync.RWMutex
	total    int
	passed   int
	defects  int
	grades   map[quality.Grade]int
	byDefect map[quality.DefectStatus]int
	since    time.Time
	now      func() time.Time
}

func NewStatistics() *Statistics {
	s := &Statistics{now: time.Now}
	s.Reset()
	return s
}

// Add records one scan event.
func (s *Statistics) Add(ev scan.ScanEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if ev.Code.Passed() {
		s.passed++
	}
	if !ev.Code.Defect.OK() {
		s.defects++
		s.byDefect[ev.Code.Defect]++
	}
	if ev.Code.Grade.Rank() >= 0 {
		s.grades[ev.Code.Grade]++
	}
}

func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total, s.passed, s.defects = 0, 0, 0
	s.grades = make(map[quality.Grade]int, len(quality.AllGrades))
	for _, g := range quality.AllGrades {
		s.grades[g] = 0
	}
	s.byDefect = make(map[quality.DefectStatus]int)
	s.since = s.now()
}

func (s *Statistics) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grades := make(map[quality.Grade]int, len(s.grades))
	for g, n := range s.grades {
		grades[g] = n
	}
	byDefect := make(map[quality.DefectStatus]int, len(s.byDefect))
	for d, n := range s.byDefect {
		byDefect[d] = n
	}

	rate := 100.0
	if s.total > 0 {
		rate = float64(s.total-s.defects) / float64(s.total) * 100
	}
	return Snapshot{
		Total:           s.total,
		Passed:          s.passed,
		Defects:         s.defects,
		PassRate:        rate,
		Grades:          grades,
		DefectBreakdown: byDefect,
		Since:           s.since,
	}
}
