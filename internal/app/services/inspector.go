package services

import (
	"sync/atomic"

	"proscan-server-go/internal/domain/frame"
	"proscan-server-go/internal/domain/quality"
	"proscan-server-go/internal/platform/config"
)

// ThresholdsFromConfig maps the quality section onto grading thresholds.
func ThresholdsFromConfig(q config.QualityConfig) quality.Thresholds {
	return quality.Thresholds{
		GradeA:        q.GradeA,
		GradeB:        q.GradeB,
		GradeC:        q.GradeC,
		GradeD:        q.GradeD,
		BlurBelow:     q.BlurBelow,
		ContrastBelow: q.ContrastBelow,
		BrokenBelow:   q.BrokenBelow,
	}
}

// swappableInspector lets a config reload replace thresholds while the loop
// keeps running; each Inspect call sees one consistent set.
type swappableInspector struct {
	current atomic.Pointer[quality.Inspector]
}

func newSwappableInspector(t quality.Thresholds) *swappableInspector {
	s := &swappableInspector{}
	s.Set(t)
	return s
}

func (s *swappableInspector) Set(t quality.Thresholds) {
	s.current.Store(quality.NewInspector(t))
}

func (s *swappableInspector) Inspect(f *frame.Frame, box frame.BoundingBox) quality.Inspection {
	return s.current.Load().Inspect(f, box)
}
