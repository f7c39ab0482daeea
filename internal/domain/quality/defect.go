package quality

import "proscan-server-go/internal/domain/frame"

// DefectStatus is the single most salient defect of a region.
type DefectStatus string

const (
	DefectOK          DefectStatus = "OK"
	DefectBlur        DefectStatus = "BLUR"
	DefectLowContrast DefectStatus = "LOW_CONTRAST"
	DefectBroken      DefectStatus = "BROKEN"
	DefectInvalid     DefectStatus = "INVALID"
)

func (d DefectStatus) OK() bool {
	return d == DefectOK
}

// Classifier picks the first failing check in priority order: blur, then
// contrast, then broken edges.
type Classifier struct {
	t Thresholds
}

func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{t: t}
}

func (c *Classifier) ClassifyMetrics(m Metrics) DefectStatus {
	switch {
	case m.Sharpness < c.t.BlurBelow:
		return DefectBlur
	case m.Contrast < c.t.ContrastBelow:
		return DefectLowContrast
	case m.Modulation < c.t.BrokenBelow:
		return DefectBroken
	default:
		return DefectOK
	}
}

// Classify measures box within f on its own. Zero area is INVALID.
func (c *Classifier) Classify(f *frame.Frame, box frame.BoundingBox) DefectStatus {
	m, ok := Measure(f, box)
	if !ok {
		return DefectInvalid
	}
	return c.ClassifyMetrics(m)
}
