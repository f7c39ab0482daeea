package quality

import "proscan-server-go/internal/domain/frame"

// Inspection is the combined outcome for one region.
type Inspection struct {
	Metrics Metrics      `json:"metrics"`
	Score   float64      `json:"score"`
	Grade   Grade        `json:"grade"`
	Defect  DefectStatus `json:"defect"`
}

// Inspector measures a region once and derives both the grade and the
// defect status. Results are identical to calling Grader.Grade and
// Classifier.Classify separately.
type Inspector struct {
	grader     *Grader
	classifier *Classifier
}

func NewInspector(t Thresholds) *Inspector {
	return &Inspector{grader: NewGrader(t), classifier: NewClassifier(t)}
}

func (in *Inspector) Grader() *Grader         { return in.grader }
func (in *Inspector) Classifier() *Classifier { return in.classifier }

func (in *Inspector) Inspect(f *frame.Frame, box frame.BoundingBox) Inspection {
	m, ok := Measure(f, box)
	if !ok {
		return Inspection{Grade: GradeF, Defect: DefectInvalid}
	}
	score := Score(m)
	return Inspection{
		Metrics: m,
		Score:   score,
		Grade:   in.grader.GradeScore(score),
		Defect:  in.classifier.ClassifyMetrics(m),
	}
}
