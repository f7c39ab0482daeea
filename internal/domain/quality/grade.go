package quality

import (
	"fmt"

	"proscan-server-go/internal/domain/frame"
)

// Grade is an ordinal quality bucket, A best.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// AllGrades in order from best to worst.
var AllGrades = []Grade{GradeA, GradeB, GradeC, GradeD, GradeF}

// Rank is 0 for A through 4 for F, -1 for an unknown value.
func (g Grade) Rank() int {
	for i, v := range AllGrades {
		if v == g {
			return i
		}
	}
	return -1
}

// Better reports whether g ranks strictly above other.
func (g Grade) Better(other Grade) bool {
	return g.Rank() >= 0 && (other.Rank() < 0 || g.Rank() < other.Rank())
}

// Passing is true for A, B and C.
func (g Grade) Passing() bool {
	r := g.Rank()
	return r >= 0 && r <= GradeC.Rank()
}

func ParseGrade(s string) (Grade, error) {
	g := Grade(s)
	if g.Rank() < 0 {
		return "", fmt.Errorf("unknown grade %q", s)
	}
	return g, nil
}

// Score weights.
const (
	SharpnessWeight  = 0.5
	ContrastWeight   = 0.3
	ModulationWeight = 20
)

// Score combines the metrics into the heuristic ISO-style score.
func Score(m Metrics) float64 {
	return SharpnessWeight*m.Sharpness + ContrastWeight*m.Contrast + ModulationWeight*m.Modulation
}

// Thresholds are configuration constants: grade buckets (score strictly
// greater than the bound) and defect cut-offs (metric strictly below).
type Thresholds struct {
	GradeA        float64
	GradeB        float64
	GradeC        float64
	GradeD        float64
	BlurBelow     float64
	ContrastBelow float64
	BrokenBelow   float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		GradeA:        300,
		GradeB:        220,
		GradeC:        150,
		GradeD:        80,
		BlurBelow:     50,
		ContrastBelow: 25,
		BrokenBelow:   0.02,
	}
}

// Grader assigns grades to regions.
type Grader struct {
	t Thresholds
}

func NewGrader(t Thresholds) *Grader {
	return &Grader{t: t}
}

// GradeScore buckets a score.
func (g *Grader) GradeScore(score float64) Grade {
	switch {
	case score > g.t.GradeA:
		return GradeA
	case score > g.t.GradeB:
		return GradeB
	case score > g.t.GradeC:
		return GradeC
	case score > g.t.GradeD:
		return GradeD
	default:
		return GradeF
	}
}

func (g *Grader) GradeMetrics(m Metrics) Grade {
	return g.GradeScore(Score(m))
}

// Grade scores box within f. A region with zero area after clipping is F.
func (g *Grader) Grade(f *frame.Frame, box frame.BoundingBox) Grade {
	m, ok := Measure(f, box)
	if !ok {
		return GradeF
	}
	return g.GradeMetrics(m)
}
