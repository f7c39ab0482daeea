package quality

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proscan-server-go/internal/domain/frame"
)

// grayFrame builds a single-channel frame from a pixel function.
func grayFrame(w, h int, px func(x, y int) byte) *frame.Frame {
	f := frame.New(w, h, frame.Gray)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.Data[y*w+x] = px(x, y)
		}
	}
	return f
}

func stepEdge(w, h int, dark, light byte) *frame.Frame {
	return grayFrame(w, h, func(x, _ int) byte {
		if x < w/2 {
			return dark
		}
		return light
	})
}

func TestGradeMetrics_RegressionFixture(t *testing.T) {
	m := Metrics{Sharpness: 400, Contrast: 50, Modulation: 0.5}
	assert.InDelta(t, 225.0, Score(m), 1e-9)
	assert.Equal(t, GradeB, NewGrader(DefaultThresholds()).GradeMetrics(m))
}

func TestGradeScore_Buckets(t *testing.T) {
	g := NewGrader(DefaultThresholds())
	tests := []struct {
		score float64
		want  Grade
	}{
		{300.01, GradeA},
		{300, GradeB},
		{220.5, GradeB},
		{220, GradeC},
		{150, GradeD},
		{80.1, GradeD},
		{80, GradeF},
		{0, GradeF},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, g.GradeScore(tt.score), "score %v", tt.score)
	}
}

func TestClassifyMetrics_Priority(t *testing.T) {
	c := NewClassifier(DefaultThresholds())
	tests := []struct {
		name string
		m    Metrics
		want DefectStatus
	}{
		{"all failing reports blur", Metrics{Sharpness: 10, Contrast: 5, Modulation: 0}, DefectBlur},
		{"contrast before broken", Metrics{Sharpness: 60, Contrast: 5, Modulation: 0}, DefectLowContrast},
		{"broken", Metrics{Sharpness: 60, Contrast: 30, Modulation: 0.019}, DefectBroken},
		{"boundaries pass", Metrics{Sharpness: 50, Contrast: 25, Modulation: 0.02}, DefectOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ClassifyMetrics(tt.m))
		})
	}
}

func TestMeasure_StepEdge(t *testing.T) {
	f := stepEdge(40, 40, 0, 255)

	m, ok := Measure(f, frame.BoundingBox{Width: 40, Height: 40})
	require.True(t, ok)

	assert.InDelta(t, 3251.25, m.Sharpness, 1e-6)
	assert.InDelta(t, 127.5, m.Contrast, 1e-6)
	assert.InDelta(t, 0.025, m.Modulation, 1e-9)

	box := frame.BoundingBox{Width: 40, Height: 40}
	assert.Equal(t, GradeA, NewGrader(DefaultThresholds()).Grade(f, box))
	assert.Equal(t, DefectOK, NewClassifier(DefaultThresholds()).Classify(f, box))
}

func TestClassify_Scenes(t *testing.T) {
	c := NewClassifier(DefaultThresholds())

	flat := grayFrame(30, 30, func(int, int) byte { return 128 })
	assert.Equal(t, DefectBlur, c.Classify(flat, frame.BoundingBox{Width: 30, Height: 30}))

	stripes := grayFrame(40, 40, func(x, _ int) byte {
		if (x/2)%2 == 0 {
			return 100
		}
		return 130
	})
	assert.Equal(t, DefectLowContrast, c.Classify(stripes, frame.BoundingBox{Width: 40, Height: 40}))

	// a single edge across a large region leaves too few edge pixels
	sparse := stepEdge(100, 100, 0, 255)
	assert.Equal(t, DefectBroken, c.Classify(sparse, frame.BoundingBox{Width: 100, Height: 100}))
}

func TestZeroArea_Sentinels(t *testing.T) {
	f := stepEdge(40, 40, 0, 255)
	g := NewGrader(DefaultThresholds())
	c := NewClassifier(DefaultThresholds())

	for _, box := range []frame.BoundingBox{
		{X: 5, Y: 5, Width: 0, Height: 10},
		{X: 5, Y: 5, Width: 10, Height: 0},
		{X: 100, Y: 100, Width: 10, Height: 10},
		{X: math.MaxInt - 5, Y: 0, Width: 10, Height: 40},
		{X: 0, Y: math.MaxInt - 5, Width: 40, Height: 10},
	} {
		assert.Equal(t, GradeF, g.Grade(f, box), box.String())
		assert.Equal(t, DefectInvalid, c.Classify(f, box), box.String())
	}
	assert.Equal(t, GradeF, g.Grade(nil, frame.BoundingBox{Width: 1, Height: 1}))
}

func TestMeasure_ClipsToFrame(t *testing.T) {
	f := stepEdge(40, 40, 0, 255)

	clipped, ok := Measure(f, frame.BoundingBox{X: -10, Y: -10, Width: 60, Height: 60})
	require.True(t, ok)
	full, _ := Measure(f, frame.BoundingBox{Width: 40, Height: 40})
	assert.Equal(t, full, clipped)
}

func TestMeasure_RGBMatchesGray(t *testing.T) {
	g := stepEdge(20, 20, 10, 200)
	rgb := frame.New(20, 20, frame.RGB)
	for i, v := range g.Data {
		rgb.Data[i*3], rgb.Data[i*3+1], rgb.Data[i*3+2] = v, v, v
	}
	box := frame.BoundingBox{Width: 20, Height: 20}

	a, _ := Measure(g, box)
	b, _ := Measure(rgb, box)
	assert.Equal(t, a, b)
}

func TestInspector_MatchesSeparateCalls(t *testing.T) {
	in := NewInspector(DefaultThresholds())
	scenes := []*frame.Frame{
		stepEdge(40, 40, 0, 255),
		stepEdge(100, 100, 0, 255),
		grayFrame(16, 16, func(x, y int) byte { return byte((x*37 + y*91) % 256) }),
	}
	for _, f := range scenes {
		for _, box := range []frame.BoundingBox{
			{X: 2, Y: 2, Width: f.Width - 4, Height: f.Height - 4},
			{X: f.Width / 2, Y: -3, Width: f.Width, Height: f.Height / 2},
			{X: 1, Y: 1, Width: 3, Height: 3},
			{X: math.MaxInt - 1, Y: 0, Width: 8, Height: 8},
		} {
			got := in.Inspect(f, box)
			assert.Equal(t, in.Grader().Grade(f, box), got.Grade, box.String())
			assert.Equal(t, in.Classifier().Classify(f, box), got.Defect, box.String())
		}
	}

	empty := in.Inspect(scenes[0], frame.BoundingBox{})
	assert.Equal(t, GradeF, empty.Grade)
	assert.Equal(t, DefectInvalid, empty.Defect)
}

func TestGrade_IsPure(t *testing.T) {
	f := grayFrame(32, 24, func(x, y int) byte { return byte((x * y * 13) % 256) })
	before := append([]byte(nil), f.Data...)
	box := frame.BoundingBox{X: 3, Y: 4, Width: 20, Height: 15}

	g := NewGrader(DefaultThresholds())
	first := g.Grade(f, box)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, g.Grade(f, box))
	}
	assert.Equal(t, before, f.Data)
}

func TestGrade_Ordering(t *testing.T) {
	assert.True(t, GradeA.Better(GradeB))
	assert.False(t, GradeF.Better(GradeD))
	assert.True(t, GradeC.Passing())
	assert.False(t, GradeD.Passing())
	_, err := ParseGrade("E")
	assert.Error(t, err)
}

func TestReflect101(t *testing.T) {
	assert.Equal(t, 1, reflect101(-1, 5))
	assert.Equal(t, 3, reflect101(5, 5))
	assert.Equal(t, 0, reflect101(-1, 1))
	assert.Equal(t, 1, reflect101(-1, 2))
}
