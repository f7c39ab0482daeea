// Package quality scores the optical print quality of a code region and
// classifies visible defects. Everything here is a pure function of the
// pixels inside the region.
package quality

import (
	"image"
	"math"

	"proscan-server-go/internal/domain/frame"
)

// Canny hysteresis thresholds used for the modulation metric.
const (
	EdgeLowThreshold  = 50
	EdgeHighThreshold = 150
)

// Metrics are the raw measurements both the grade and the defect status are
// derived from.
type Metrics struct {
	// Sharpness is the variance of the Laplacian response.
	Sharpness float64 `json:"sharpness"`
	// Contrast is the standard deviation of intensities.
	Contrast float64 `json:"contrast"`
	// Modulation is the fraction of pixels marked as edges.
	Modulation float64 `json:"modulation"`
}

// Measure computes metrics for box clipped to the frame. ok is false when the
// clipped region has zero area.
func Measure(f *frame.Frame, box frame.BoundingBox) (m Metrics, ok bool) {
	if f == nil {
		return Metrics{}, false
	}
	g := f.GrayRegion(box)
	if g == nil {
		return Metrics{}, false
	}
	return MeasureGray(g), true
}

// MeasureGray computes metrics over a whole grayscale image.
func MeasureGray(g *image.Gray) Metrics {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w == 0 || h == 0 {
		return Metrics{}
	}
	pix := grayPixels(g)
	area := float64(w * h)
	return Metrics{
		Sharpness:  laplacianVariance(pix, w, h),
		Contrast:   stdDev(pix),
		Modulation: float64(countEdges(pix, w, h, EdgeLowThreshold, EdgeHighThreshold)) / area,
	}
}

// grayPixels returns a tightly packed copy when the stride has padding.
func grayPixels(g *image.Gray) []uint8 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if g.Stride == w {
		return g.Pix[:w*h]
	}
	out := make([]uint8, 0, w*h)
	for y := 0; y < h; y++ {
		off := y * g.Stride
		out = append(out, g.Pix[off:off+w]...)
	}
	return out
}

func stdDev(pix []uint8) float64 {
	var sum, sq float64
	for _, p := range pix {
		v := float64(p)
		sum += v
		sq += v * v
	}
	n := float64(len(pix))
	mean := sum / n
	variance := sq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// laplacianVariance applies the 4-neighbour kernel [0 1 0; 1 -4 1; 0 1 0]
// with reflect-101 borders and returns the population variance.
func laplacianVariance(pix []uint8, w, h int) float64 {
	var sum, sq float64
	for y := 0; y < h; y++ {
		up := reflect101(y-1, h) * w
		row := y * w
		down := reflect101(y+1, h) * w
		for x := 0; x < w; x++ {
			left := reflect101(x-1, w)
			right := reflect101(x+1, w)
			v := float64(pix[up+x]) + float64(pix[down+x]) +
				float64(pix[row+left]) + float64(pix[row+right]) -
				4*float64(pix[row+x])
			sum += v
			sq += v * v
		}
	}
	n := float64(w * h)
	mean := sum / n
	variance := sq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return variance
}

// reflect101 maps i into [0,n) mirroring without repeating the edge pixel
// (gfedcb|abcdefgh|gfedcba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
