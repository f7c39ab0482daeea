package frame

import (
	"fmt"
	"image"
)

// BoundingBox is an axis-aligned region in pixel coordinates. Zero area is
// valid and is treated as a sentinel by the graders.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BoxFromRect converts a canonical image.Rectangle.
func BoxFromRect(r image.Rectangle) BoundingBox {
	r = r.Canon()
	return BoundingBox{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

func (b BoundingBox) Area() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

func (b BoundingBox) Empty() bool {
	return b.Area() == 0
}

func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Clip intersects the box with a width×height frame. The arithmetic never
// forms X+Width directly, so boxes near the int limits clip to empty rather
// than wrapping around.
func (b BoundingBox) Clip(width, height int) BoundingBox {
	if b.Empty() {
		return BoundingBox{X: b.X, Y: b.Y}
	}
	x0, x1, okX := clipSpan(b.X, b.Width, width)
	y0, y1, okY := clipSpan(b.Y, b.Height, height)
	if !okX || !okY {
		return BoundingBox{X: b.X, Y: b.Y}
	}
	return BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// clipSpan intersects [start, start+length) with [0, limit); length > 0.
func clipSpan(start, length, limit int) (lo, hi int, ok bool) {
	if limit <= 0 || start >= limit {
		return 0, 0, false
	}
	if start < 0 {
		// start+length cannot overflow with start negative and length positive
		end := start + length
		if end <= 0 {
			return 0, 0, false
		}
		return 0, min(end, limit), true
	}
	return start, start + min(length, limit-start), true
}

// Pad grows the box by dx/dy on each side.
func (b BoundingBox) Pad(dx, dy int) BoundingBox {
	return BoundingBox{X: b.X - dx, Y: b.Y - dy, Width: b.Width + 2*dx, Height: b.Height + 2*dy}
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("%dx%d@(%d,%d)", b.Width, b.Height, b.X, b.Y)
}
