package frame

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	OverlayPass = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	OverlayFail = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

// Overlay is one box and label to draw.
type Overlay struct {
	Box   BoundingBox
	Label string
	Color color.RGBA
}

const overlayThickness = 2

// Annotate returns an RGB copy of f with the overlays drawn on it. Labels go
// above the box, or inside its top edge when there is no room.
func Annotate(f *Frame, overlays []Overlay) *Frame {
	img := f.ToRGBA()
	face := basicfont.Face7x13

	for _, o := range overlays {
		clipped := o.Box.Clip(f.Width, f.Height)
		if clipped.Empty() {
			continue
		}
		r := clipped.Rect()
		strokeRect(img, r, o.Color)

		if o.Label == "" {
			continue
		}
		baseline := r.Min.Y - 4
		if baseline-face.Ascent < 0 {
			baseline = r.Min.Y + face.Ascent + overlayThickness
		}
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(o.Color),
			Face: face,
			Dot:  fixed.P(r.Min.X, baseline),
		}
		d.DrawString(o.Label)
	}

	out := FromImage(img)
	out.Seq, out.Timestamp = f.Seq, f.Timestamp
	return out
}

func strokeRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	for t := 0; t < overlayThickness; t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, r.Min.Y+t, c)
			img.SetRGBA(x, r.Max.Y-1-t, c)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			img.SetRGBA(r.Min.X+t, y, c)
			img.SetRGBA(r.Max.X-1-t, y, c)
		}
	}
}
