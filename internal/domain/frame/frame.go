// Package frame holds the pixel buffer passed through the scan pipeline and
// the geometry helpers used to address regions of it.
package frame

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"
)

// Supported channel layouts.
const (
	Gray = 1
	RGB  = 3
	RGBA = 4
)

// Frame is an interleaved 8-bit image. The processing loop owns a frame for
// one iteration; anything handed downstream is a Clone.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Channels  int
	Data      []byte
}

// New allocates a zeroed frame.
func New(width, height, channels int) *Frame {
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		Data:     make([]byte, width*height*channels),
	}
}

// Validate checks that the buffer matches the declared geometry.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("nil frame")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	switch f.Channels {
	case Gray, RGB, RGBA:
	default:
		return fmt.Errorf("unsupported channel count %d", f.Channels)
	}
	if want := f.Width * f.Height * f.Channels; len(f.Data) != want {
		return fmt.Errorf("frame buffer has %d bytes, want %d", len(f.Data), want)
	}
	return nil
}

// Bounds returns the frame rectangle anchored at the origin.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Clone deep-copies the frame.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := *f
	c.Data = append([]byte(nil), f.Data...)
	return &c
}

// FromImage converts any image.Image into an RGB frame.
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := New(b.Dx(), b.Dy(), RGB)

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < f.Height; y++ {
			src := rgba.Pix[(y)*rgba.Stride:]
			dst := f.Data[y*f.Width*RGB:]
			for x := 0; x < f.Width; x++ {
				dst[x*3] = src[x*4]
				dst[x*3+1] = src[x*4+1]
				dst[x*3+2] = src[x*4+2]
			}
		}
		return f
	}

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			f.Data[i] = c.R
			f.Data[i+1] = c.G
			f.Data[i+2] = c.B
			i += 3
		}
	}
	return f
}

// ToRGBA returns a new RGBA copy of the frame, suitable for encoding and
// drawing.
func (f *Frame) ToRGBA() *image.RGBA {
	img := image.NewRGBA(f.Bounds())
	n := f.Width * f.Height
	for p := 0; p < n; p++ {
		dst := img.Pix[p*4 : p*4+4]
		switch f.Channels {
		case Gray:
			v := f.Data[p]
			dst[0], dst[1], dst[2] = v, v, v
		case RGB:
			copy(dst[:3], f.Data[p*3:p*3+3])
		case RGBA:
			copy(dst[:3], f.Data[p*4:p*4+3])
		}
		dst[3] = 0xff
	}
	return img
}

// ToImage exposes the frame through the standard image interfaces.
func (f *Frame) ToImage() image.Image {
	if f.Channels == Gray {
		return &image.Gray{Pix: f.Data, Stride: f.Width, Rect: f.Bounds()}
	}
	return f.ToRGBA()
}

// GrayRegion extracts box (clipped to the frame) as 8-bit luma using the
// ITU-R BT.601 weights in 14-bit fixed point. An empty clip yields nil.
func (f *Frame) GrayRegion(box BoundingBox) *image.Gray {
	r := box.Clip(f.Width, f.Height)
	if r.Empty() {
		return nil
	}

	out := image.NewGray(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		row := (r.Y + y) * f.Width
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < r.Width; x++ {
			p := row + r.X + x
			switch f.Channels {
			case Gray:
				dst[x] = f.Data[p]
			case RGB:
				dst[x] = luma(f.Data[p*3], f.Data[p*3+1], f.Data[p*3+2])
			case RGBA:
				dst[x] = luma(f.Data[p*4], f.Data[p*4+1], f.Data[p*4+2])
			}
		}
	}
	return out
}

func luma(r, g, b byte) byte {
	const (
		wr    = 4899
		wg    = 9617
		wb    = 1868
		shift = 14
	)
	return byte((uint32(r)*wr + uint32(g)*wg + uint32(b)*wb + 1<<(shift-1)) >> shift)
}

// Paste draws src onto the frame at offset; used by tests and synthetic
// sources to compose scenes.
func (f *Frame) Paste(src image.Image, at image.Point) *Frame {
	img := f.ToRGBA()
	draw.Draw(img, src.Bounds().Sub(src.Bounds().Min).Add(at), src, src.Bounds().Min, draw.Src)
	out := FromImage(img)
	out.Seq, out.Timestamp = f.Seq, f.Timestamp
	return out
}
