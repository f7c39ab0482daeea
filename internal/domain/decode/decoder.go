// Package decode locates and reads machine-readable codes using gozxing.
package decode

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"proscan-server-go/internal/domain/frame"
	"proscan-server-go/internal/domain/scan"
	"proscan-server-go/internal/platform/errors"
)

// Format names accepted in configuration.
const (
	FormatQRCode     = "qr_code"
	FormatDataMatrix = "data_matrix"
	FormatCode128    = "code_128"
	FormatCode39     = "code_39"
	FormatEAN13      = "ean_13"
)

type formatReader struct {
	name   string
	linear bool
	reader gozxing.Reader
}

func newFormatReader(name string) (formatReader, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case FormatQRCode:
		return formatReader{name: FormatQRCode, reader: qrcode.NewQRCodeReader()}, nil
	case FormatDataMatrix:
		return formatReader{name: FormatDataMatrix, reader: datamatrix.NewDataMatrixReader()}, nil
	case FormatCode128:
		return formatReader{name: FormatCode128, linear: true, reader: oned.NewCode128Reader()}, nil
	case FormatCode39:
		return formatReader{name: FormatCode39, linear: true, reader: oned.NewCode39Reader()}, nil
	case FormatEAN13:
		return formatReader{name: FormatEAN13, linear: true, reader: oned.NewEAN13Reader()}, nil
	default:
		return formatReader{}, fmt.Errorf("unsupported format %q", name)
	}
}

// Options for the decoder.
type Options struct {
	Formats   []string
	TryHarder bool
	// LinearPadding is added above and below 1-D symbols, whose readers only
	// report points along the scan line.
	LinearPadding int
	// MatrixMargin grows 2-D boxes by this fraction of their size on each
	// side; their result points are finder pattern centres.
	MatrixMargin float64
}

// Decoder runs one reader per enabled format over each frame. Each format
// yields at most one symbol per frame.
type Decoder struct {
	readers []formatReader
	hints   map[gozxing.DecodeHintType]interface{}
	opts    Options
}

var _ scan.Decoder = (*Decoder)(nil)

func New(opts Options) (*Decoder, error) {
	if len(opts.Formats) == 0 {
		return nil, errors.New(errors.KindConfig, "decode.new", "no formats enabled")
	}
	if opts.MatrixMargin <= 0 {
		opts.MatrixMargin = 0.15
	}

	d := &Decoder{opts: opts, hints: map[gozxing.DecodeHintType]interface{}{}}
	seen := map[string]bool{}
	for _, name := range opts.Formats {
		r, err := newFormatReader(name)
		if err != nil {
			return nil, errors.Wrap(errors.KindConfig, "decode.new", "build reader", err)
		}
		if seen[r.name] {
			continue
		}
		seen[r.name] = true
		d.readers = append(d.readers, r)
	}
	if opts.TryHarder {
		d.hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	return d, nil
}

// Formats lists the enabled formats in evaluation order.
func (d *Decoder) Formats() []string {
	out := make([]string, 0, len(d.readers))
	for _, r := range d.readers {
		out = append(out, r.name)
	}
	return out
}

// Decode returns every symbol found. Reader misses are not errors.
func (d *Decoder) Decode(ctx context.Context, f *frame.Frame) ([]scan.Detection, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(f.ToImage())
	if err != nil {
		return nil, errors.Wrap(errors.KindAnalysis, "decode.bitmap", "binarize frame", err)
	}

	var out []scan.Detection
	for _, r := range d.readers {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := r.reader.Decode(bmp, d.hints)
		r.reader.Reset()
		if err != nil || res == nil {
			continue
		}
		out = append(out, scan.Detection{
			Payload:   res.GetText(),
			Symbology: res.GetBarcodeFormat().String(),
			Box:       d.boxFor(res.GetResultPoints(), r.linear).Clip(f.Width, f.Height),
		})
	}
	return out, nil
}

func (d *Decoder) boxFor(points []gozxing.ResultPoint, linear bool) frame.BoundingBox {
	if len(points) == 0 {
		return frame.BoundingBox{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		if p == nil {
			continue
		}
		minX = math.Min(minX, p.GetX())
		minY = math.Min(minY, p.GetY())
		maxX = math.Max(maxX, p.GetX())
		maxY = math.Max(maxY, p.GetY())
	}
	if math.IsInf(minX, 1) {
		return frame.BoundingBox{}
	}

	box := frame.BoundingBox{
		X:      int(math.Floor(minX)),
		Y:      int(math.Floor(minY)),
		Width:  int(math.Ceil(maxX)) - int(math.Floor(minX)) + 1,
		Height: int(math.Ceil(maxY)) - int(math.Floor(minY)) + 1,
	}
	if linear {
		return box.Pad(0, d.opts.LinearPadding)
	}
	mx := int(math.Round(float64(box.Width) * d.opts.MatrixMargin))
	my := int(math.Round(float64(box.Height) * d.opts.MatrixMargin))
	return box.Pad(mx, my)
}
