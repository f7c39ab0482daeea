package capture

import (
	"bytes"
	"fmt"
	"image"

	"proscan-server-go/internal/platform/errors"
)

// maxFramePixels rejects images whose header claims more than ~64MP before
// the pixel data is allocated.
const maxFramePixels = 64 << 20

var (
	ErrUnsupportedImage = errors.New(errors.KindCapture, "capture.validate", "unrecognised image signature")
	ErrImageTooLarge    = errors.New(errors.KindCapture, "capture.validate", "image dimensions exceed limit")
)

var imageSignatures = []struct {
	format string
	magic  []byte
}{
	{"jpeg", []byte{0xFF, 0xD8}},
	{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	{"gif", []byte{0x47, 0x49, 0x46, 0x38}},
	{"webp", []byte{0x52, 0x49, 0x46, 0x46}},
	{"bmp", []byte{0x42, 0x4D}},
	{"tiff", []byte{0x49, 0x49, 0x2A, 0x00}},
	{"tiff", []byte{0x4D, 0x4D, 0x00, 0x2A}},
}

func sniffFormat(raw []byte) (string, bool) {
	for _, sig := range imageSignatures {
		if bytes.HasPrefix(raw, sig.magic) {
			return sig.format, true
		}
	}
	return "", false
}

// decodeImage checks the signature and declared dimensions of raw before
// decoding it.
func decodeImage(raw []byte) (image.Image, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty image payload: %w", ErrUnsupportedImage)
	}
	if _, ok := sniffFormat(raw); !ok {
		return nil, ErrUnsupportedImage
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%s image has no pixels: %w", format, ErrUnsupportedImage)
	}
	if cfg.Width*cfg.Height > maxFramePixels {
		return nil, fmt.Errorf("%dx%d %s: %w", cfg.Width, cfg.Height, format, ErrImageTooLarge)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return img, nil
}
