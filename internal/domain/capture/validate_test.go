package capture

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeImage_AcceptsPNG(t *testing.T) {
	img, err := decodeImage(pngBytes(t, 12, 7, color.White))
	require.NoError(t, err)
	assert.Equal(t, 12, img.Bounds().Dx())
	assert.Equal(t, 7, img.Bounds().Dy())
}

func TestDecodeImage_RejectsUnknownSignature(t *testing.T) {
	_, err := decodeImage([]byte("<svg onload=alert(1)>"))
	assert.True(t, errors.Is(err, ErrUnsupportedImage))

	_, err = decodeImage(nil)
	assert.True(t, errors.Is(err, ErrUnsupportedImage))
}

func TestDecodeImage_RejectsOversizedHeader(t *testing.T) {
	raw := pngBytes(t, 4, 4, color.Black)
	// IHDR data starts at byte 16; its CRC covers type and data.
	patched := append([]byte(nil), raw...)
	binary.BigEndian.PutUint32(patched[16:20], 20000)
	binary.BigEndian.PutUint32(patched[20:24], 20000)
	binary.BigEndian.PutUint32(patched[29:33], crc32.ChecksumIEEE(patched[12:29]))

	_, err := decodeImage(patched)
	assert.True(t, errors.Is(err, ErrImageTooLarge), "got %v", err)
}

func TestSniffFormat(t *testing.T) {
	format, ok := sniffFormat([]byte{0xFF, 0xD8, 0xFF, 0xE0})
	assert.True(t, ok)
	assert.Equal(t, "jpeg", format)

	_, ok = sniffFormat([]byte("plain"))
	assert.False(t, ok)
}
