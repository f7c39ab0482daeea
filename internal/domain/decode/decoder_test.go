package decode

import (
	"context"
	"image"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proscan-server-go/internal/domain/frame"
	"proscan-server-go/internal/domain/quality"
)

func encode(t *testing.T, w gozxing.Writer, text string, format gozxing.BarcodeFormat, width, height int) image.Image {
	t.Helper()
	img, err := w.Encode(text, format, width, height, nil)
	require.NoError(t, err)
	return img
}

func TestDecoder_QRCode(t *testing.T) {
	img := encode(t, qrcode.NewQRCodeWriter(), "ABC123", gozxing.BarcodeFormat_QR_CODE, 200, 200)
	f := frame.FromImage(img)

	d, err := New(Options{Formats: []string{FormatQRCode}})
	require.NoError(t, err)

	dets, err := d.Decode(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "ABC123", dets[0].Payload)
	assert.Equal(t, "QR_CODE", dets[0].Symbology)

	box := dets[0].Box
	assert.False(t, box.Empty())
	assert.Equal(t, box, box.Clip(f.Width, f.Height))

	// a clean synthetic symbol should grade well
	in := quality.NewInspector(quality.DefaultThresholds()).Inspect(f, box)
	assert.NotEqual(t, quality.DefectInvalid, in.Defect)
}

func TestDecoder_Code128PaddedBox(t *testing.T) {
	img := encode(t, oned.NewCode128Writer(), "PO-12345", gozxing.BarcodeFormat_CODE_128, 300, 80)

	d, err := New(Options{Formats: []string{FormatQRCode, FormatCode128}, LinearPadding: 15})
	require.NoError(t, err)

	dets, err := d.Decode(context.Background(), frame.FromImage(img))
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "PO-12345", dets[0].Payload)
	assert.Equal(t, "CODE_128", dets[0].Symbology)
	assert.GreaterOrEqual(t, dets[0].Box.Height, 16)
}

func TestDecoder_BlankFrame(t *testing.T) {
	f := frame.New(120, 90, frame.Gray)
	for i := range f.Data {
		f.Data[i] = 255
	}
	d, err := New(Options{Formats: []string{FormatQRCode, FormatDataMatrix, FormatEAN13, FormatCode39}})
	require.NoError(t, err)

	dets, err := d.Decode(context.Background(), f)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestNew_Formats(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Formats: []string{"pdf_417"}})
	assert.Error(t, err)

	d, err := New(Options{Formats: []string{"QR_CODE", "qr_code", "ean_13"}})
	require.NoError(t, err)
	assert.Equal(t, []string{FormatQRCode, FormatEAN13}, d.Formats())
}

func TestDecoder_CancelledContext(t *testing.T) {
	d, err := New(Options{Formats: []string{FormatQRCode}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Decode(ctx, frame.New(10, 10, frame.Gray))
	assert.ErrorIs(t, err, context.Canceled)
}
