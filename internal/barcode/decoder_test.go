package barcode

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeQRPNG(t *testing.T, payload string) []byte {
	t.Helper()
	matrix, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, 256, 256, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, matrix))
	return buf.Bytes()
}

func TestLocateDecodesQRURL(t *testing.T) {
	const payload = "https://itax.kra.go.ke/common/link/etims/view?id=abc123"
	d := NewDecoder(nil)

	code, err := d.Locate(context.Background(), encodeQRPNG(t, payload))
	require.NoError(t, err)

	assert.Equal(t, payload, code.RawText)
	assert.Equal(t, payload, code.InvoiceURL)
	assert.Nil(t, code.Fields, "a bare URL has no structured fields")
	assert.Contains(t, code.Format, "QR")
}

func TestLocateDecodesStructuredPayload(t *testing.T) {
	const payload = "merchant:Shell Westlands\ntotal:KES 5000.00\ndate:2026-03-12\nhttps://itax.kra.go.ke/view?id=x"
	d := NewDecoder(nil)

	code, err := d.Locate(context.Background(), encodeQRPNG(t, payload))
	require.NoError(t, err)

	assert.Equal(t, "https://itax.kra.go.ke/view?id=x", code.InvoiceURL)
	require.NotNil(t, code.Fields)
	assert.Equal(t, "Shell Westlands", code.Fields["merchant"])
	assert.Equal(t, "KES 5000.00", code.Fields["total"])
	assert.Equal(t, "2026-03-12", code.Fields["date"])
}

func TestLocateHandlesInvertedPolarity(t *testing.T) {
	const payload = "https://itax.kra.go.ke/view?id=inverted"
	img, err := DecodeImage(encodeQRPNG(t, payload))
	require.NoError(t, err)

	inverted := invert(grayscale(img))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, inverted))

	code, err := NewDecoder(nil).Locate(context.Background(), buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, payload, code.RawText)
}

func TestLocateNoCode(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range blank.Pix {
		blank.Pix[i] = 255
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, blank))

	_, err := NewDecoder(nil).Locate(context.Background(), buf.Bytes())
	assert.ErrorIs(t, err, ErrNoCodeFound)
}

func TestLocateUnreadableBytes(t *testing.T) {
	_, err := NewDecoder(nil).Locate(context.Background(), []byte("not an image"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCodeFound)
}

func TestDeriveURL(t *testing.T) {
	cases := map[string]string{
		"https://itax.kra.go.ke/view?id=1":            "https://itax.kra.go.ke/view?id=1",
		"see https://kra.go.ke/check;":                "https://kra.go.ke/check",
		"merchant:shell total:5000":                   "",
		"ftp://example.com/x":                         "",
		"0070000001234567":                            "",
	}
	for in, want := range cases {
		assert.Equal(t, want, deriveURL(in), "input %q", in)
	}
}

func TestParseStructuredFields(t *testing.T) {
	fields := parseStructuredFields("Merchant: Rubis Karen; TOTAL=4200; https://kra.go.ke/x; noise")
	require.NotNil(t, fields)
	assert.Equal(t, "Rubis Karen", fields["merchant"])
	assert.Equal(t, "4200", fields["total"])
	assert.NotContains(t, fields, "https")

	assert.Nil(t, parseStructuredFields("just a plain control number 123456"))
}

func TestIsHEIC(t *testing.T) {
	heicHeader := append([]byte{0, 0, 0, 24}, []byte("ftypheic")...)
	heicHeader = append(heicHeader, make([]byte, 8)...)
	assert.True(t, isHEIC(heicHeader))

	assert.False(t, isHEIC([]byte("\x89PNG\r\n\x1a\n00000000")))
	assert.False(t, isHEIC([]byte("short")))
}
