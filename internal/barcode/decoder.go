package barcode

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"net/url"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/okoa-labs/fuelscan/internal/entity"
)

// ErrNoCodeFound means the image carries no decodable code. Non-fatal: the
// pipeline proceeds without authority data.
var ErrNoCodeFound = errors.New("no machine-readable code found")

// Decoder locates and decodes QR/barcodes on receipt images.
type Decoder struct {
	logger  *slog.Logger
	readers []gozxing.Reader
}

func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		logger: logger,
		// QR first: that is what KRA receipts carry. The 1D readers cover
		// older tills that print Code128/EAN control numbers.
		readers: []gozxing.Reader{
			qrcode.NewQRCodeReader(),
			oned.NewCode128Reader(),
			oned.NewEAN13Reader(),
		},
	}
}

// Locate decodes the first non-empty code in the image. Both polarities are
// tried because receipt photos are low-contrast and thermal-printed.
// Pure: no side effects beyond reading the given bytes.
func (d *Decoder) Locate(ctx context.Context, imageBytes []byte) (*entity.DecodedCode, error) {
	img, err := DecodeImage(imageBytes)
	if err != nil {
		return nil, err
	}

	gray := grayscale(img)
	for _, frame := range []*image.Gray{gray, invert(gray)} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if code := d.scan(frame); code != nil {
			d.logger.Debug("barcode.decode.ok",
				"format", code.Format,
				"has_url", code.InvoiceURL != "",
				"text_len", len(code.RawText),
			)
			return code, nil
		}
	}
	return nil, ErrNoCodeFound
}

// scan runs every reader over one polarity; first non-empty hit wins,
// ties broken by scan order.
func (d *Decoder) scan(frame *image.Gray) *entity.DecodedCode {
	src := gozxing.NewLuminanceSourceFromImage(frame)
	bmp, err := gozxing.NewBinaryBitmap(gozxing.NewHybridBinarizer(src))
	if err != nil {
		return nil
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	for _, reader := range d.readers {
		result, err := reader.Decode(bmp, hints)
		if err != nil || result == nil {
			continue
		}
		text := strings.TrimSpace(result.GetText())
		if text == "" {
			continue
		}
		return &entity.DecodedCode{
			RawText:    text,
			Format:     result.GetBarcodeFormat().String(),
			InvoiceURL: deriveURL(text),
			Fields:     parseStructuredFields(text),
		}
	}
	return nil
}

// deriveURL extracts a usable URL from the payload: either the whole text
// is a URL, or one is embedded in a structured blob.
func deriveURL(text string) string {
	for _, tok := range strings.Fields(text) {
		tok = strings.Trim(tok, ";,")
		u, err := url.Parse(tok)
		if err != nil {
			continue
		}
		if (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
			return u.String()
		}
	}
	return ""
}

// parseStructuredFields parses merchant-asserted "key:value" payloads,
// tolerating ";" and newline separators. A bare URL yields no fields.
func parseStructuredFields(text string) map[string]string {
	seps := func(r rune) bool { return r == ';' || r == '\n' }
	fields := make(map[string]string)
	for _, part := range strings.FieldsFunc(text, seps) {
		part = strings.TrimSpace(part)
		// don't split the "https:" of an embedded URL
		if strings.Contains(part, "://") {
			continue
		}
		key, value, found := strings.Cut(part, ":")
		if !found {
			key, value, found = strings.Cut(part, "=")
		}
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key != "" && value != "" {
			fields[key] = value
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
