package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/gif"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okoa-labs/fuelscan/constants"
	"github.com/okoa-labs/fuelscan/internal/barcode"
	"github.com/okoa-labs/fuelscan/internal/entity"
	"github.com/okoa-labs/fuelscan/internal/reconcile"
	"github.com/okoa-labs/fuelscan/internal/vision"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

type fakeDecoder struct {
	code *entity.DecodedCode
	err  error
}

func (f *fakeDecoder) Locate(context.Context, []byte) (*entity.DecodedCode, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.code, nil
}

type fakeAuthority struct {
	invoice *entity.AuthorityInvoice
	err     error
	called  bool
}

func (f *fakeAuthority) IsAuthorityURL(raw string) bool { return raw != "" }

func (f *fakeAuthority) Verify(context.Context, string) (*entity.AuthorityInvoice, error) {
	f.called = true
	return f.invoice, f.err
}

type fakeLocal struct {
	ext entity.Extraction
}

func (f *fakeLocal) Extract(context.Context, string, float64) entity.Extraction { return f.ext }

type fakeVision struct {
	ext    *entity.Extraction
	err    error
	called bool
	hints  vision.Hints
}

func (f *fakeVision) Extract(_ context.Context, _ []byte, hints vision.Hints) (*entity.Extraction, error) {
	f.called = true
	f.hints = hints
	return f.ext, f.err
}

func ptr(f float64) *float64 { return &f }

func goodLocal(conf float64) entity.Extraction {
	return entity.Extraction{
		MerchantName: "SHELL WESTLANDS",
		TotalAmount:  5000,
		TxDate:       time.Now().UTC().AddDate(0, 0, -1),
		Confidence:   conf,
		Source:       constants.SourceLocal,
	}
}

func newTestPipeline(dec *fakeDecoder, auth *fakeAuthority, local *fakeLocal, vis *fakeVision) *Pipeline {
	var v VisionExtractor
	if vis != nil {
		v = vis
	}
	return New(
		Config{VisionThreshold: 70, ArtifactCacheDir: ""},
		dec, auth, local, v,
		reconcile.NewEngine(nil),
		nil,
	)
}

func TestProcessHighConfidenceSkipsVision(t *testing.T) {
	vis := &fakeVision{ext: &entity.Extraction{TotalAmount: 9999}}
	p := newTestPipeline(
		&fakeDecoder{err: barcode.ErrNoCodeFound},
		&fakeAuthority{},
		&fakeLocal{ext: goodLocal(85)},
		vis,
	)

	tx, err := p.Process(context.Background(), testPNG(t))
	require.NoError(t, err)

	assert.False(t, vis.called, "fallback must not fire above the threshold")
	assert.Equal(t, 5000.0, tx.Amount.Value)
	assert.GreaterOrEqual(t, tx.ProcessingTimeMs, int64(0))
}

func TestProcessLowConfidenceTriggersVisionWithInvoiceHints(t *testing.T) {
	vis := &fakeVision{ext: &entity.Extraction{MerchantName: "SHELL WESTLANDS", TotalAmount: 5000}}
	invoice := &entity.AuthorityInvoice{
		InvoiceNumber: "0070000001234567",
		MerchantName:  "SHELL WESTLANDS",
		TotalAmount:   ptr(5000),
		Verified:      true,
	}
	p := newTestPipeline(
		&fakeDecoder{code: &entity.DecodedCode{InvoiceURL: "https://itax.kra.go.ke/view?id=1"}},
		&fakeAuthority{invoice: invoice},
		&fakeLocal{ext: goodLocal(40)},
		vis,
	)

	tx, err := p.Process(context.Background(), testPNG(t))
	require.NoError(t, err)

	assert.True(t, vis.called)
	assert.Equal(t, "SHELL WESTLANDS", vis.hints.MerchantName)
	assert.Equal(t, "0070000001234567", vis.hints.InvoiceNumber)
	assert.Equal(t, 5000.0, vis.hints.TotalAmount)
	assert.True(t, tx.KRAVerified)
	assert.Equal(t, constants.SourceAuthority, tx.Amount.Source)
}

func TestProcessWithoutVisionClient(t *testing.T) {
	p := newTestPipeline(
		&fakeDecoder{err: barcode.ErrNoCodeFound},
		&fakeAuthority{},
		&fakeLocal{ext: goodLocal(40)},
		nil,
	)

	tx, err := p.Process(context.Background(), testPNG(t))
	require.NoError(t, err)
	assert.Equal(t, 5000.0, tx.Amount.Value)
	assert.Equal(t, constants.StatusNeedsReview, tx.OverallStatus)
}

func TestProcessAuthorityFailureIsNonFatal(t *testing.T) {
	auth := &fakeAuthority{err: errors.New("portal timeout")}
	p := newTestPipeline(
		&fakeDecoder{code: &entity.DecodedCode{InvoiceURL: "https://itax.kra.go.ke/view?id=1"}},
		auth,
		&fakeLocal{ext: goodLocal(85)},
		nil,
	)

	tx, err := p.Process(context.Background(), testPNG(t))
	require.NoError(t, err)

	assert.True(t, auth.called)
	assert.False(t, tx.KRAVerified)
	assert.Equal(t, constants.SourceLocal, tx.Amount.Source)
}

func TestProcessVisionFailureIsNonFatal(t *testing.T) {
	vis := &fakeVision{err: errors.New("quota exceeded")}
	p := newTestPipeline(
		&fakeDecoder{err: barcode.ErrNoCodeFound},
		&fakeAuthority{},
		&fakeLocal{ext: goodLocal(40)},
		vis,
	)

	tx, err := p.Process(context.Background(), testPNG(t))
	require.NoError(t, err)
	assert.True(t, vis.called)
	assert.Equal(t, 5000.0, tx.Amount.Value)
}

func TestProcessUnreadableImage(t *testing.T) {
	p := newTestPipeline(&fakeDecoder{}, &fakeAuthority{}, &fakeLocal{}, nil)

	_, err := p.Process(context.Background(), []byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrUnreadableImage)
}

func TestProcessNoUsableTotal(t *testing.T) {
	local := entity.Extraction{MerchantName: "RUBIS KAREN", Confidence: 40}
	p := newTestPipeline(
		&fakeDecoder{err: barcode.ErrNoCodeFound},
		&fakeAuthority{},
		&fakeLocal{ext: local},
		nil,
	)

	tx, err := p.Process(context.Background(), testPNG(t))
	assert.ErrorIs(t, err, ErrNoUsableTotal)
	// partial record still comes back
	assert.Equal(t, "RUBIS KAREN", tx.Merchant.Value)
	assert.Equal(t, constants.StatusError, tx.OverallStatus)
}

func TestProcessNormalizesExoticFormats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil))

	p := newTestPipeline(
		&fakeDecoder{err: barcode.ErrNoCodeFound},
		&fakeAuthority{},
		&fakeLocal{ext: goodLocal(85)},
		nil,
	)

	_, err := p.Process(context.Background(), buf.Bytes())
	require.NoError(t, err)
}
