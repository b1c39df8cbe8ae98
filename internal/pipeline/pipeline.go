// Package pipeline coordinates one receipt-processing invocation: code
// decode + authority verification run concurrently with the local OCR pass,
// the vision fallback fires on a confidence guard, and the reconciliation
// engine is the join point.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/okoa-labs/fuelscan/constants"
	"github.com/okoa-labs/fuelscan/internal/barcode"
	"github.com/okoa-labs/fuelscan/internal/entity"
	"github.com/okoa-labs/fuelscan/internal/reconcile"
	"github.com/okoa-labs/fuelscan/internal/vision"
)

// ErrUnreadableImage is the only HTTP-level failure: the upload could not
// be decoded as an image at all.
var ErrUnreadableImage = errors.New("image could not be decoded")

// ErrNoUsableTotal marks the single fatal pipeline outcome: no source
// produced a usable total amount. The record still carries partial fields.
var ErrNoUsableTotal = errors.New("no usable total amount from any source")

// CodeDecoder finds and decodes a machine-readable code in the image.
type CodeDecoder interface {
	Locate(ctx context.Context, imageBytes []byte) (*entity.DecodedCode, error)
}

// AuthorityClient verifies an invoice URL against the authority.
type AuthorityClient interface {
	IsAuthorityURL(url string) bool
	Verify(ctx context.Context, url string) (*entity.AuthorityInvoice, error)
}

// TextExtractor runs the local OCR pass over an image file.
type TextExtractor interface {
	Extract(ctx context.Context, path string, expectedTotal float64) entity.Extraction
}

// VisionExtractor is the cloud fallback for low-confidence local passes.
type VisionExtractor interface {
	Extract(ctx context.Context, imageBytes []byte, hints vision.Hints) (*entity.Extraction, error)
}

type Config struct {
	VisionThreshold  float64       // local confidence below this triggers the fallback
	ArtifactCacheDir string        // scratch dir for the OCR input file
	StageTimeout     time.Duration // ceiling for one full invocation; 0 disables
}

type Pipeline struct {
	cfg       Config
	decoder   CodeDecoder
	authority AuthorityClient
	local     TextExtractor
	vision    VisionExtractor // nil disables the fallback
	engine    *reconcile.Engine
	logger    *slog.Logger
}

func New(
	cfg Config,
	decoder CodeDecoder,
	authority AuthorityClient,
	local TextExtractor,
	visionClient VisionExtractor,
	engine *reconcile.Engine,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.VisionThreshold <= 0 {
		cfg.VisionThreshold = 70
	}
	if cfg.ArtifactCacheDir == "" {
		cfg.ArtifactCacheDir = os.TempDir()
	}
	if engine == nil {
		engine = reconcile.NewEngine(nil)
	}
	return &Pipeline{
		cfg:       cfg,
		decoder:   decoder,
		authority: authority,
		local:     local,
		vision:    visionClient,
		engine:    engine,
		logger:    logger,
	}
}

// codeResult is the output of the decode → authority chain.
type codeResult struct {
	code    *entity.DecodedCode
	invoice *entity.AuthorityInvoice
}

// Process runs the whole pipeline for one receipt image. Stage failures are
// converted to absence-of-data at their own boundary; the engine only ever
// sees optional inputs. ErrNoUsableTotal is returned alongside the record
// when no source resolved a total.
func (p *Pipeline) Process(ctx context.Context, imageBytes []byte) (entity.ReconciledTransaction, error) {
	start := time.Now()
	sm := newStateMachine(p.logger)

	if p.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.StageTimeout)
		defer cancel()
	}

	pngBytes, err := normalizeImage(imageBytes)
	if err != nil {
		return entity.ReconciledTransaction{}, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}

	ocrPath, cleanup, err := p.writeArtifact(pngBytes)
	if err != nil {
		return entity.ReconciledTransaction{}, err
	}
	defer cleanup()

	// The decode→authority chain and the OCR pass have no data dependency
	// on each other. Each goroutine owns its channel and always sends
	// exactly once, so the join below cannot deadlock.
	codeCh := make(chan codeResult, 1)
	localCh := make(chan entity.Extraction, 1)

	go func() {
		codeCh <- p.decodeAndVerify(ctx, pngBytes, sm)
	}()
	go func() {
		localCh <- p.local.Extract(ctx, ocrPath, 0)
	}()

	cr := <-codeCh
	local := <-localCh
	sm.advance(stateLocallyExtracted, "confidence", local.Confidence)

	// guard: the fallback fires only below the canonical threshold, and
	// only while the caller has not gone away
	var visionExt *entity.Extraction
	if p.vision != nil && local.Confidence < p.cfg.VisionThreshold && ctx.Err() == nil {
		visionExt = p.runVision(ctx, pngBytes, cr)
	}
	sm.advance(stateVisionChecked, "triggered", visionExt != nil)

	tx := p.engine.Merge(cr.code, cr.invoice, local, visionExt)
	tx.ProcessingTimeMs = time.Since(start).Milliseconds()
	sm.advance(stateReconciled, "status", tx.OverallStatus)

	if tx.OverallStatus == constants.StatusError {
		return tx, ErrNoUsableTotal
	}
	return tx, nil
}

// decodeAndVerify runs the locate stage and, when the payload points at the
// authority, the verification fetch. Both failures are non-fatal.
func (p *Pipeline) decodeAndVerify(ctx context.Context, imageBytes []byte, sm *stateMachine) codeResult {
	var out codeResult

	code, err := p.decoder.Locate(ctx, imageBytes)
	if err != nil {
		if !errors.Is(err, barcode.ErrNoCodeFound) {
			p.logger.Warn("pipeline.decode.failed", "error", err)
		}
		sm.advance(stateDecoded, "found", false)
		sm.advance(stateAuthorityChecked, "skipped", true)
		return out
	}
	out.code = code
	sm.advance(stateDecoded, "found", true, "format", code.Format)

	if code.InvoiceURL == "" || !p.authority.IsAuthorityURL(code.InvoiceURL) {
		sm.advance(stateAuthorityChecked, "skipped", true)
		return out
	}

	invoice, err := p.authority.Verify(ctx, code.InvoiceURL)
	if err != nil {
		// absence of data, already logged by the client
		sm.advance(stateAuthorityChecked, "verified", false)
		return out
	}
	out.invoice = invoice
	sm.advance(stateAuthorityChecked, "verified", invoice.Verified)
	return out
}

// runVision calls the fallback with the best currently-known hints:
// the authority invoice when present, otherwise the QR-derived fields.
func (p *Pipeline) runVision(ctx context.Context, imageBytes []byte, cr codeResult) *entity.Extraction {
	var hints vision.Hints
	switch {
	case cr.invoice != nil:
		hints.MerchantName = cr.invoice.MerchantName
		hints.InvoiceNumber = cr.invoice.InvoiceNumber
		if cr.invoice.TotalAmount != nil {
			hints.TotalAmount = *cr.invoice.TotalAmount
		}
		if !cr.invoice.InvoiceDate.IsZero() {
			hints.TxDate = cr.invoice.InvoiceDate.Format("2006-01-02")
		}
	case cr.code != nil:
		hints.MerchantName = cr.code.Fields["merchant"]
		hints.InvoiceNumber = cr.code.Fields["invoice"]
	}

	ext, err := p.vision.Extract(ctx, imageBytes, hints)
	if err != nil {
		// degraded-confidence path, not an error
		p.logger.Warn("pipeline.vision.failed", "error", err)
		return nil
	}
	return ext
}

// normalizeImage re-encodes exotic formats (HEIC, WebP, GIF) as PNG so both
// tesseract and the vision API can consume them. JPEG and PNG pass through.
func normalizeImage(data []byte) ([]byte, error) {
	if isJPEG(data) || isPNG(data) {
		return data, nil
	}
	img, err := barcode.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("re-encoding image: %w", err)
	}
	return buf.Bytes(), nil
}

func isJPEG(data []byte) bool {
	return len(data) > 2 && data[0] == 0xFF && data[1] == 0xD8
}

func isPNG(data []byte) bool {
	return len(data) > 8 && bytes.Equal(data[:8], []byte("\x89PNG\r\n\x1a\n"))
}

func (p *Pipeline) writeArtifact(data []byte) (string, func(), error) {
	if err := os.MkdirAll(p.cfg.ArtifactCacheDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("artifact dir: %w", err)
	}
	f, err := os.CreateTemp(p.cfg.ArtifactCacheDir, "receipt-*.png")
	if err != nil {
		return "", nil, fmt.Errorf("artifact file: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("writing artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return filepath.Clean(path), cleanup, nil
}
