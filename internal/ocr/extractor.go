// Package ocr runs the local text extraction pass: tesseract over the
// receipt image, normalization, ordered regex field passes and a single
// whole-pass confidence score.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/okoa-labs/fuelscan/internal/entity"
)

type Config struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "eng"
	TessdataDir   string

	PSM int // e.g. 6 is good for a uniform block of text
	OEM int // 1 = LSTM; leave 0 to use the default

	EnableTSVConfidence bool
}

// Extractor is the local text extractor. It never fails upward: OCR errors
// degrade confidence, they do not stop the pipeline.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Extract OCRs the image at path and regex-extracts candidate fields.
// expectedTotal, when non-zero, is a hint from an earlier source used in
// the confidence score. Always returns a usable (possibly empty) result.
func (e *Extractor) Extract(ctx context.Context, path string, expectedTotal float64) entity.Extraction {
	start := time.Now()

	txt, err := e.tesseractOCR(ctx, path)
	if err != nil {
		e.logger.Warn("ocr.extract.failed", "path", path, "error", err)
		return extractFields("") // empty, confidence 0
	}
	txt = Normalize(txt)

	var tsvConf float64
	if e.cfg.EnableTSVConfidence {
		if c, err2 := e.tesseractTSVConfidence(ctx, path); err2 == nil {
			tsvConf = c
		} else {
			e.logger.Debug("ocr.tsv_confidence.unavailable", "error", err2)
		}
	}

	ext := extractFields(txt)
	ext.Confidence = scoreExtraction(ext, tsvConf, expectedTotal)

	e.logger.Info("ocr.extract.ok",
		"path", path,
		"text_bytes", len(txt),
		"confidence", ext.Confidence,
		"has_total", ext.HasTotal(),
		"fuel_type", ext.FuelType,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return ext
}

func (e *Extractor) tesseractOCR(ctx context.Context, path string) (string, error) {
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 512))
	}
	return string(out), nil
}

// tesseractTSVConfidence runs tesseract in TSV mode and returns the mean
// word confidence in 0..100.
func (e *Extractor) tesseractTSVConfidence(ctx context.Context, path string) (float64, error) {
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, _, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return 0, fmt.Errorf("tesseract TSV: %w", err)
	}

	var sum, n float64
	for i, ln := range strings.Split(string(out), "\n") {
		if i == 0 || len(ln) == 0 {
			continue // header
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := cols[len(cols)-2]
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / n, nil
}
