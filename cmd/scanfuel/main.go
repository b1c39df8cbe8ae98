// Command scanfuel runs a single receipt image through the reconciliation
// pipeline and prints the resulting record as JSON. It is the development
// harness for tuning extraction without standing up the HTTP service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/okoa-labs/fuelscan/constants"
	"github.com/okoa-labs/fuelscan/internal/authority"
	"github.com/okoa-labs/fuelscan/internal/barcode"
	"github.com/okoa-labs/fuelscan/internal/config"
	"github.com/okoa-labs/fuelscan/internal/ocr"
	"github.com/okoa-labs/fuelscan/internal/pipeline"
	"github.com/okoa-labs/fuelscan/internal/reconcile"
	"github.com/okoa-labs/fuelscan/internal/vision"
)

func main() {
	var (
		imagePath = flag.String("image", "", "path to the receipt image (required)")
		timeout   = flag.Duration("timeout", 90*time.Second, "ceiling for the whole run")
		noVision  = flag.Bool("no-vision", false, "disable the Gemini fallback even when an API key is set")
		verbose   = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *imagePath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if ext := filepath.Ext(*imagePath); ext != "" {
		if _, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]; !ok {
			fmt.Fprintf(os.Stderr, "unsupported image type %q\n", ext)
			os.Exit(2)
		}
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load("fuelscan")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	imageBytes, err := os.ReadFile(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading image: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var visionClient pipeline.VisionExtractor
	if !*noVision && cfg.Vision.APIKey != "" {
		vc, err := vision.NewClient(ctx, vision.Config{
			APIKey:      cfg.Vision.APIKey,
			Model:       cfg.Vision.Model,
			Timeout:     cfg.Vision.Timeout,
			Temperature: cfg.Vision.Temperature,
		}, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vision client: %v\n", err)
			os.Exit(1)
		}
		defer vc.Close()
		visionClient = vc
	}

	pipe := pipeline.New(
		pipeline.Config{
			VisionThreshold:  cfg.Pipeline.VisionThreshold,
			ArtifactCacheDir: cfg.OCR.ArtifactCacheDir,
			StageTimeout:     cfg.Pipeline.StageTimeout,
		},
		barcode.NewDecoder(logger),
		authority.NewClient(authority.Config{
			HostSuffix: cfg.Authority.HostSuffix,
			Timeout:    cfg.Authority.Timeout,
			UserAgent:  cfg.Authority.UserAgent,
		}, logger),
		ocr.NewExtractor(ocr.Config{
			Tesseract:           cfg.OCR.Tesseract,
			TesseractLang:       cfg.OCR.TesseractLang,
			TessdataDir:         cfg.OCR.TessdataDir,
			PSM:                 cfg.OCR.PSM,
			OEM:                 cfg.OCR.OEM,
			EnableTSVConfidence: cfg.OCR.EnableTSVConfidence,
		}, logger),
		visionClient,
		reconcile.NewEngine(nil),
		logger,
	)

	tx, procErr := pipe.Process(ctx, imageBytes)
	switch {
	case errors.Is(procErr, pipeline.ErrUnreadableImage):
		fmt.Fprintf(os.Stderr, "error: %v\n", procErr)
		os.Exit(1)
	case errors.Is(procErr, pipeline.ErrNoUsableTotal):
		fmt.Fprintln(os.Stderr, "warning: no usable total; printing partial record")
	case procErr != nil:
		fmt.Fprintf(os.Stderr, "error: %v\n", procErr)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encoding result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	if procErr != nil {
		os.Exit(1)
	}
}
