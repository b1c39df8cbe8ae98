package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/okoa-labs/fuelscan/internal/authority"
	"github.com/okoa-labs/fuelscan/internal/barcode"
	"github.com/okoa-labs/fuelscan/internal/config"
	"github.com/okoa-labs/fuelscan/internal/export"
	"github.com/okoa-labs/fuelscan/internal/ocr"
	"github.com/okoa-labs/fuelscan/internal/pipeline"
	"github.com/okoa-labs/fuelscan/internal/reconcile"
	"github.com/okoa-labs/fuelscan/internal/server"
	"github.com/okoa-labs/fuelscan/internal/store"
	"github.com/okoa-labs/fuelscan/internal/vision"
)

func main() {
	cfg, err := config.Load("fuelscan")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewSQLiteStore(cfg.Database.Path, logger)
	if err != nil {
		logger.Error("opening store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// vision is optional: without an API key the pipeline runs local-only
	var visionClient pipeline.VisionExtractor
	if cfg.Vision.APIKey != "" {
		vc, err := vision.NewClient(ctx, vision.Config{
			APIKey:      cfg.Vision.APIKey,
			Model:       cfg.Vision.Model,
			Timeout:     cfg.Vision.Timeout,
			Temperature: cfg.Vision.Temperature,
		}, logger)
		if err != nil {
			logger.Error("creating vision client", "error", err)
			os.Exit(1)
		}
		defer vc.Close()
		visionClient = vc
	} else {
		logger.Warn("GEMINI_API_KEY not set; vision fallback disabled")
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

	srv, err := server.New(server.Config{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		WorkerPoolSize: cfg.WorkerPool.Size,
	}, pipe, st, export.NewService(st, logger), logger)
	if err != nil {
		logger.Error("creating server", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr, "env", cfg.Application.Env)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
