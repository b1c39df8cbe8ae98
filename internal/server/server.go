// Package server exposes the receipt pipeline over HTTP. Uploads run on a
// bounded worker pool so a burst of receipts cannot exhaust the host.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/panjf2000/ants/v2"

	"github.com/okoa-labs/fuelscan/constants"
	"github.com/okoa-labs/fuelscan/internal/entity"
	"github.com/okoa-labs/fuelscan/internal/export"
	"github.com/okoa-labs/fuelscan/internal/pipeline"
	"github.com/okoa-labs/fuelscan/internal/store"
)

// Processor runs one receipt through the reconciliation pipeline.
type Processor interface {
	Process(ctx context.Context, imageBytes []byte) (entity.ReconciledTransaction, error)
}

type Config struct {
	MaxUploadBytes int64
	WorkerPoolSize int
}

type Server struct {
	cfg       Config
	processor Processor
	store     store.TransactionStore
	exporter  *export.Service
	pool      *ants.Pool
	logger    *slog.Logger
}

func New(cfg Config, processor Processor, st store.TransactionStore, exporter *export.Service, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 15 << 20
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 8
	}
	pool, err := ants.NewPool(cfg.WorkerPoolSize)
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	return &Server{
		cfg:       cfg,
		processor: processor,
		store:     st,
		exporter:  exporter,
		pool:      pool,
		logger:    logger,
	}, nil
}

// Close releases the worker pool.
func (s *Server) Close() {
	s.pool.Release()
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		v1.POST("/receipts/scan", s.handleScan)
		v1.GET("/transactions", s.handleList)
		v1.GET("/transactions/export", s.handleExport)
	}
	return r
}

// scanResponse is the upload-boundary contract. A failed reconciliation
// still carries whatever partial fields were resolved.
type scanResponse struct {
	Success          bool    `json:"success"`
	Merchant         *string `json:"merchant"`
	Amount           float64 `json:"amount"`
	Date             *string `json:"date"`
	KRAVerified      bool    `json:"kra_verified"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
}

func (s *Server) handleScan(c *gin.Context) {
	imageBytes, err := s.readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// run on the pool; the request blocks until its slot produces a result
	type result struct {
		tx  entity.ReconciledTransaction
		err error
	}
	resCh := make(chan result, 1)
	ctx := c.Request.Context()
	if err := s.pool.Submit(func() {
		tx, perr := s.processor.Process(ctx, imageBytes)
		resCh <- result{tx: tx, err: perr}
	}); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server busy"})
		return
	}

	var res result
	select {
	case res = <-resCh:
	case <-ctx.Done():
		// client went away; the pipeline sees the same cancellation
		c.Status(http.StatusRequestTimeout)
		return
	}

	if res.err != nil && errors.Is(res.err, pipeline.ErrUnreadableImage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image could not be read"})
		return
	}

	tx := res.tx
	success := res.err == nil // only ErrNoUsableTotal reaches here

	if success {
		if err := s.store.Save(ctx, &tx); err != nil {
			s.logger.Error("server.save.failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not persist transaction"})
			return
		}
	}

	resp := scanResponse{
		Success:          success,
		Amount:           tx.Amount.Value,
		KRAVerified:      tx.KRAVerified,
		ProcessingTimeMs: tx.ProcessingTimeMs,
	}
	if tx.Merchant.Value != "" {
		resp.Merchant = &tx.Merchant.Value
	}
	if !tx.TxDate.Value.IsZero() {
		d := tx.TxDate.Value.Format("2006-01-02")
		resp.Date = &d
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleList(c *gin.Context) {
	from, err := parseDateQuery(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from invalid (YYYY-MM-DD)"})
		return
	}
	to, err := parseDateQuery(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to invalid (YYYY-MM-DD)"})
		return
	}

	txs, err := s.store.List(c.Request.Context(), from, to)
	if err != nil {
		s.logger.Error("server.list.failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list transactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}

func (s *Server) handleExport(c *gin.Context) {
	from, err := parseDateQuery(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from invalid (YYYY-MM-DD)"})
		return
	}
	to, err := parseDateQuery(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to invalid (YYYY-MM-DD)"})
		return
	}

	data, err := s.exporter.ExportXLSX(c.Request.Context(), from, to)
	if err != nil {
		s.logger.Error("server.export.failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not export transactions"})
		return
	}
	filename := fmt.Sprintf("fuel-transactions-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// readImage accepts either a multipart "image" field or a raw image body.
func (s *Server) readImage(c *gin.Context) ([]byte, error) {
	contentType := c.GetHeader("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, fmt.Errorf("missing image field")
		}
		if ext := filepath.Ext(fh.Filename); ext != "" {
			if _, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]; !ok {
				return nil, fmt.Errorf("unsupported image type %q", ext)
			}
		}
		if fh.Size > s.cfg.MaxUploadBytes {
			return nil, fmt.Errorf("image exceeds %d bytes", s.cfg.MaxUploadBytes)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("opening upload: %w", err)
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes))
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", s.cfg.MaxUploadBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	return data, nil
}

func parseDateQuery(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
