// Package vision calls Gemini on the raw receipt image when the local OCR
// pass is not confident enough. It is the fallback for fuel-domain fields
// (litres, fuel type, price/litre) that regex extraction handles poorly.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/okoa-labs/fuelscan/internal/entity"
)

// Hints ground the prompt with the best currently-known values so the model
// confirms rather than invents.
type Hints struct {
	MerchantName  string  `json:"merchant_name,omitempty"`
	TotalAmount   float64 `json:"total_amount,omitempty"`
	InvoiceNumber string  `json:"invoice_number,omitempty"`
	TxDate        string  `json:"tx_date,omitempty"`
}

type Config struct {
	APIKey      string
	Model       string // default "gemini-1.5-flash"
	Timeout     time.Duration
	Temperature float32
}

type Client struct {
	cfg    Config
	client *genai.Client
	model  *genai.GenerativeModel
	logger *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)

	return &Client{cfg: cfg, client: client, model: model, logger: logger}, nil
}

// Extract sends the receipt image plus hints and returns the parsed field
// set. Any failure is non-fatal to the caller: the pipeline falls back to
// the local pass alone.
func (c *Client) Extract(ctx context.Context, imageBytes []byte, hints Hints) (*entity.Extraction, error) {
	rid := uuid.New().String()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.logger.Info("vision.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"image_bytes", len(imageBytes),
		"has_hints", hints != (Hints{}),
	)

	// the pipeline re-encodes exotic formats to PNG but passes JPEG and
	// PNG through untouched, so the blob label must follow the bytes
	parts := []genai.Part{
		genai.ImageData(imageFormat(imageBytes), imageBytes),
		genai.Text(buildPrompt(hints)),
	}

	resp, err := c.model.GenerateContent(ctx, parts...)
	if err != nil {
		c.logger.Error("vision.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		c.logger.Error("vision.extract.empty_response", "req_id", rid)
		return nil, fmt.Errorf("no response from gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	ext, err := parseResponse(sb.String())
	if err != nil {
		c.logger.Error("vision.extract.schema_validation_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("parsing vision response: %w", err)
	}

	c.logger.Info("vision.extract.ok",
		"req_id", rid,
		"merchant", ext.MerchantName,
		"total", ext.TotalAmount,
		"litres", ext.Litres,
		"fuel_type", ext.FuelType,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return ext, nil
}

// Close releases the underlying Gemini client.
func (c *Client) Close() error {
	return c.client.Close()
}

// imageFormat sniffs the bytes for the blob's declared format.
func imageFormat(data []byte) string {
	if len(data) > 2 && data[0] == 0xFF && data[1] == 0xD8 {
		return "jpeg"
	}
	return "png"
}

func buildPrompt(hints Hints) string {
	parts := []string{
		"You are analyzing a photographed fuel station receipt from Kenya.",
		"Read all text carefully and extract these fields:",
		"merchant_name (station name from the header),",
		"total_amount (grand total in KES, numeric),",
		"tx_date (ISO 8601, YYYY-MM-DD),",
		"litres (fuel volume dispensed, numeric),",
		"fuel_type (one of PETROL, DIESEL, KEROSENE, LPG),",
		"price_per_litre (unit price in KES, numeric),",
		"pump_number and vehicle_reg when printed.",
		"Return ONLY a JSON object with those keys. Omit a key when the",
		"receipt does not show it. Do not use markdown code blocks.",
	}
	if hints != (Hints{}) {
		b, _ := json.Marshal(hints)
		parts = append(parts,
			"Independently verified context for this receipt (trust it over",
			"your own reading when they conflict): "+string(b))
	}
	return strings.Join(parts, " ")
}
