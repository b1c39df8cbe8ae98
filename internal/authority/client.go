// Package authority fetches and parses the KRA invoice-checker page that a
// receipt QR code points to. Whatever it returns is ground truth for the
// reconciliation engine.
package authority

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okoa-labs/fuelscan/internal/entity"
)

// Config configures the invoice-checker client.
type Config struct {
	HostSuffix string        // e.g. "kra.go.ke"
	Timeout    time.Duration // default 10s
	UserAgent  string        // the portal rejects unfamiliar clients
}

// Client scrapes the authority invoice page. Failures are logged and
// surfaced as errors; they are never fatal to the pipeline.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HostSuffix == "" {
		cfg.HostSuffix = "kra.go.ke"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// IsAuthorityURL reports whether the URL points at the invoice authority.
func (c *Client) IsAuthorityURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == c.cfg.HostSuffix || strings.HasSuffix(host, "."+c.cfg.HostSuffix)
}

// Verify fetches the invoice page and parses the label/value table.
// A partially-parsed page yields whatever fields were found with
// Verified=false; it is never thrown away.
func (c *Client) Verify(ctx context.Context, rawURL string) (*entity.AuthorityInvoice, error) {
	start := time.Now()
	if !c.IsAuthorityURL(rawURL) {
		return nil, fmt.Errorf("url host is not the invoice authority: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build authority request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("authority.fetch.failed",
			"url", rawURL, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("authority fetch: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("authority response body close error", "error", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("authority.fetch.bad_status",
			"url", rawURL, "status", resp.StatusCode,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("authority status %d", resp.StatusCode)
	}

	inv, err := parseInvoicePage(resp.Body)
	if err != nil {
		c.logger.Warn("authority.parse.failed", "url", rawURL, "error", err)
		return nil, fmt.Errorf("authority parse: %w", err)
	}

	c.logger.Info("authority.verify.ok",
		"invoice_number", inv.InvoiceNumber,
		"verified", inv.Verified,
		"has_total", inv.TotalAmount != nil,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return inv, nil
}
