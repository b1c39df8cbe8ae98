// Package config provides configuration structures and validation for the
// application: HTTP server, pipeline thresholds, external clients and storage.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration. Each field covers one
// subsystem and is validated during startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Authority   AuthorityConfig
	OCR         OCRConfig
	Vision      VisionConfig
	Pipeline    PipelineConfig
	Database    DatabaseConfig
	WorkerPool  WorkerPoolConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxUploadBytes  int64 // cap on the receipt image body
}

// AuthorityConfig configures the KRA invoice-checker client.
type AuthorityConfig struct {
	HostSuffix string        // hosts under this suffix are treated as the authority
	Timeout    time.Duration // bound on the whole fetch
	UserAgent  string        // the portal rejects unfamiliar clients
}

// OCRConfig configures the local tesseract pass.
type OCRConfig struct {
	Tesseract           string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang       string // default "eng"
	TessdataDir         string
	PSM                 int // e.g. 6 is good for a uniform block of text
	OEM                 int // 1 = LSTM; 0 uses the default
	EnableTSVConfidence bool
	ArtifactCacheDir    string
}

// VisionConfig configures the Gemini fallback client.
type VisionConfig struct {
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float32
}

// PipelineConfig holds the reconciliation pipeline thresholds.
type PipelineConfig struct {
	VisionThreshold float64       // local confidence below this triggers the fallback
	StageTimeout    time.Duration // ceiling for one full invocation
}

// DatabaseConfig contains storage configuration
type DatabaseConfig struct {
	Path string // sqlite file path
}

// WorkerPoolConfig bounds concurrent receipt processing.
type WorkerPoolConfig struct {
	Size int
}

// Validate checks the configuration for values that would break startup.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server port must be between 1 and 65535")
	}
	if c.Authority.HostSuffix == "" {
		problems = append(problems, "authority host suffix is required")
	}
	if c.Authority.Timeout <= 0 {
		problems = append(problems, "authority timeout must be positive")
	}
	if c.Pipeline.VisionThreshold < 0 || c.Pipeline.VisionThreshold > 100 {
		problems = append(problems, "vision threshold must be within 0..100")
	}
	if c.Database.Path == "" {
		problems = append(problems, "database path is required")
	}
	if c.WorkerPool.Size <= 0 {
		problems = append(problems, "worker pool size must be positive")
	}
	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
