package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Load reads configuration in layers: defaults, then an optional config file
// (".env" style, looked up in ./configs and the working directory), then
// environment variables. The result is validated before use.
func Load(configName string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configName != "" {
		v.SetConfigName(fmt.Sprintf("%s.env", configName))
		v.SetConfigType("env")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	v.AutomaticEnv()

	cfg := &Config{
		Application: ApplicationConfig{
			Env:  v.GetString("APP_ENV"),
			Name: v.GetString("APP_NAME"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		Server: ServerConfig{
			Port:            v.GetInt("SERVER_PORT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			MaxUploadBytes:  v.GetInt64("SERVER_MAX_UPLOAD_BYTES"),
		},
		Authority: AuthorityConfig{
			HostSuffix: v.GetString("AUTHORITY_HOST_SUFFIX"),
			Timeout:    v.GetDuration("AUTHORITY_TIMEOUT"),
			UserAgent:  v.GetString("AUTHORITY_USER_AGENT"),
		},
		OCR: OCRConfig{
			Tesseract:           v.GetString("OCR_TESSERACT"),
			TesseractLang:       v.GetString("OCR_TESSERACT_LANG"),
			TessdataDir:         v.GetString("TESSDATA_PREFIX"),
			PSM:                 v.GetInt("OCR_PSM"),
			OEM:                 v.GetInt("OCR_OEM"),
			EnableTSVConfidence: v.GetBool("OCR_ENABLE_TSV_CONFIDENCE"),
			ArtifactCacheDir:    v.GetString("ARTIFACT_CACHE_DIR"),
		},
		Vision: VisionConfig{
			APIKey:      v.GetString("GEMINI_API_KEY"),
			Model:       v.GetString("GEMINI_MODEL"),
			Timeout:     v.GetDuration("GEMINI_TIMEOUT"),
			Temperature: float32(v.GetFloat64("GEMINI_TEMPERATURE")),
		},
		Pipeline: PipelineConfig{
			VisionThreshold: v.GetFloat64("PIPELINE_VISION_THRESHOLD"),
			StageTimeout:    v.GetDuration("PIPELINE_STAGE_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("DB_PATH"),
		},
		WorkerPool: WorkerPoolConfig{
			Size: v.GetInt("WORKER_POOL_SIZE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults initializes configuration with sensible default values,
// used when no configuration file or environment variables are present.
func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "fuelscan")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 60*time.Second)
	v.SetDefault("SERVER_MAX_UPLOAD_BYTES", int64(15<<20))

	v.SetDefault("AUTHORITY_HOST_SUFFIX", "kra.go.ke")
	v.SetDefault("AUTHORITY_TIMEOUT", 10*time.Second)
	v.SetDefault("AUTHORITY_USER_AGENT",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")

	v.SetDefault("OCR_TESSERACT", "tesseract")
	v.SetDefault("OCR_TESSERACT_LANG", "eng")
	v.SetDefault("OCR_PSM", 6)
	v.SetDefault("OCR_ENABLE_TSV_CONFIDENCE", true)
	v.SetDefault("ARTIFACT_CACHE_DIR", "./tmp")

	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("GEMINI_TIMEOUT", 30*time.Second)
	v.SetDefault("GEMINI_TEMPERATURE", 0.0)

	// one canonical threshold; the pipeline has no per-call-site overrides
	v.SetDefault("PIPELINE_VISION_THRESHOLD", 70.0)
	v.SetDefault("PIPELINE_STAGE_TIMEOUT", 45*time.Second)

	v.SetDefault("DB_PATH", "./fuelscan.db")
	v.SetDefault("WORKER_POOL_SIZE", 8)
}
