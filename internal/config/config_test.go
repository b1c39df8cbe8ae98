package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "kra.go.ke", cfg.Authority.HostSuffix)
	assert.Equal(t, 10*time.Second, cfg.Authority.Timeout)
	assert.Equal(t, "tesseract", cfg.OCR.Tesseract)
	assert.True(t, cfg.OCR.EnableTSVConfidence)
	assert.Equal(t, "gemini-1.5-flash", cfg.Vision.Model)
	assert.Equal(t, 70.0, cfg.Pipeline.VisionThreshold)
	assert.Equal(t, "./fuelscan.db", cfg.Database.Path)
	assert.Equal(t, 8, cfg.WorkerPool.Size)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("AUTHORITY_HOST_SUFFIX", "sandbox.kra.go.ke")
	t.Setenv("PIPELINE_VISION_THRESHOLD", "55")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sandbox.kra.go.ke", cfg.Authority.HostSuffix)
	assert.Equal(t, 55.0, cfg.Pipeline.VisionThreshold)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "-1")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server port")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server port")
	assert.Contains(t, err.Error(), "authority host suffix")
	assert.Contains(t, err.Error(), "database path")
}
