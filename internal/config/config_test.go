package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8082", cfg.HTTPAddr)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, "gemini-1.5-flash", cfg.GeminiModel)
	assert.Equal(t, "gemini", cfg.FastProvider)
	assert.Equal(t, "anthropic", cfg.CapableProvider)
	assert.Equal(t, 50, cfg.DailyQuota)
	assert.Equal(t, 3, cfg.TextMaxAttempts)
	assert.Equal(t, 2, cfg.ImageMaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, 90*time.Second, cfg.OverallTimeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("DAILY_QUOTA", "5")
	t.Setenv("RETRY_BASE_DELAY", "250ms")

	cfg := Load()
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, 5, cfg.DailyQuota)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
}

func TestLoadIgnoresMalformedEnvValues(t *testing.T) {
	t.Setenv("DAILY_QUOTA", "lots")
	t.Setenv("RETRY_MAX_DELAY", "soon")

	cfg := Load()
	assert.Equal(t, 50, cfg.DailyQuota)
	assert.Equal(t, 30*time.Second, cfg.RetryMaxDelay)
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"daily_quota: 7\nfast_provider: anthropic\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DAILY_QUOTA", "99")

	cfg := Load()
	// File values win over env, env defaults survive for omitted fields.
	assert.Equal(t, 7, cfg.DailyQuota)
	assert.Equal(t, "anthropic", cfg.FastProvider)
	assert.Equal(t, "anthropic", cfg.CapableProvider)
	assert.Equal(t, ":8082", cfg.HTTPAddr)
}

func TestLoadPanicsOnUnreadableConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Panics(t, func() { Load() })
}
