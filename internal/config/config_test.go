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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.False(t, cfg.DevMode)
	assert.Equal(t, "http://api:8000", cfg.APIURL)
	assert.Equal(t, ":9090", cfg.ControlAddress)
	assert.Equal(t, ".run", cfg.RunDir)
	assert.Equal(t, "logs", cfg.LogDir)
	assert.Equal(t, 8501, cfg.UIPort)
	assert.Equal(t, 30, cfg.Health.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Health.Interval)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DEV_MODE", "1")
	t.Setenv("API_URL", "http://localhost:8000/")
	t.Setenv("STREAMLIT_SERVER_PORT", "9000")
	t.Setenv("HEALTH_MAX_RETRIES", "5")
	t.Setenv("HEALTH_INTERVAL", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.DevMode)
	assert.Equal(t, "http://localhost:8000", cfg.APIURL, "trailing slash should be trimmed")
	assert.Equal(t, 9000, cfg.UIPort)
	assert.Equal(t, 5, cfg.Health.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Health.Interval)
}

func TestDevModeSpellings(t *testing.T) {
	for _, v := range []string{"1", "true", "yes", "on", "TRUE"} {
		t.Setenv("DEV_MODE", v)
		cfg, err := Load("")
		require.NoError(t, err)
		assert.True(t, cfg.DevMode, "DEV_MODE=%s", v)
	}

	t.Setenv("DEV_MODE", "0")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.DevMode)
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("RUN_DIR=/tmp/stack-run\nLOG_DIR=/tmp/stack-logs\n"), 0o644))

	// godotenv does not override variables already set; make sure they are not.
	t.Setenv("RUN_DIR", "")
	t.Setenv("LOG_DIR", "")
	os.Unsetenv("RUN_DIR")
	os.Unsetenv("LOG_DIR")

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/stack-run", cfg.RunDir)
	assert.Equal(t, "/tmp/stack-logs", cfg.LogDir)
}

func TestLoadMissingDotEnvIsFine(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}

func TestInvalidPortRejected(t *testing.T) {
	t.Setenv("STREAMLIT_SERVER_PORT", "70000")
	_, err := Load("")
	assert.Error(t, err)
}
