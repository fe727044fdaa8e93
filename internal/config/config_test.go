package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "console", cfg.Logger().Format)
	assert.Equal(t, "browserpilot", cfg.Logger().ServiceName)
	assert.Equal(t, "http://127.0.0.1:8800", cfg.API().BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API().DialTimeout)
	assert.Equal(t, "chromium", cfg.Browser().Type)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 3, cfg.Browser().MaxRetries)
	assert.NotEmpty(t, cfg.Settings().Path)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("api:\n  base_url: https://pilot.internal:9443\nbrowser:\n  type: firefox\n  headless: false\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "https://pilot.internal:9443", cfg.API().BaseURL)
	assert.Equal(t, "firefox", cfg.Browser().Type)
	assert.False(t, cfg.Browser().Headless)
	// Defaults still fill the gaps.
	assert.Equal(t, "info", cfg.Logger().Level)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("BROWSERPILOT_API_BASE_URL", "http://override:1234")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "http://override:1234", cfg.API().BaseURL)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logger: [not a map"), 0o600))

	_, err := Load(viper.New(), path)
	assert.Error(t, err)
}
