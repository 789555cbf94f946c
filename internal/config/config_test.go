package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_OverridesOnlySpecifiedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log_level: debug
health:
  stuck_threshold: 2m
  max_retries: 5
  ai_recovery: true
workflow:
  staging_prefix: custom/staging
  max_concurrent: 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Minute, cfg.Health.StuckThreshold)
	assert.Equal(t, 5, cfg.Health.MaxRetries)
	assert.True(t, cfg.Health.AIRecovery)
	assert.Equal(t, "custom/staging", cfg.Workflow.StagingPrefix)
	assert.Equal(t, 8, cfg.Workflow.MaxConcurrent)

	// Untouched fields keep their defaults.
	assert.Equal(t, DefaultConfig().Cleanup, cfg.Cleanup)
	assert.Equal(t, DefaultConfig().Planner.DebounceDuration, cfg.Planner.DebounceDuration)
}

func TestLoadConfig_InvalidDurationIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "health:\n  stuck_threshold: not-a-duration\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := LoadConfig(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "stuck_threshold")
}

func TestLoadConfig_MalformedYAMLIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("health: [this is not a map"), 0644))

	_, err := LoadConfig(path)

	assert.Error(t, err)
}

func TestConfig_MergeWithFlags(t *testing.T) {
	cfg := DefaultConfig()
	maxConcurrent := 10
	updateDocs := false

	cfg.MergeWithFlags(&maxConcurrent, &updateDocs, nil)

	assert.Equal(t, 10, cfg.Workflow.MaxConcurrent)
	assert.False(t, cfg.Workflow.UpdateDocs)
	assert.Equal(t, DefaultConfig().LogDir, cfg.LogDir) // nil flag leaves default
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid default", func(c *Config) {}, ""},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"zero stuck threshold", func(c *Config) { c.Health.StuckThreshold = 0 }, "stuck_threshold"},
		{"negative max retries", func(c *Config) { c.Health.MaxRetries = -1 }, "max_retries"},
		{"negative debounce", func(c *Config) { c.Planner.DebounceDuration = -1 }, "debounce_duration"},
		{"zero check interval", func(c *Config) { c.Cleanup.CheckInterval = 0 }, "check_interval"},
		{"zero max concurrent", func(c *Config) { c.Workflow.MaxConcurrent = 0 }, "max_concurrent"},
		{"empty staging prefix", func(c *Config) { c.Workflow.StagingPrefix = "" }, "staging_prefix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFromZenHome_UsesZenHomeConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("ZEN_HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("log_level: warn\n"), 0644))

	cfg, err := LoadConfigFromZenHome()

	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}
