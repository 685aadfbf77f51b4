package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 2, cfg.Dispatch.AgentRetries)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, 30*24*time.Hour, cfg.Maintenance.JournalRetention)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logger:
  level: debug
  format: json
dispatch:
  agent_retries: 5
  rate_per_second: 10
  burst: 4
journal:
  enabled: false
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, 5, cfg.Dispatch.AgentRetries)
	assert.Equal(t, 10.0, cfg.Dispatch.RatePerSecond)
	assert.False(t, cfg.Journal.Enabled)
	// Untouched sections keep defaults.
	assert.Equal(t, "0 3 * * *", cfg.Maintenance.StatsDecaySchedule)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logger: [not a map"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SWITCHBOARD_LOGGER_LEVEL", "warn")
	t.Setenv("SWITCHBOARD_TRACER_ENABLED", "true")
	t.Setenv("SWITCHBOARD_TRACER_EXPORTER", "stdout")
	t.Setenv("SWITCHBOARD_DISPATCH_AGENT_RETRIES", "7")
	t.Setenv("SWITCHBOARD_JOURNAL_ENABLED", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logger.Level)
	assert.True(t, cfg.Tracer.Enabled)
	assert.Equal(t, "stdout", cfg.Tracer.Exporter)
	assert.Equal(t, 7, cfg.Dispatch.AgentRetries)
	assert.False(t, cfg.Journal.Enabled)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Logger.Level = "loud"
	cfg.Dispatch.AgentRetries = -1
	cfg.Dispatch.RatePerSecond = 5
	cfg.Dispatch.Burst = 0
	cfg.Journal.Path = ""

	err := Validate(cfg)
	require.Error(t, err)

	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Len(t, ve.Errors, 4)
	assert.Contains(t, err.Error(), "logger.level")
	assert.Contains(t, err.Error(), "dispatch.burst")
}

func TestValidateDisabledSectionsSkipped(t *testing.T) {
	cfg := Defaults()
	cfg.Maintenance.Enabled = false
	cfg.Maintenance.StatsDecaySchedule = ""
	cfg.Maintenance.JournalRetention = 0

	assert.NoError(t, Validate(cfg))
}
