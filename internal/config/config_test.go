package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"Zero min threshold", func(c *Config) { c.Inventory.MinThreshold = 0 }, "min_threshold must be at least 1"},
		{"Small capacity", func(c *Config) { c.Inventory.MaxCapacity = 9 }, "max_capacity must be at least 10"},
		{"Capacity under threshold", func(c *Config) { c.Inventory.MinThreshold = 50; c.Inventory.MaxCapacity = 40 }, "max_capacity must exceed min_threshold"},
		{"Bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"Missing db path", func(c *Config) { c.Database.Path = "" }, "path is required"},
		{"Redis without channel", func(c *Config) { c.Notify.RedisURL = "redis://localhost:6379"; c.Notify.RedisChannel = "" }, "redis_channel is required"},
		{"Bad metrics address", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Listen = "nowhere" }, "invalid listen address"},
		{"Sweeper without interval", func(c *Config) { c.Sweeper.IntervalMinutes = 0 }, "interval_minutes must be positive"},
		{"Sample ratio above one", func(c *Config) { c.Tracing.SampleRatio = 1.5 }, "sample_ratio must be between 0 and 1"},
		{"Tracing without service name", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.ServiceName = " " }, "service_name is required"},
		{"Bad color scheme", func(c *Config) { c.Display.ColorScheme = "neon" }, "invalid color_scheme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ExplicitFileWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bloodbank.toml")
	content := `
[bank]
name = "Riverside Blood Bank"

[inventory]
min_threshold = 20
max_capacity = 200

[logging]
level = "warn"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("BLOODBANK_LOG_LEVEL", "debug")
	t.Setenv("BLOODBANK_DB_PATH", "/tmp/override.db")

	cfg, loadedFrom, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, path, loadedFrom)
	assert.Equal(t, "Riverside Blood Bank", cfg.Bank.Name)
	assert.Equal(t, 20, cfg.Inventory.MinThreshold)
	assert.Equal(t, 200, cfg.Inventory.MaxCapacity)
	// Keys missing from the file keep their defaults.
	assert.Equal(t, 7, cfg.Inventory.ExpiringWindowDays)
	assert.Equal(t, LogLevelDebug, cfg.Logging.Level)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bloodbank.toml")
	require.NoError(t, os.WriteFile(path, []byte("[inventory]\nmin_threshold = 0\n"), 0o600))

	_, _, err := Load(path, false)
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, path, loadErr.Path)
}

func TestLoad_CreatesDefault(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Chdir(t.TempDir())

	cfg, path, err := Load("", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(xdg, XDGConfigSubdir, DefaultConfigFileName), path)
	assert.Equal(t, Default().Bank.Name, cfg.Bank.Name)

	// The written file loads back.
	again, err := loadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Inventory, again.Inventory)
}

func TestLoad_NoFileWithoutDefault(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	_, _, err := Load("", false)
	assert.Error(t, err)
}
