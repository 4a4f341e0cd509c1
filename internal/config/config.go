// Package config provides configuration management for the blood bank.
// Configurations are loaded from TOML files with XDG-compliant paths and
// may be overridden from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Config holds the complete application configuration.
type Config struct {
	Bank      BankConfig      `toml:"bank"`
	Inventory InventoryConfig `toml:"inventory"`
	Sweeper   SweeperConfig   `toml:"sweeper"`
	Notify    NotifyConfig    `toml:"notify"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Tracing   TracingConfig   `toml:"tracing"`
	Display   DisplayConfig   `toml:"display"`
	Logging   LoggingConfig   `toml:"logging"`
	Database  DatabaseConfig  `toml:"database"`
}

// BankConfig identifies the blood bank.
type BankConfig struct {
	Name    string `toml:"name" env:"BLOODBANK_NAME"`
	Code    string `toml:"code"`
	Address string `toml:"address"`
}

// InventoryConfig holds the defaults applied to new ledgers and the
// alerting windows.
type InventoryConfig struct {
	MinThreshold        int `toml:"min_threshold"`
	MaxCapacity         int `toml:"max_capacity"`
	ExpiringWindowDays  int `toml:"expiring_window_days"`
	AlertRetentionHours int `toml:"alert_retention_hours"`
}

// AlertRetention returns the alert retention as a duration.
func (i *InventoryConfig) AlertRetention() time.Duration {
	return time.Duration(i.AlertRetentionHours) * time.Hour
}

// SweeperConfig controls the background expiry and alert sweep.
type SweeperConfig struct {
	Enabled         bool `toml:"enabled" env:"BLOODBANK_SWEEPER_ENABLED"`
	IntervalMinutes int  `toml:"interval_minutes" env:"BLOODBANK_SWEEPER_INTERVAL_MINUTES"`
}

// Interval returns the sweep interval as a duration.
func (s *SweeperConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// NotifyConfig controls event notification delivery.
type NotifyConfig struct {
	QueueSize    int    `toml:"queue_size"`
	RedisURL     string `toml:"redis_url" env:"BLOODBANK_REDIS_URL"`
	RedisChannel string `toml:"redis_channel" env:"BLOODBANK_REDIS_CHANNEL"`
}

// MetricsConfig controls the Prometheus and health listener.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" env:"BLOODBANK_METRICS_ENABLED"`
	Listen  string `toml:"listen" env:"BLOODBANK_METRICS_LISTEN"`
}

// TracingConfig controls OpenTelemetry span export. Spans are exported
// over OTLP/HTTP only when enabled and an endpoint is set.
type TracingConfig struct {
	Enabled     bool    `toml:"enabled" env:"BLOODBANK_TRACING_ENABLED"`
	Endpoint    string  `toml:"endpoint" env:"BLOODBANK_OTEL_ENDPOINT"`
	ServiceName string  `toml:"service_name"`
	SampleRatio float64 `toml:"sample_ratio"`
}

// DisplayConfig controls TUI appearance.
type DisplayConfig struct {
	ColorScheme    ColorScheme `toml:"color_scheme"`
	DateFormat     string      `toml:"date_format"`
	TimeFormat     string      `toml:"time_format"`
	RefreshSeconds int         `toml:"refresh_seconds"`
}

// ColorScheme defines the terminal color palette.
type ColorScheme string

const (
	ColorSchemeClinical ColorScheme = "clinical"
	ColorSchemeAmber    ColorScheme = "amber"
	ColorSchemeMono     ColorScheme = "mono"
)

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level LogLevel `toml:"level" env:"BLOODBANK_LOG_LEVEL"`
	File  string   `toml:"file" env:"BLOODBANK_LOG_FILE"`
}

// LogLevel defines logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// DatabaseConfig controls SQLite database settings.
type DatabaseConfig struct {
	Path                string `toml:"path" env:"BLOODBANK_DB_PATH"`
	BusyTimeoutMs       int    `toml:"busy_timeout_ms"`
	BackupIntervalHours int    `toml:"backup_interval_hours"`
	BackupRetentionDays int    `toml:"backup_retention_days"`
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	sections := []struct {
		name string
		fn   func() error
	}{
		{"bank", c.Bank.Validate},
		{"inventory", c.Inventory.Validate},
		{"sweeper", c.Sweeper.Validate},
		{"notify", c.Notify.Validate},
		{"metrics", c.Metrics.Validate},
		{"tracing", c.Tracing.Validate},
		{"display", c.Display.Validate},
		{"logging", c.Logging.Validate},
		{"database", c.Database.Validate},
	}
	for _, s := range sections {
		if err := s.fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}

	return errors.Join(errs...)
}

// Validate checks that the bank configuration is valid.
func (b *BankConfig) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}

// Validate checks the ledger defaults and alert windows.
func (i *InventoryConfig) Validate() error {
	var errs []error

	if i.MinThreshold < 1 {
		errs = append(errs, errors.New("min_threshold must be at least 1"))
	}
	if i.MaxCapacity < 10 {
		errs = append(errs, errors.New("max_capacity must be at least 10"))
	}
	if i.MaxCapacity <= i.MinThreshold {
		errs = append(errs, errors.New("max_capacity must exceed min_threshold"))
	}
	if i.ExpiringWindowDays < 1 {
		errs = append(errs, errors.New("expiring_window_days must be positive"))
	}
	if i.AlertRetentionHours < 1 {
		errs = append(errs, errors.New("alert_retention_hours must be positive"))
	}

	return errors.Join(errs...)
}

// Validate checks that the sweeper configuration is valid.
func (s *SweeperConfig) Validate() error {
	if s.Enabled && s.IntervalMinutes < 1 {
		return errors.New("interval_minutes must be positive when enabled")
	}
	return nil
}

// Validate checks that the notify configuration is valid.
func (n *NotifyConfig) Validate() error {
	var errs []error

	if n.QueueSize < 1 {
		errs = append(errs, errors.New("queue_size must be positive"))
	}
	if n.RedisURL != "" && n.RedisChannel == "" {
		errs = append(errs, errors.New("redis_channel is required when redis_url is set"))
	}

	return errors.Join(errs...)
}

// Validate checks that the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", m.Listen, err)
	}
	return nil
}

// Validate checks that the tracing configuration is valid.
func (t *TracingConfig) Validate() error {
	var errs []error

	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("sample_ratio must be between 0 and 1, got %g", t.SampleRatio))
	}
	if t.Enabled && strings.TrimSpace(t.ServiceName) == "" {
		errs = append(errs, errors.New("service_name is required when enabled"))
	}

	return errors.Join(errs...)
}

// Validate checks that the display configuration is valid.
func (d *DisplayConfig) Validate() error {
	var errs []error

	switch d.ColorScheme {
	case ColorSchemeClinical, ColorSchemeAmber, ColorSchemeMono, "":
	default:
		errs = append(errs, fmt.Errorf("invalid color_scheme: %s", d.ColorScheme))
	}
	if d.RefreshSeconds < 0 {
		errs = append(errs, errors.New("refresh_seconds must be non-negative"))
	}

	return errors.Join(errs...)
}

// Validate checks that the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, "":
		return nil
	}
	return fmt.Errorf("invalid log level: %s", l.Level)
}

// Validate checks that the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	var errs []error

	if d.Path == "" {
		errs = append(errs, errors.New("path is required"))
	}
	if d.BusyTimeoutMs < 0 {
		errs = append(errs, errors.New("busy_timeout_ms must be non-negative"))
	}
	if d.BackupIntervalHours < 0 {
		errs = append(errs, errors.New("backup_interval_hours must be non-negative"))
	}
	if d.BackupRetentionDays < 0 {
		errs = append(errs, errors.New("backup_retention_days must be non-negative"))
	}

	return errors.Join(errs...)
}

// Default returns a configuration with sensible default values.
func Default() *Config {
	return &Config{
		Bank: BankConfig{
			Name: "Central Blood Bank",
			Code: "CBB-01",
		},
		Inventory: InventoryConfig{
			MinThreshold:        10,
			MaxCapacity:         100,
			ExpiringWindowDays:  7,
			AlertRetentionHours: 24,
		},
		Sweeper: SweeperConfig{
			Enabled:         true,
			IntervalMinutes: 15,
		},
		Notify: NotifyConfig{
			QueueSize:    256,
			RedisChannel: "bloodbank.events",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "bloodbank",
			SampleRatio: 1,
		},
		Display: DisplayConfig{
			ColorScheme:    ColorSchemeClinical,
			DateFormat:     "2006-01-02",
			TimeFormat:     "15:04:05",
			RefreshSeconds: 5,
		},
		Logging: LoggingConfig{
			Level: LogLevelInfo,
			File:  "logs/bloodbank.log",
		},
		Database: DatabaseConfig{
			Path:                "bloodbank.db",
			BusyTimeoutMs:       5000,
			BackupIntervalHours: 24,
			BackupRetentionDays: 30,
		},
	}
}
