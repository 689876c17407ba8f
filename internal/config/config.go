// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	Capture     CaptureConfig     `yaml:"capture"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Storage     StorageConfig     `yaml:"storage"`
	Export      ExportConfig      `yaml:"export"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	System      SystemConfig      `yaml:"system"`
}

// CaptureConfig configures the websocket capture server.
type CaptureConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Production     bool     `yaml:"production"`
	MaxConnections int      `yaml:"max_connections"`
	RateLimit      float64  `yaml:"rate_limit"`
	RateBurst      int      `yaml:"rate_burst"`
}

// IngestConfig configures the ingestion reconciler.
type IngestConfig struct {
	// MonitoredOrigin is the API host whose captured responses are
	// processed; payloads from other hosts are ignored.
	MonitoredOrigin string `yaml:"monitored_origin"`
	// DetailTimeoutSeconds bounds one detail-collection round.
	DetailTimeoutSeconds int `yaml:"detail_timeout_seconds"`
}

// DetailTimeout returns the round timeout as a duration.
func (c IngestConfig) DetailTimeout() time.Duration {
	return time.Duration(c.DetailTimeoutSeconds) * time.Second
}

// AggregationConfig configures position aggregation.
type AggregationConfig struct {
	// BaseExtraDecimals is the extra fixed scale on exchanged-base
	// amounts beyond the asset's declared decimals. Negative means the
	// protocol default.
	BaseExtraDecimals int `yaml:"base_extra_decimals"`
}

// StorageConfig configures the persistent blob store.
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite or memory
	Path   string `yaml:"path"`   // sqlite database file
}

// ExportConfig configures artifact delivery.
type ExportConfig struct {
	// OutputDir, when set, additionally writes every produced artifact to
	// this directory.
	OutputDir string `yaml:"output_dir"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	ExportPoolSize   int `yaml:"export_pool_size"`
	ExportPoolBuffer int `yaml:"export_pool_buffer"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := expandEnvVars(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateCaptureConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateIngestConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateStorageConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateCaptureConfig() error {
	if c.Capture.ListenAddr == "" {
		return ValidationError{
			Field:   "capture.listen_addr",
			Message: "listen address is required",
		}
	}
	if len(c.Capture.AllowedOrigins) == 0 {
		return ValidationError{
			Field:   "capture.allowed_origins",
			Message: "at least one allowed origin is required",
		}
	}
	if c.Capture.Production {
		for _, origin := range c.Capture.AllowedOrigins {
			if origin == "*" {
				return ValidationError{
					Field:   "capture.allowed_origins",
					Value:   origin,
					Message: "wildcard origin is not allowed in production mode",
				}
			}
		}
	}
	if c.Capture.MaxConnections <= 0 {
		return ValidationError{
			Field:   "capture.max_connections",
			Value:   c.Capture.MaxConnections,
			Message: "must be positive",
		}
	}
	return nil
}

func (c *Config) validateIngestConfig() error {
	if c.Ingest.MonitoredOrigin == "" {
		return ValidationError{
			Field:   "ingest.monitored_origin",
			Message: "monitored origin is required",
		}
	}
	if c.Ingest.DetailTimeoutSeconds <= 0 || c.Ingest.DetailTimeoutSeconds > 600 {
		return ValidationError{
			Field:   "ingest.detail_timeout_seconds",
			Value:   c.Ingest.DetailTimeoutSeconds,
			Message: "must be between 1 and 600",
		}
	}
	return nil
}

func (c *Config) validateStorageConfig() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return ValidationError{
				Field:   "storage.path",
				Message: "path is required for the sqlite driver",
			}
		}
	case "memory":
	default:
		return ValidationError{
			Field:   "storage.driver",
			Value:   c.Storage.Driver,
			Message: "must be one of: sqlite, memory",
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// String returns a YAML representation of the configuration
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			ListenAddr:     ":8088",
			AllowedOrigins: []string{"https://app.upscale.trade"},
			MaxConnections: 64,
			RateLimit:      10.0,
			RateBurst:      20,
		},
		Ingest: IngestConfig{
			MonitoredOrigin:      "api.upscale.trade",
			DetailTimeoutSeconds: 60,
		},
		Aggregation: AggregationConfig{
			BaseExtraDecimals: -1, // protocol default
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "exporter.db",
		},
		Concurrency: ConcurrencyConfig{
			ExportPoolSize:   4,
			ExportPoolBuffer: 64,
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9090,
			EnableMetrics: false,
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
	}
}
