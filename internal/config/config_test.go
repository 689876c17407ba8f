package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:  "expand single env var",
			input: "path: ${TEST_DB_PATH}",
			envVars: map[string]string{
				"TEST_DB_PATH": "/var/lib/exporter.db",
			},
			expected: "path: /var/lib/exporter.db",
		},
		{
			name:  "expand multiple env vars",
			input: "addr: ${TEST_ADDR}\norigin: ${TEST_ORIGIN}",
			envVars: map[string]string{
				"TEST_ADDR":   ":9000",
				"TEST_ORIGIN": "api.upscale.trade",
			},
			expected: "addr: :9000\norigin: api.upscale.trade",
		},
		{
			name:     "missing env var returns empty string",
			input:    "path: ${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "path: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			result := expandEnvVars(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config-test-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	configContent := `capture:
  listen_addr: ":8088"
  allowed_origins: ["https://app.upscale.trade"]
  max_connections: 16

ingest:
  monitored_origin: "api.upscale.trade"
  detail_timeout_seconds: 30

storage:
  driver: "sqlite"
  path: "${TEST_EXPORTER_DB_PATH}"

system:
  log_level: "DEBUG"
`

	_, err = tmpFile.Write([]byte(configContent))
	require.NoError(t, err)
	tmpFile.Close()

	os.Setenv("TEST_EXPORTER_DB_PATH", "/tmp/exporter-test.db")
	defer os.Unsetenv("TEST_EXPORTER_DB_PATH")

	config, err := LoadConfig(tmpFile.Name())
	require.NoError(t, err, "LoadConfig() error")

	assert.Equal(t, "/tmp/exporter-test.db", config.Storage.Path)
	assert.Equal(t, 30*time.Second, config.Ingest.DetailTimeout())
	assert.Equal(t, "DEBUG", config.System.LogLevel)
	// Unspecified sections keep their defaults.
	assert.Equal(t, 4, config.Concurrency.ExportPoolSize)
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing listen addr", func(c *Config) { c.Capture.ListenAddr = "" }},
		{"no allowed origins", func(c *Config) { c.Capture.AllowedOrigins = nil }},
		{"wildcard origin in production", func(c *Config) {
			c.Capture.Production = true
			c.Capture.AllowedOrigins = []string{"*"}
		}},
		{"zero max connections", func(c *Config) { c.Capture.MaxConnections = 0 }},
		{"missing monitored origin", func(c *Config) { c.Ingest.MonitoredOrigin = "" }},
		{"zero detail timeout", func(c *Config) { c.Ingest.DetailTimeoutSeconds = 0 }},
		{"excessive detail timeout", func(c *Config) { c.Ingest.DetailTimeoutSeconds = 3600 }},
		{"unknown storage driver", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }},
		{"bad log level", func(c *Config) { c.System.LogLevel = "VERBOSE" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMemoryDriverNeedsNoPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Driver = "memory"
	cfg.Storage.Path = ""
	assert.NoError(t, cfg.Validate())
}
