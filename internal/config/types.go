// Package config loads configuration from files, env vars, and flags, and validates it.
package config

import (
	"time"

	"rowgraph/internal/naming"
	"rowgraph/internal/schemafilter"
	"rowgraph/internal/schemasource"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Hydrate       HydrateConfig       `mapstructure:"hydrate"`
	Diff          DiffConfig          `mapstructure:"diff"`
	Log           LogConfig           `mapstructure:"log"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseConfig holds the connection used by the hydrate command.
type DatabaseConfig struct {
	// Driver is mysql (also tidb, mariadb), postgres or sqlite.
	Driver string `mapstructure:"driver"`
	// ConnectionString is a complete driver DSN. When set, overrides the
	// discrete fields below. Configured via "dsn" in YAML or
	// ROWGRAPH_DATABASE_DSN.
	ConnectionString string `mapstructure:"dsn"`
	// ConnectionStringFile is a path to a file containing the DSN.
	// Supports "@-" to read from stdin.
	ConnectionStringFile string `mapstructure:"dsn_file"`

	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	// Database is the database name, or the file path for sqlite.
	Database string `mapstructure:"database"`

	Pool PoolConfig `mapstructure:"pool"`

	// ConnectionTimeout bounds the initial ping.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
}

// HydrateConfig controls the hydrate command.
type HydrateConfig struct {
	// Metadata lists class mapping documents.
	Metadata []string `mapstructure:"metadata"`
	// Query is the query document: SQL plus result set mapping.
	Query  string `mapstructure:"query"`
	Format string `mapstructure:"format"` // json, yaml
	// Output is the result file. Empty writes to stdout.
	Output string `mapstructure:"output"`

	PartialObjects bool `mapstructure:"partial_objects"`
	Refresh        bool `mapstructure:"refresh"`
	DeferEager     bool `mapstructure:"defer_eager"`
	// EagerLoading attaches the SQL loader for associations declared eager.
	EagerLoading bool `mapstructure:"eager_loading"`

	Timeout time.Duration `mapstructure:"timeout"`
}

// DiffConfig controls the diff command.
type DiffConfig struct {
	From   string `mapstructure:"from"`
	To     string `mapstructure:"to"`
	Format string `mapstructure:"format"` // json, yaml, msgpack
	// Output is the change set file. Empty writes to stdout.
	Output string `mapstructure:"output"`

	FromPrefix   string   `mapstructure:"from_prefix"`
	ToPrefix     string   `mapstructure:"to_prefix"`
	IgnoreTables []string `mapstructure:"ignore_tables"`
	// FailOnChanges makes the command exit non-zero when the change set is
	// not empty.
	FailOnChanges bool `mapstructure:"fail_on_changes"`

	Watch         bool          `mapstructure:"watch"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`

	Filters schemafilter.Config   `mapstructure:"filters"`
	Naming  naming.Config         `mapstructure:"naming"`
	S3      schemasource.S3Config `mapstructure:"s3"`
}

// LogConfig holds logging parameters.
type LogConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName         string  `mapstructure:"service_name"`
	ServiceVersion      string  `mapstructure:"service_version"`
	Environment         string  `mapstructure:"environment"`
	MetricsEnabled      bool    `mapstructure:"metrics_enabled"`
	MetricsFile         string  `mapstructure:"metrics_file"` // Prometheus textfile written on exit
	TracingEnabled      bool    `mapstructure:"tracing_enabled"`
	TraceSampleRatio    float64 `mapstructure:"trace_sample_ratio"`
	SQLCommenterEnabled bool    `mapstructure:"sqlcommenter_enabled"`

	// Global OTLP settings (defaults for all signals)
	OTLP OTLPConfig `mapstructure:"otlp"`

	// Signal-specific overrides (optional)
	Traces *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs   *OTLPConfig `mapstructure:"logs,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // "none", "gzip"
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

// GetTracesConfig returns the effective OTLP config for traces
func (c *ObservabilityConfig) GetTracesConfig() OTLPConfig {
	if c.Traces != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Traces)
	}
	return c.OTLP
}

// GetLogsConfig returns the effective OTLP config for logs
func (c *ObservabilityConfig) GetLogsConfig() OTLPConfig {
	if c.Logs != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Logs)
	}
	return c.OTLP
}

// mergeOTLPConfigs merges signal-specific config over global defaults.
// Insecure always comes from the override, since a set override section
// cannot express "unset" for a bool.
func mergeOTLPConfigs(base OTLPConfig, override OTLPConfig) OTLPConfig {
	result := base
	if override.Endpoint != "" {
		result.Endpoint = override.Endpoint
	}
	if override.Protocol != "" {
		result.Protocol = override.Protocol
	}
	result.Insecure = override.Insecure
	if override.TLSCertFile != "" {
		result.TLSCertFile = override.TLSCertFile
	}
	if override.TLSClientCertFile != "" {
		result.TLSClientCertFile = override.TLSClientCertFile
	}
	if override.TLSClientKeyFile != "" {
		result.TLSClientKeyFile = override.TLSClientKeyFile
	}
	if override.Headers != nil {
		result.Headers = make(map[string]string, len(base.Headers)+len(override.Headers))
		for k, v := range base.Headers {
			result.Headers[k] = v
		}
		for k, v := range override.Headers {
			result.Headers[k] = v
		}
	}
	if override.Timeout != 0 {
		result.Timeout = override.Timeout
	}
	if override.Compression != "" {
		result.Compression = override.Compression
	}
	if override.RetryMaxAttempts != 0 {
		result.RetryEnabled = override.RetryEnabled
		result.RetryMaxAttempts = override.RetryMaxAttempts
	}
	return result
}
