// Package config holds engine configuration: server settings, session
// lifecycle knobs, and collector profiles. Profiles are loaded from a
// YAML file via Koanf and may be hot-reloaded through a fsnotify-backed
// watcher. Credential resolution happens only in ResolveProfile; the
// resolved struct is the sole place plaintext tokens exist.
package config

import "time"

// Config holds all configuration for the engine.
type Config struct {
	// APIPort is the port the API server listens on
	APIPort int

	// LogLevel is the logging level (debug, info, warn, error)
	LogLevel string

	// DataDir holds the embedded audit database and memory store
	DataDir string

	// ProfilesPath is the path to the YAML file with collector profiles
	ProfilesPath string

	// SessionTTL is the maximum session lifetime
	SessionTTL time.Duration

	// SessionCleanupInterval is how often the session sweeper runs
	SessionCleanupInterval time.Duration

	// TopologyCacheTTL is how long topology snapshots stay cached
	TopologyCacheTTL time.Duration

	// GraphDeadline is the wall-clock ceiling for one diagnostic graph run
	GraphDeadline time.Duration

	// LLMModel overrides the default model identifier
	LLMModel string

	// TracingEnabled indicates whether OpenTelemetry tracing is enabled
	TracingEnabled bool

	// TracingEndpoint is the OTLP gRPC endpoint for trace export
	TracingEndpoint string

	// TracingTLSCAPath is the path to the CA certificate for TLS verification
	TracingTLSCAPath string
}

// Default session lifecycle values per the session manager contract.
const (
	DefaultSessionTTL             = 24 * time.Hour
	DefaultSessionCleanupInterval = 5 * time.Minute
	DefaultTopologyCacheTTL       = 300 * time.Second
	DefaultGraphDeadline          = 180 * time.Second
)

// LoadConfig creates a Config with the provided values, filling in
// lifecycle defaults for zero durations.
func LoadConfig(apiPort int, logLevel, dataDir, profilesPath string) *Config {
	return &Config{
		APIPort:                apiPort,
		LogLevel:               logLevel,
		DataDir:                dataDir,
		ProfilesPath:           profilesPath,
		SessionTTL:             DefaultSessionTTL,
		SessionCleanupInterval: DefaultSessionCleanupInterval,
		TopologyCacheTTL:       DefaultTopologyCacheTTL,
		GraphDeadline:          DefaultGraphDeadline,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.APIPort < 1 || c.APIPort > 65535 {
		return NewConfigError("APIPort must be between 1 and 65535")
	}
	if c.DataDir == "" {
		return NewConfigError("DataDir must not be empty")
	}
	if c.SessionTTL <= 0 {
		return NewConfigError("SessionTTL must be positive")
	}
	if c.SessionCleanupInterval <= 0 {
		return NewConfigError("SessionCleanupInterval must be positive")
	}
	if c.TopologyCacheTTL <= 0 {
		return NewConfigError("TopologyCacheTTL must be positive")
	}
	if c.TracingEnabled && c.TracingEndpoint == "" {
		return NewConfigError("TracingEndpoint must be set when tracing is enabled")
	}
	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	return e.message
}
