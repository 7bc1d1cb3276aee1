package config

import "time"

// Default values for configuration.
const (
	// Server defaults
	DefaultServerHost      = "0.0.0.0"
	DefaultServerPort      = 8080
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultCleanupInterval = 1 * time.Hour

	// Processing defaults
	DefaultTaskTimeout = 600 * time.Second
	DefaultTaskTTL     = 24 * time.Hour

	// Export defaults
	DefaultOutputDir = "export"
	DefaultPageSize  = 500
	DefaultColumns   = "compact"
	DefaultFormat    = "json"

	// Media defaults
	DefaultMediaHTTPTimeout = 15 * time.Second
	DefaultMaxRedirects     = 5

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)
