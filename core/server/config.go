package server

import "time"

// Config holds configuration for the HTTP server.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required to access the API.
	ApiKey string `mapstructure:"api_key" default:""`
	// ReportTTLSeconds is how long a reconcile report is served from cache.
	ReportTTLSeconds int `mapstructure:"report_ttl_seconds" default:"300"`
	// ShutdownTimeoutSeconds bounds graceful shutdown.
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds" default:"10"`
}

// PublicPaths are served without an API key.
var PublicPaths = []string{"/health", "/metrics"}

// ReportTTL returns the report cache lifetime.
func (c Config) ReportTTL() time.Duration {
	if c.ReportTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.ReportTTLSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown bound.
func (c Config) ShutdownTimeout() time.Duration {
	if c.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}
