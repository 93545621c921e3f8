// Package config provides configuration types for the MCP endpoint router.
//
// Configuration is a single INI file with four sections: server, websocket,
// security, logging. Only the fields named below are consumed by the core;
// everything else in a section parses but is otherwise ignored.
package config

import "strconv"

// Config is the top-level configuration for the router.
type Config struct {
	// Server configures the listener the WebSocket and health endpoints bind to.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// WebSocket configures connection-lifetime sweeping.
	WebSocket WebSocketConfig `mapstructure:"websocket" yaml:"websocket"`

	// Security configures the health-endpoint key and handshake origin allowlist.
	Security SecurityConfig `mapstructure:"security" yaml:"security"`

	// Logging configures the slog text handler.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// DevMode enables development defaults (verbose logging).
	DevMode bool `mapstructure:"dev_mode" yaml:"dev_mode"`
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	// Host is the interface to bind to. Defaults to "127.0.0.1" if empty.
	Host string `mapstructure:"host" yaml:"host" validate:"omitempty,hostname|ip"`

	// Port is the listener port. Defaults to 8080 if zero.
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`

	// Key is the static key required by GET /mcp_endpoint/health?key=.
	// An empty key means the health endpoint rejects every request.
	Key string `mapstructure:"key" yaml:"key"`
}

// WebSocketConfig configures the coordinator's sweep intervals.
type WebSocketConfig struct {
	// PendingTimeoutSeconds is how long a fan-out/tools-call correlation may
	// wait for every expected response before the sweeper surfaces
	// InternalError to the caller. Defaults to 60 if zero.
	PendingTimeoutSeconds int `mapstructure:"pending_timeout_seconds" yaml:"pending_timeout_seconds" validate:"omitempty,min=1"`

	// IdleTimeoutSeconds is how long a connection may sit without the router
	// receiving a frame from it before the idle sweeper closes it; frames
	// sent to it do not count as activity. Defaults to 300 if zero.
	IdleTimeoutSeconds int `mapstructure:"idle_timeout_seconds" yaml:"idle_timeout_seconds" validate:"omitempty,min=1"`
}

// SecurityConfig configures handshake-time origin protection.
type SecurityConfig struct {
	// AllowedOrigins is the Origin allowlist for the WebSocket handshake.
	// An empty list rejects every request that carries an Origin header.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	Level string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`

	// Format selects the slog handler shape: "text" or "json". Defaults to
	// "text" if empty.
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.WebSocket.PendingTimeoutSeconds == 0 {
		c.WebSocket.PendingTimeoutSeconds = 60
	}
	if c.WebSocket.IdleTimeoutSeconds == 0 {
		c.WebSocket.IdleTimeoutSeconds = 300
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// SetDevDefaults applies permissive defaults for development mode.
// Applied before validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.Logging.Level = "debug"
}

// Addr returns the "host:port" listen address built from Server.Host/Port.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}
