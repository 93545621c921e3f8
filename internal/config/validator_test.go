package config

import (
	"strings"
	"testing"
)

func minimalValidConfig() *Config {
	return &Config{
		Server:    ServerConfig{Host: "127.0.0.1", Port: 8080, Key: "secret"},
		WebSocket: WebSocketConfig{PendingTimeoutSeconds: 60, IdleTimeoutSeconds: 300},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_ZeroConfig(t *testing.T) {
	t.Parallel()

	// Simulate running "mcp-endpoint start" with no config file at all.
	cfg := &Config{}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() zero-config unexpected error: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("default host = %q, want 127.0.0.1", cfg.Server.Host)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Server.Port = 70000

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for out-of-range port, got nil")
	}
	if !strings.Contains(err.Error(), "Server.Port") {
		t.Errorf("error = %q, want to contain 'Server.Port'", err.Error())
	}
}

func TestValidate_InvalidHost(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Server.Host = "not a host!!"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid host, got nil")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Logging.Level = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "Logging.Level") {
		t.Errorf("error = %q, want to contain 'Logging.Level'", err.Error())
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid log format, got nil")
	}
}

func TestValidate_EmptyAllowedOrigins_IsValid(t *testing.T) {
	t.Parallel()

	// An empty allowlist is valid; it simply rejects every Origin-bearing
	// handshake (local-only mode), it is not a validation error.
	cfg := minimalValidConfig()
	cfg.Security.AllowedOrigins = nil

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with empty allowlist unexpected error: %v", err)
	}
}

func TestValidate_NegativeTimeouts(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.WebSocket.PendingTimeoutSeconds = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for negative pending timeout, got nil")
	}
}
