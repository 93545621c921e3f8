// Package config provides configuration loading for the MCP endpoint router.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// explicitConfigFile remembers the --config path passed to InitViper, so
// LoadConfig/LoadConfigRaw can detect a YAML override and parse it with
// yaml.v3 directly instead of through Viper's INI-oriented path.
var explicitConfigFile string

// InitViper initializes Viper with the INI configuration file and
// environment variables. If configFile is empty, it searches for
// mcp-endpoint.ini in standard locations.
func InitViper(configFile string) {
	explicitConfigFile = configFile

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("mcp-endpoint")
		viper.SetConfigType("ini")
	}

	// Environment variable support: MCP_ENDPOINT_SERVER_HOST
	viper.SetEnvPrefix("MCP_ENDPOINT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for an mcp-endpoint.ini file.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".mcp-endpoint"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "mcp-endpoint"))
		}
	} else {
		paths = append(paths, "/etc/mcp-endpoint")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for mcp-endpoint.ini.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		path := filepath.Join(dir, "mcp-endpoint.ini")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// bindNestedEnvKeys binds every config key for environment variable support.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.host")
	_ = viper.BindEnv("server.port")
	_ = viper.BindEnv("server.key")

	_ = viper.BindEnv("websocket.pending_timeout_seconds")
	_ = viper.BindEnv("websocket.idle_timeout_seconds")

	// Note: security.allowed_origins is a list, best overridden via the
	// config file rather than a single environment variable.

	_ = viper.BindEnv("logging.level")
	_ = viper.BindEnv("logging.format")

	_ = viper.BindEnv("dev_mode")
}

// isYAMLOverride reports whether the operator passed an explicit --config
// file with a YAML extension, the one case where Viper's INI-oriented setup
// is bypassed in favor of parsing straight into Config with yaml.v3.
func isYAMLOverride() bool {
	ext := strings.ToLower(filepath.Ext(explicitConfigFile))
	return ext == ".yaml" || ext == ".yml"
}

// loadYAMLOverride parses explicitConfigFile directly with yaml.v3 and
// applies defaults. Used for operators who keep one shared YAML config
// across several tools and want mcp-endpoint to read it as-is rather than
// converting it to INI.
func loadYAMLOverride() (*Config, error) {
	data, err := os.ReadFile(explicitConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read yaml config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml config file: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, applies dev defaults, validates, and returns the Config.
// Use LoadConfigRaw instead when CLI flags (e.g. --dev) must be applied
// before dev defaults and validation.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but does
// NOT apply dev defaults or validate. Use this when CLI flags may override
// DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if isYAMLOverride() {
		return loadYAMLOverride()
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	if isYAMLOverride() {
		return explicitConfigFile
	}
	return viper.ConfigFileUsed()
}
