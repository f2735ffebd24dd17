package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete httpfileserv configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI arguments and flags (highest priority, applied by the caller)
//  2. Environment variables (HTTPFILESERV_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains the listener and per-connection settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Listing controls directory listing rendering
	Listing ListingConfig `mapstructure:"listing" yaml:"listing"`

	// MIME maps file extensions (without the dot) to content types.
	// Entries shadow the built-in table.
	MIME map[string]string `mapstructure:"mime" yaml:"mime" validate:"max=50,dive,keys,required,endkeys,required"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Journal configures the persistent request journal
	Journal JournalConfig `mapstructure:"journal" yaml:"journal"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains the file server settings.
type ServerConfig struct {
	// Root is the served directory. The positional CLI argument overrides it.
	Root string `mapstructure:"root" yaml:"root"`

	// Port is the TCP port to listen on (all IPv4 interfaces)
	Port int `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`

	// Backlog is the listen queue length
	Backlog int `mapstructure:"backlog" yaml:"backlog" validate:"min=1"`

	// SocketTimeout bounds every read and write on an accepted connection
	SocketTimeout time.Duration `mapstructure:"socket_timeout" yaml:"socket_timeout" validate:"gt=0"`

	// CloseDelay is slept after a response and before closing the connection
	CloseDelay time.Duration `mapstructure:"close_delay" yaml:"close_delay" validate:"gte=0"`

	// AcceptDelay is slept after closing a connection and before the next accept
	AcceptDelay time.Duration `mapstructure:"accept_delay" yaml:"accept_delay" validate:"gte=0"`

	// ShutdownTimeout is the maximum time to wait for the in-flight connection on stop
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`

	// StrictConfinement rejects resolved paths that escape the root through symlinks
	StrictConfinement bool `mapstructure:"strict_confinement" yaml:"strict_confinement"`

	// RateLimit throttles accepted connections
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig configures connection accept throttling.
type RateLimitConfig struct {
	// Enabled turns throttling on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ConnectionsPerSecond is the sustained accept rate
	ConnectionsPerSecond uint `mapstructure:"connections_per_second" yaml:"connections_per_second" validate:"required_if=Enabled true"`

	// Burst is the number of connections admitted at once
	Burst uint `mapstructure:"burst" yaml:"burst"`

	// Mode is what happens to excess connections
	// Valid values: wait, reject
	Mode string `mapstructure:"mode" yaml:"mode" validate:"oneof=wait reject"`
}

// ListingConfig controls directory listings.
type ListingConfig struct {
	// TemplatePath is an HTML template read on every listing.
	// Empty uses the built-in template.
	TemplatePath string `mapstructure:"template_path" yaml:"template_path"`

	// Sort orders listing rows
	// Valid values: none (directory order), name
	Sort string `mapstructure:"sort" yaml:"sort" validate:"oneof=none name"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled starts the metrics HTTP server
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port the metrics server listens on
	Port int `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
}

// JournalConfig configures the request journal.
//
// The Type field selects the backend; only the matching type-specific
// section is decoded.
type JournalConfig struct {
	// Enabled records every served request
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Type selects the backend
	// Valid values: badger, memory
	Type string `mapstructure:"type" yaml:"type" validate:"oneof=badger memory"`

	// MaxEntries bounds the journal; 0 applies the default
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries" validate:"gte=0"`

	// Badger contains BadgerDB-specific options
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (HTTPFILESERV_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath searches the default location; a missing file is not
// an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: HTTPFILESERV_SERVER_PORT=9000
	v.SetEnvPrefix("HTTPFILESERV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Environment variables are only consulted for keys viper knows about.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// envKeys lists the scalar settings that can be overridden from the environment.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.root",
	"server.port",
	"server.backlog",
	"server.socket_timeout",
	"server.close_delay",
	"server.accept_delay",
	"server.shutdown_timeout",
	"server.strict_confinement",
	"server.rate_limit.enabled",
	"server.rate_limit.connections_per_second",
	"server.rate_limit.burst",
	"server.rate_limit.mode",
	"listing.template_path",
	"listing.sort",
	"metrics.enabled",
	"metrics.port",
	"journal.enabled",
	"journal.type",
	"journal.max_entries",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist is treated like a missing default.
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "httpfileserv")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "httpfileserv")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
