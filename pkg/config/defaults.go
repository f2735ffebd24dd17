package config

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultPort is used when no port is configured or the given one is invalid.
	DefaultPort = 8080

	// DefaultBacklog is the listen queue length.
	DefaultBacklog = 10

	// DefaultSocketTimeout bounds each read and write on a connection.
	DefaultSocketTimeout = 60 * time.Second

	// DefaultMetricsPort is the Prometheus endpoint port.
	DefaultMetricsPort = 9090

	// DefaultJournalMaxEntries bounds the request journal.
	DefaultJournalMaxEntries = 10000
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults and explicit values are preserved.
// CloseDelay and AcceptDelay keep their zero default.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyListingDefaults(&cfg.Listing)
	applyMIMEDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyJournalDefaults(&cfg.Journal)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults fills listener and timing defaults. An enabled rate
// limit without a burst gets a burst equal to its rate, allowing one
// second's worth of connections at once.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Backlog == 0 {
		cfg.Backlog = DefaultBacklog
	}
	if cfg.SocketTimeout == 0 {
		cfg.SocketTimeout = DefaultSocketTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	if cfg.RateLimit.Mode == "" {
		cfg.RateLimit.Mode = "wait"
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = cfg.RateLimit.ConnectionsPerSecond
	}
}

// applyListingDefaults selects OS order and lower-cases the sort mode.
func applyListingDefaults(cfg *ListingConfig) {
	if cfg.Sort == "" {
		cfg.Sort = "none"
	}
	cfg.Sort = strings.ToLower(cfg.Sort)
}

// applyMIMEDefaults normalizes extension keys: no leading dot, lower case.
func applyMIMEDefaults(cfg *Config) {
	if cfg.MIME == nil {
		cfg.MIME = make(map[string]string)
		return
	}

	normalized := make(map[string]string, len(cfg.MIME))
	for ext, contentType := range cfg.MIME {
		normalized[strings.ToLower(strings.TrimPrefix(ext, "."))] = contentType
	}
	cfg.MIME = normalized
}

// applyMetricsDefaults sets the metrics port. Metrics stay disabled unless
// enabled explicitly.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// applyJournalDefaults selects the badger backend under the config
// directory. The journal itself stays disabled unless enabled explicitly.
func applyJournalDefaults(cfg *JournalConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = DefaultJournalMaxEntries
	}

	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if _, ok := cfg.Badger["path"]; !ok {
		cfg.Badger["path"] = defaultJournalPath()
	}
}

// defaultJournalPath is <config dir>/journal.
func defaultJournalPath() string {
	return filepath.Join(getConfigDir(), "journal")
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// Used to generate sample configuration files and in tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Root: ".",
		},
		MIME: map[string]string{},
	}

	ApplyDefaults(cfg)
	return cfg
}
