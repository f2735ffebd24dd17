package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_LogLevelNormalized(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected log level normalized to 'DEBUG', got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"port", cfg.Server.Port, 8080},
		{"backlog", cfg.Server.Backlog, 10},
		{"socket_timeout", cfg.Server.SocketTimeout, 60 * time.Second},
		{"shutdown_timeout", cfg.Server.ShutdownTimeout, 30 * time.Second},
		{"close_delay", cfg.Server.CloseDelay, time.Duration(0)},
		{"accept_delay", cfg.Server.AcceptDelay, time.Duration(0)},
		{"strict_confinement", cfg.Server.StrictConfinement, false},
		{"rate_limit.mode", cfg.Server.RateLimit.Mode, "wait"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Expected default %v, got %v", tt.want, tt.got)
			}
		})
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Port:          9000,
			Backlog:       64,
			SocketTimeout: 5 * time.Second,
			CloseDelay:    500 * time.Millisecond,
		},
		Listing: ListingConfig{Sort: "NAME"},
	}
	ApplyDefaults(cfg)

	if cfg.Server.Port != 9000 {
		t.Errorf("Expected port 9000 preserved, got %d", cfg.Server.Port)
	}
	if cfg.Server.Backlog != 64 {
		t.Errorf("Expected backlog 64 preserved, got %d", cfg.Server.Backlog)
	}
	if cfg.Server.SocketTimeout != 5*time.Second {
		t.Errorf("Expected socket_timeout 5s preserved, got %v", cfg.Server.SocketTimeout)
	}
	if cfg.Server.CloseDelay != 500*time.Millisecond {
		t.Errorf("Expected close_delay 500ms preserved, got %v", cfg.Server.CloseDelay)
	}
	if cfg.Listing.Sort != "name" {
		t.Errorf("Expected sort normalized to 'name', got %q", cfg.Listing.Sort)
	}
}

func TestApplyDefaults_RateLimitBurst(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			RateLimit: RateLimitConfig{Enabled: true, ConnectionsPerSecond: 25},
		},
	}
	ApplyDefaults(cfg)

	if cfg.Server.RateLimit.Burst != 25 {
		t.Errorf("Expected burst to default to the rate (25), got %d", cfg.Server.RateLimit.Burst)
	}
}

func TestApplyDefaults_MIME(t *testing.T) {
	cfg := &Config{
		MIME: map[string]string{
			".MD": "text/markdown",
			"wasm": "application/wasm",
		},
	}
	ApplyDefaults(cfg)

	if cfg.MIME["md"] != "text/markdown" {
		t.Errorf("Expected '.MD' normalized to 'md', got %v", cfg.MIME)
	}
	if cfg.MIME["wasm"] != "application/wasm" {
		t.Errorf("Expected wasm preserved, got %v", cfg.MIME)
	}
	if _, ok := cfg.MIME[".MD"]; ok {
		t.Error("Expected original '.MD' key to be replaced")
	}

	empty := &Config{}
	ApplyDefaults(empty)
	if empty.MIME == nil {
		t.Error("Expected MIME map to be initialized")
	}
}

func TestApplyDefaults_Journal(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")

	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Journal.Type != "badger" {
		t.Errorf("Expected default journal type 'badger', got %q", cfg.Journal.Type)
	}
	if cfg.Journal.MaxEntries != DefaultJournalMaxEntries {
		t.Errorf("Expected default max_entries %d, got %d", DefaultJournalMaxEntries, cfg.Journal.MaxEntries)
	}
	want := filepath.Join("/tmp/xdg-test", "httpfileserv", "journal")
	if got := cfg.Journal.Badger["path"]; got != want {
		t.Errorf("Expected default journal path %q, got %v", want, got)
	}

	custom := &Config{Journal: JournalConfig{Badger: map[string]any{"path": "/var/lib/journal"}}}
	ApplyDefaults(custom)
	if custom.Journal.Badger["path"] != "/var/lib/journal" {
		t.Errorf("Expected explicit journal path preserved, got %v", custom.Journal.Badger["path"])
	}
}

func TestApplyDefaults_Metrics(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Expected default metrics port %d, got %d", DefaultMetricsPort, cfg.Metrics.Port)
	}
}
