package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_Server(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "Port"},
		{"port too large", func(c *Config) { c.Server.Port = 65536 }, "Port"},
		{"port max", func(c *Config) { c.Server.Port = 65535 }, ""},
		{"port min", func(c *Config) { c.Server.Port = 1 }, ""},
		{"backlog zero", func(c *Config) { c.Server.Backlog = 0 }, "Backlog"},
		{"socket timeout zero", func(c *Config) { c.Server.SocketTimeout = 0 }, "SocketTimeout"},
		{"negative close delay", func(c *Config) { c.Server.CloseDelay = -time.Second }, "CloseDelay"},
		{"negative accept delay", func(c *Config) { c.Server.AcceptDelay = -time.Second }, "AcceptDelay"},
		{"shutdown timeout zero", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "ShutdownTimeout"},
		{"bad rate limit mode", func(c *Config) { c.Server.RateLimit.Mode = "drop" }, "Mode"},
		{"rate limit without rate", func(c *Config) { c.Server.RateLimit.Enabled = true }, "ConnectionsPerSecond"},
		{"rate limit with rate", func(c *Config) {
			c.Server.RateLimit.Enabled = true
			c.Server.RateLimit.ConnectionsPerSecond = 10
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected no error, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected validation error mentioning %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_InvalidSort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Listing.Sort = "size"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown sort mode")
	}
}

func TestValidate_TemplatePath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Listing.TemplatePath = filepath.Join(t.TempDir(), "missing.html")

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for missing template")
	}

	cfg.Listing.TemplatePath = t.TempDir()
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("Expected directory error, got: %v", err)
	}

	tmpl := filepath.Join(t.TempDir(), "listing.html")
	if err := os.WriteFile(tmpl, []byte("{{PATH}}{{ENTRIES}}{{PARENT_LINK}}"), 0644); err != nil {
		t.Fatalf("Failed to write template: %v", err)
	}
	cfg.Listing.TemplatePath = tmpl
	if err := Validate(cfg); err != nil {
		t.Fatalf("Expected valid template path, got: %v", err)
	}
}

func TestValidate_MIME(t *testing.T) {
	tests := []struct {
		name    string
		mime    map[string]string
		wantErr bool
	}{
		{"valid", map[string]string{"md": "text/markdown"}, false},
		{"empty type", map[string]string{"md": ""}, true},
		{"dotted extension", map[string]string{"tar.gz": "application/gzip"}, true},
		{"path separator", map[string]string{"a/b": "text/plain"}, true},
		{"header injection", map[string]string{"x": "text/plain\r\nX-Evil: 1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			cfg.MIME = tt.mime

			err := Validate(cfg)
			if tt.wantErr && err == nil {
				t.Fatal("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestValidate_TooManyMIMETypes(t *testing.T) {
	cfg := GetDefaultConfig()
	for i := 0; i < 51; i++ {
		cfg.MIME["ext"+strings.Repeat("x", i)] = "application/x-test"
	}

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for more than 50 MIME types")
	}
}

func TestValidate_MetricsPortConflict(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = cfg.Server.Port

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for metrics port conflict")
	}
	if !strings.Contains(err.Error(), "metrics.port") {
		t.Errorf("Expected metrics.port error, got: %v", err)
	}
}

func TestValidate_Journal(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Journal.Type = "postgres"
	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown journal type")
	}

	cfg = GetDefaultConfig()
	cfg.Journal.Enabled = true
	cfg.Journal.Badger["path"] = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for empty badger path")
	}

	cfg = GetDefaultConfig()
	cfg.Journal.Enabled = true
	cfg.Journal.Type = "memory"
	cfg.Journal.Badger["path"] = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("Memory journal needs no path, got: %v", err)
	}
}
