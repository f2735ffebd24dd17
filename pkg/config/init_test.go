package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// useTempConfigDir points the default config location at a fresh directory.
func useTempConfigDir(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	return tmpDir
}

func TestInitConfig_Success(t *testing.T) {
	useTempConfigDir(t)

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatalf("Config file was not created at %s", configPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	expectedSections := []string{
		"# httpfileserv Configuration File",
		"logging:",
		"server:",
		"listing:",
		"mime:",
		"metrics:",
		"journal:",
	}

	for _, section := range expectedSections {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	useTempConfigDir(t)

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}

	_, err := InitConfig(false)
	if err == nil {
		t.Fatal("Expected error when config already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
}

func TestInitConfig_ForceOverwrite(t *testing.T) {
	useTempConfigDir(t)

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}

	if err := os.WriteFile(configPath, []byte("# Modified"), 0644); err != nil {
		t.Fatalf("Failed to modify config: %v", err)
	}

	newPath, err := InitConfig(true)
	if err != nil {
		t.Fatalf("Force InitConfig failed: %v", err)
	}
	if newPath != configPath {
		t.Errorf("Expected same path, got different: %s vs %s", configPath, newPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if !strings.Contains(string(content), "# httpfileserv Configuration File") {
		t.Error("Config file was not properly overwritten")
	}
}

func TestInitConfigToPath_Success(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "custom", "httpfileserv.yaml")

	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
	if cfg.Server.SocketTimeout != 60*time.Second {
		t.Errorf("Expected socket_timeout to round-trip as 60s, got %v", cfg.Server.SocketTimeout)
	}
}

func TestInitConfigToPath_AlreadyExists(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	if err := os.WriteFile(configPath, []byte("existing"), 0644); err != nil {
		t.Fatalf("Failed to create existing file: %v", err)
	}

	err := InitConfigToPath(configPath, false)
	if err == nil {
		t.Fatal("Expected error when file already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
}

func TestInitConfigToPath_ForceOverwrite(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	if err := os.WriteFile(configPath, []byte("existing"), 0644); err != nil {
		t.Fatalf("Failed to create existing file: %v", err)
	}

	if err := InitConfigToPath(configPath, true); err != nil {
		t.Fatalf("Force InitConfigToPath failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if string(content) == "existing" {
		t.Error("File was not overwritten")
	}
}

func TestGenerateYAMLWithComments_ValidConfig(t *testing.T) {
	out, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		t.Fatalf("generateYAMLWithComments failed: %v", err)
	}

	for _, comment := range []string{
		"# Logging:",
		"# File server:",
		"# Directory listings:",
		"# Prometheus metrics endpoint",
	} {
		if !strings.Contains(out, comment) {
			t.Errorf("Generated YAML missing comment %q", comment)
		}
	}

	for _, value := range []string{
		"level: INFO",
		"port: 8080",
		"backlog: 10",
		"socket_timeout: 1m0s",
		"shutdown_timeout: 30s",
		"close_delay: 0s",
		"sort: none",
	} {
		if !strings.Contains(out, value) {
			t.Errorf("Generated YAML missing %q", value)
		}
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	useTempConfigDir(t)

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load generated config: %v", err)
	}

	if err := Validate(cfg); err != nil {
		t.Fatalf("Generated config failed validation: %v", err)
	}
}

func TestGeneratedConfigValuesAreCorrect(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("Failed to generate config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected INFO log level in generated config, got %q", cfg.Logging.Level)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080 in generated config, got %d", cfg.Server.Port)
	}
	if cfg.Server.SocketTimeout != 60*time.Second {
		t.Errorf("Expected socket_timeout 60s in generated config, got %v", cfg.Server.SocketTimeout)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected shutdown_timeout 30s in generated config, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Journal.Type != "badger" {
		t.Errorf("Expected journal type 'badger' in generated config, got %q", cfg.Journal.Type)
	}
}
