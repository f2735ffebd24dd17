package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const configHeader = `# httpfileserv Configuration File
#
# Every setting can be overridden with an environment variable named
# HTTPFILESERV_<SECTION>_<KEY>, e.g. HTTPFILESERV_SERVER_PORT=9000.
# The positional arguments of the httpfileserv command override
# server.root and server.port.
`

// sectionComments are attached above each top-level section.
var sectionComments = map[string]string{
	"logging": "Logging: level (DEBUG, INFO, WARN, ERROR), format (text, json),\noutput (stdout, stderr or a file path)",
	"server":  "File server: served root, listener and per-connection timing.\nclose_delay and accept_delay are slept around each connection close.",
	"listing": "Directory listings: custom HTML template (re-read on every listing)\nand row order (none, name)",
	"mime":    "Extra content types by extension, shadowing the built-in table (max 50)",
	"metrics": "Prometheus metrics endpoint",
	"journal": "Persistent request journal (badger or memory), read with `httpfileserv journal`",
}

// durationKeys are rendered as Go duration strings instead of nanoseconds.
var durationKeys = map[string]bool{
	"socket_timeout":   true,
	"close_delay":      true,
	"accept_delay":     true,
	"shutdown_timeout": true,
}

// InitConfig writes a sample configuration file to the default location and
// returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as YAML with a header and a comment
// above every section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	if err := rewriteDurations(&doc); err != nil {
		return "", err
	}

	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.WriteString("\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}

	return buf.String(), nil
}

// rewriteDurations walks the mapping nodes and turns integer nanosecond
// values under duration keys into strings such as "1m0s".
func rewriteDurations(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			if durationKeys[key.Value] && value.Kind == yaml.ScalarNode {
				nanos, err := strconv.ParseInt(value.Value, 10, 64)
				if err != nil {
					return fmt.Errorf("%s: unexpected duration value %q", key.Value, value.Value)
				}
				value.Value = time.Duration(nanos).String()
				value.Tag = "!!str"
				value.Style = 0
			}
		}
	}

	for _, child := range node.Content {
		if err := rewriteDurations(child); err != nil {
			return err
		}
	}
	return nil
}
