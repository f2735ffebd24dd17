package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

// init builds the validator once; it caches struct metadata across calls.
func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization happens in ApplyDefaults; validation accepts both
// cases.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation that struct tags cannot express.
//
// Rules:
//   - the metrics port must differ from the server port when enabled
//   - MIME extensions carry no dot or path separator, and content types
//     fit on one line so they cannot inject headers
//   - a listing template path must exist and not be a directory
//   - an enabled badger journal needs journal.badger.path
func validateCustomRules(cfg *Config) error {
	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Server.Port {
		return fmt.Errorf("metrics.port: %d is already used by server.port", cfg.Metrics.Port)
	}

	for ext, contentType := range cfg.MIME {
		if strings.ContainsAny(ext, "./\\") {
			return fmt.Errorf("mime[%q]: extension must not contain '.', '/' or '\\'", ext)
		}
		if strings.ContainsAny(contentType, "\r\n") {
			return fmt.Errorf("mime[%q]: content type must be a single line", ext)
		}
	}

	if cfg.Listing.TemplatePath != "" {
		info, err := os.Stat(cfg.Listing.TemplatePath)
		if err != nil {
			return fmt.Errorf("listing.template_path: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("listing.template_path: %s is a directory", cfg.Listing.TemplatePath)
		}
	}

	if cfg.Journal.Enabled && cfg.Journal.Type == "badger" {
		if path, _ := cfg.Journal.Badger["path"].(string); path == "" {
			return fmt.Errorf("journal.badger.path: required when the badger journal is enabled")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
