package listing

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
)

// Placeholders recognized in a listing template.
const (
	PlaceholderPath    = "{{DIRECTORY_PATH}}"
	PlaceholderEntries = "{{DIRECTORY_ENTRIES}}"
	PlaceholderParent  = "{{PARENT_DIRECTORY_LINK}}"
)

// ErrTemplateEmpty is returned when a template source yields no bytes.
var ErrTemplateEmpty = errors.New("listing template is empty")

//go:embed templates/directory.html
var defaultTemplate []byte

// TemplateLoader supplies the listing template. Load is called once per
// rendered listing.
//
// A template is plain HTML containing the placeholders above; no template
// language is evaluated. Implementations must be safe for concurrent use.
type TemplateLoader interface {
	Load() ([]byte, error)
}

// FileLoader reads the template from disk on every call, so edits show up on
// the next request without a restart.
type FileLoader struct {
	// Path is the template file. Relative paths resolve against the working
	// directory at each load.
	Path string
}

// Load reads the file. A missing or empty file is an error, and the listing
// that asked for it is answered with a 500.
func (l FileLoader) Load() ([]byte, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", l.Path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("load template %s: %w", l.Path, ErrTemplateEmpty)
	}
	return data, nil
}

// EmbeddedLoader serves the template compiled into the binary.
type EmbeddedLoader struct{}

// Load returns the embedded bytes. Callers must not modify them.
func (EmbeddedLoader) Load() ([]byte, error) {
	return defaultTemplate, nil
}

// LoaderFor returns a FileLoader for path, or the EmbeddedLoader when path is
// empty.
func LoaderFor(path string) TemplateLoader {
	if path == "" {
		return EmbeddedLoader{}
	}
	return FileLoader{Path: path}
}

// DefaultTemplate returns a copy of the built-in template. The init command
// writes it out as a starting point for a custom template.
func DefaultTemplate() []byte {
	return append([]byte(nil), defaultTemplate...)
}
