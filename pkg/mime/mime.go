// Package mime maps file extensions to HTTP content types.
//
// Classification is purely lexical: the extension is the text after the last
// '.' of the path, compared case-insensitively. File contents are never
// inspected.
package mime

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultType is returned for paths with no extension or an unknown one.
const DefaultType = "application/octet-stream"

// MaxCustomTypes bounds the number of registered custom mappings.
const MaxCustomTypes = 50

// builtin is the fixed extension table. It is never modified.
var builtin = map[string]string{
	"html": "text/html",
	"htm":  "text/html",
	"txt":  "text/plain",
	"css":  "text/css",
	"js":   "application/javascript",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"pdf":  "application/pdf",
	"json": "application/json",
}

// ErrTableFull is returned by Register when MaxCustomTypes is reached.
var ErrTableFull = fmt.Errorf("mime table full (max %d custom types)", MaxCustomTypes)

// Table holds custom extension mappings layered over the built-in ones.
// Custom mappings shadow built-ins. A Table is safe for concurrent use.
type Table struct {
	// mu guards custom. Lookups take the read lock only.
	mu sync.RWMutex

	// custom holds registered mappings keyed by lower-cased extension.
	custom map[string]string
}

// NewTable returns a table holding only the built-in mappings.
func NewTable() *Table {
	return &Table{custom: make(map[string]string)}
}

// Register maps ext to contentType. A single leading '.' is stripped and the
// extension is stored lower-cased, so ".HTML" and "html" name the same entry.
// Registering an existing extension replaces its type.
func (t *Table) Register(ext, contentType string) error {
	ext = normalize(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return fmt.Errorf("mime: empty extension")
	}
	if contentType == "" {
		return fmt.Errorf("mime: empty content type for %q", ext)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.custom[ext]; !exists && len(t.custom) >= MaxCustomTypes {
		return ErrTableFull
	}
	t.custom[ext] = contentType
	return nil
}

// Lookup returns the content type for path. Custom mappings shadow the
// built-in ones; a nil Table uses only the built-in mappings.
func (t *Table) Lookup(path string) string {
	ext := extension(path)
	if ext == "" {
		return DefaultType
	}

	if t != nil {
		t.mu.RLock()
		ct, ok := t.custom[ext]
		t.mu.RUnlock()
		if ok {
			return ct
		}
	}

	if ct, ok := builtin[ext]; ok {
		return ct
	}
	return DefaultType
}

// Len returns the number of custom mappings.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.custom)
}

// extension returns the lower-cased text after the last '.' in path, or ""
// when path has no '.'.
func extension(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return normalize(path[i+1:])
}

// normalize is the single case-folding rule for stored and looked-up
// extensions.
func normalize(ext string) string {
	return strings.ToLower(ext)
}
