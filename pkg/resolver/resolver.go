// Package resolver turns a request target into a filesystem path under the
// served root.
//
// Mapping happens in two steps. Decode undoes percent-encoding. Resolve
// joins the result onto the root and removes every ".." it finds. The
// removal is a plain substring deletion, not path cleaning: "a..b" becomes
// "ab". It is repeated until no ".." remains, so overlapping sequences such
// as "...." cannot reassemble one.
//
// Symlinks inside the root are followed by the OS. Contained lets a caller
// opt into rejecting paths whose real location is outside the root.
package resolver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidEscape is returned by Decode when a '%' is followed by two
// characters that are not both hex digits.
var ErrInvalidEscape = errors.New("invalid percent escape")

// Resolved is the outcome of mapping a decoded URL path onto the served root.
type Resolved struct {
	// FSPath is the filesystem path to stat and open.
	FSPath string

	// URLPath is the decoded URL path, used for display and the parent link.
	URLPath string

	// Traversal reports whether ".." sequences were removed.
	Traversal bool
}

// Decode percent-decodes raw. "%XX" becomes the byte 0xXX and '+' becomes a
// space. A '%' with fewer than two characters after it is kept literally.
func Decode(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw))

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '%' && i+2 < len(raw):
			hi, ok1 := unhex(raw[i+1])
			lo, ok2 := unhex(raw[i+2])
			if !ok1 || !ok2 {
				return "", fmt.Errorf("%w: %q at offset %d", ErrInvalidEscape, raw[i:i+3], i)
			}
			b.WriteByte(hi<<4 | lo)
			i += 2
		case c == '+':
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}

	return b.String(), nil
}

// unhex decodes one hex digit.
func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// Resolve joins decoded onto root with the native separator and strips every
// ".." from the result until none remain. "/" maps to the root itself.
// Resolve never fails; existence is the caller's concern.
func Resolve(root, decoded string) Resolved {
	rel := ""
	if decoded != "/" {
		rel = strings.TrimPrefix(decoded, "/")
	}

	path := root + string(filepath.Separator) + rel

	traversal := false
	for {
		i := strings.Index(path, "..")
		if i < 0 {
			break
		}
		traversal = true
		path = path[:i] + path[i+2:]
	}

	return Resolved{
		FSPath:    path,
		URLPath:   decoded,
		Traversal: traversal,
	}
}

// Contained reports whether fsPath lies inside root once both are made
// absolute, cleaned and, when followSymlinks is set, resolved through
// symlinks. A path that does not exist is judged lexically.
func Contained(root, fsPath string, followSymlinks bool) (bool, error) {
	absRoot, err := canonical(root, followSymlinks)
	if err != nil {
		return false, fmt.Errorf("failed to canonicalize root %s: %w", root, err)
	}
	absPath, err := canonical(fsPath, followSymlinks)
	if err != nil {
		return false, fmt.Errorf("failed to canonicalize %s: %w", fsPath, err)
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false, nil
	}
	if rel == "." {
		return true, nil
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)), nil
}

// canonical makes path absolute and, when followSymlinks is set, resolves
// it through symlinks. A missing path is returned absolute but unresolved.
func canonical(path string, followSymlinks bool) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if !followSymlinks {
		return abs, nil
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return abs, nil
		}
		return "", err
	}
	return resolved, nil
}
