// Package listing renders HTML index pages for directories.
//
// A listing is built from the directory's entries, one table row each, and
// spliced into a template with three placeholders (see PlaceholderPath,
// PlaceholderEntries and PlaceholderParent). The page is produced in full
// before anything is sent; on error nothing partial escapes.
package listing

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/marmos91/httpfileserv/internal/logger"
	"github.com/marmos91/httpfileserv/pkg/platform"
)

// initialEntriesCapacity is the starting size of the rows buffer.
const initialEntriesCapacity = 16 << 10

// TimeLayout formats modification times (local time, second resolution).
const TimeLayout = "2006-01-02 15:04:05"

// ParentLink is substituted for PlaceholderParent below the root.
const ParentLink = `<div class="parent"><a href=".."><span class="icon">⬆️</span> Parent Directory</a></div>`

// SortMode controls row order.
type SortMode string

const (
	// SortNone keeps the order the OS returned.
	SortNone SortMode = "none"

	// SortName puts directories first, then sorts by name.
	SortName SortMode = "name"
)

// ParseSortMode accepts "", "none" and "name".
func ParseSortMode(s string) (SortMode, error) {
	switch SortMode(strings.ToLower(s)) {
	case "", SortNone:
		return SortNone, nil
	case SortName:
		return SortName, nil
	}
	return "", fmt.Errorf("unknown listing sort mode %q", s)
}

// Generator renders directory listings.
//
// Each Render call enumerates the directory afresh and owns its buffers, so
// a page always reflects the directory at request time.
//
// Thread safety:
// A Generator is immutable after New and safe for concurrent Render calls,
// provided its TemplateLoader is. FileLoader rereads the file on every call
// and is safe; an edited template takes effect on the next request.
type Generator struct {
	// platform enumerates directory entries.
	platform platform.Platform

	// loader supplies the page template.
	loader TemplateLoader

	// sortMode orders the rows; SortNone keeps enumeration order.
	sortMode SortMode
}

// New creates a Generator. A nil loader means the embedded template.
func New(p platform.Platform, loader TemplateLoader, sortMode SortMode) *Generator {
	if loader == nil {
		loader = EmbeddedLoader{}
	}
	if sortMode == "" {
		sortMode = SortNone
	}
	return &Generator{platform: p, loader: loader, sortMode: sortMode}
}

// Render produces the full HTML page for the directory at fsPath, reached
// through urlPath.
//
// The parent link is emitted for every urlPath except "/". An enumeration
// or template failure returns an error and no page; the caller answers 500.
func (g *Generator) Render(fsPath, urlPath string) ([]byte, error) {
	entries, err := g.rows(fsPath)
	if err != nil {
		return nil, err
	}

	tmpl, err := g.loader.Load()
	if err != nil {
		return nil, err
	}

	return Apply(tmpl, DisplayPath(urlPath), entries, urlPath != "/"), nil
}

// rows builds the concatenated table rows. In SortNone mode rows are
// written as entries arrive; in SortName mode entries are collected first.
func (g *Generator) rows(fsPath string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(initialEntriesCapacity)

	var collected []platform.DirEntry
	visit := func(e platform.DirEntry) bool {
		if g.sortMode == SortName {
			collected = append(collected, e)
			return true
		}
		WriteRow(&buf, e)
		return true
	}

	if err := g.platform.ListDirectory(fsPath, visit); err != nil {
		return nil, fmt.Errorf("list %s: %w", fsPath, err)
	}

	if g.sortMode == SortName {
		sort.SliceStable(collected, func(i, j int) bool {
			if collected[i].IsDir != collected[j].IsDir {
				return collected[i].IsDir
			}
			return collected[i].Name < collected[j].Name
		})
		for _, e := range collected {
			WriteRow(&buf, e)
		}
	}

	logger.Debug("Rendered %d bytes of listing rows for %s", buf.Len(), fsPath)
	return buf.Bytes(), nil
}

// WriteRow appends the table row for e to buf.
//
// Directories get a folder icon, a trailing '/' on both link and name, and
// "-" in the size column. Files get a document icon and FormatSize output.
// The link target is percent-escaped and both link and text are
// HTML-escaped, so names containing quotes or angle brackets render as
// text.
func WriteRow(buf *bytes.Buffer, e platform.DirEntry) {
	text := html.EscapeString(e.Name)
	href := html.EscapeString(url.PathEscape(e.Name))
	date := FormatTime(e.ModTime)

	if e.IsDir {
		fmt.Fprintf(buf,
			`<tr><td><a href="%s/"><span class="icon">📁</span> %s/</a></td>`+
				`<td class="size">-</td><td class="date">%s</td></tr>`,
			href, text, date)
		return
	}

	fmt.Fprintf(buf,
		`<tr><td><a href="%s"><span class="icon">📄</span> %s</a></td>`+
			`<td class="size">%s</td><td class="date">%s</td></tr>`,
		href, text, FormatSize(e.Size), date)
}

// FormatSize renders a byte count: "N B" below 1 KiB, otherwise one decimal
// in KB, MB or GB (1024-based).
func FormatSize(size uint64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
		gb = 1 << 30
	)

	switch {
	case size < kb:
		return fmt.Sprintf("%d B", size)
	case size < mb:
		return fmt.Sprintf("%.1f KB", float64(size)/kb)
	case size < gb:
		return fmt.Sprintf("%.1f MB", float64(size)/mb)
	default:
		return fmt.Sprintf("%.1f GB", float64(size)/gb)
	}
}

// FormatTime renders t in local time as "YYYY-MM-DD HH:MM:SS".
func FormatTime(t time.Time) string {
	return t.Local().Format(TimeLayout)
}

// DisplayPath is "/" for the root and the URL path without its leading '/'
// otherwise. The result is HTML-escaped.
func DisplayPath(urlPath string) string {
	if urlPath == "/" {
		return "/"
	}
	return html.EscapeString(strings.TrimPrefix(urlPath, "/"))
}

// Apply substitutes the placeholders in tmpl, in order: path, entries,
// parent link. Every occurrence of each is replaced.
func Apply(tmpl []byte, displayPath string, entries []byte, hasParent bool) []byte {
	out := bytes.ReplaceAll(tmpl, []byte(PlaceholderPath), []byte(displayPath))
	out = bytes.ReplaceAll(out, []byte(PlaceholderEntries), entries)

	parent := ""
	if hasParent {
		parent = ParentLink
	}
	return bytes.ReplaceAll(out, []byte(PlaceholderParent), []byte(parent))
}
