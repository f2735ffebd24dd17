package mime

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_Builtins(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"html", "/srv/index.html", "text/html"},
		{"htm upper", "/srv/INDEX.HTM", "text/html"},
		{"text", "notes.txt", "text/plain"},
		{"css", "a/b/site.css", "text/css"},
		{"js", "app.js", "application/javascript"},
		{"jpg", "photo.jpg", "image/jpeg"},
		{"jpeg mixed case", "photo.JpEg", "image/jpeg"},
		{"png", "logo.png", "image/png"},
		{"gif", "anim.gif", "image/gif"},
		{"pdf", "paper.pdf", "application/pdf"},
		{"json", "data.json", "application/json"},
		{"unknown", "archive.tar.gz", DefaultType},
		{"no extension", "Makefile", DefaultType},
		{"trailing dot", "weird.", DefaultType},
		{"last dot wins", "page.txt.html", "text/html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewTable().Lookup(tt.path))
		})
	}
}

func TestTable_RegisterShadowsBuiltin(t *testing.T) {
	table := NewTable()

	require.NoError(t, table.Register(".html", "text/html; charset=utf-8"))
	assert.Equal(t, "text/html; charset=utf-8", table.Lookup("index.HTML"))

	// htm keeps its built-in mapping
	assert.Equal(t, "text/html", table.Lookup("index.htm"))
}

func TestTable_RegisterNewAndUpdate(t *testing.T) {
	table := NewTable()

	require.NoError(t, table.Register("wasm", "application/wasm"))
	assert.Equal(t, "application/wasm", table.Lookup("mod.wasm"))

	require.NoError(t, table.Register(".WASM", "application/octet-stream"))
	assert.Equal(t, "application/octet-stream", table.Lookup("mod.wasm"))
	assert.Equal(t, 1, table.Len())
}

func TestTable_RegisterRejectsEmpty(t *testing.T) {
	table := NewTable()
	assert.Error(t, table.Register(".", "text/plain"))
	assert.Error(t, table.Register("md", ""))
}

func TestTable_Full(t *testing.T) {
	table := NewTable()
	for i := 0; i < MaxCustomTypes; i++ {
		require.NoError(t, table.Register(fmt.Sprintf("x%d", i), "application/x-test"))
	}

	assert.ErrorIs(t, table.Register("overflow", "text/plain"), ErrTableFull)
	// updating an existing entry still works when full
	assert.NoError(t, table.Register("x0", "text/plain"))
}
