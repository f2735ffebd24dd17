package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_UsesYAMLNames(t *testing.T) {
	schema, err := generate("")
	require.NoError(t, err)

	data, err := json.Marshal(schema)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok, "schema has no properties")
	for _, section := range []string{"logging", "server", "listing", "mime", "metrics", "journal"} {
		assert.Contains(t, props, section)
	}

	server, ok := props["server"].(map[string]any)
	require.True(t, ok)
	serverProps, ok := server["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, serverProps, "socket_timeout")
	assert.Contains(t, serverProps, "rate_limit")
}

func TestGenerate_MissingCommentsDir(t *testing.T) {
	schema, err := generate(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Equal(t, "httpfileserv Configuration", schema.Title)
}
