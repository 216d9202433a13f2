package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsterling/chronoview/pkg/schema"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())

	assert.Equal(t, "auto", c.EncodingOverride)
	assert.Equal(t, 64, c.MaxNestingDepth)
	assert.False(t, c.IncludeMetadata)
	assert.False(t, c.Strict)
	assert.Equal(t, schema.EncodingAuto, c.Encoding())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chronoview.yaml")
	content := `
encoding_override: compact_tagged
max_nesting_depth: 16
strict: true
schema:
  path: ./model
server:
  bind: 0.0.0.0
  port: 9000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, schema.EncodingCompactTagged, c.Encoding())
	assert.Equal(t, 16, c.MaxNestingDepth)
	assert.True(t, c.Strict)
	assert.Equal(t, "./model", c.Schema.Path)
	assert.Equal(t, "0.0.0.0", c.Server.Bind)
	assert.Equal(t, 9000, c.Server.Port)
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate_BadEncoding(t *testing.T) {
	c := DefaultConfig()
	c.EncodingOverride = "protobuf"
	assert.Error(t, c.Validate())
}

func TestValidate_BadDepth(t *testing.T) {
	c := DefaultConfig()
	c.MaxNestingDepth = 0
	assert.Error(t, c.Validate())
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("encoding_override: nope\n"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
