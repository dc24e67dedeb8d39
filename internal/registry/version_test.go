package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionRegistry_Contains(t *testing.T) {
	reg := NewVersionRegistry([]Version{
		{ModelVersion: "gpt-4o", PromptVersion: "v3", Kind: KindFinal},
		{ModelVersion: "gpt-4o-mini", PromptVersion: "v2"},
		{ModelVersion: "binary", PromptVersion: "v1", Kind: "raw"},
	})

	assert.True(t, reg.Contains("gpt-4o", "v3"))
	assert.True(t, reg.Contains("gpt-4o-mini", "v2"), "empty kind defaults to final")
	assert.False(t, reg.Contains("gpt-4o", "v2"), "prompt must match exactly")
	assert.False(t, reg.Contains("GPT-4o", "v3"), "match is case sensitive")
	assert.False(t, reg.Contains("binary", "v1"), "non-final kinds never admit")
	assert.Equal(t, 2, reg.Len())
	assert.Len(t, reg.Versions(), 3)
	assert.Equal(t, KindFinal, reg.Versions()[1].Kind)
}

func TestVersionRegistry_Duplicates(t *testing.T) {
	reg := NewVersionRegistry([]Version{
		{ModelVersion: "m", PromptVersion: "p"},
		{ModelVersion: "m", PromptVersion: "p"},
	})
	assert.Equal(t, 1, reg.Len())
	assert.Len(t, reg.Versions(), 1)
}

func TestVersionRegistry_EmptyAndNil(t *testing.T) {
	assert.False(t, NewVersionRegistry(nil).Contains("m", "p"))

	var reg *VersionRegistry
	assert.False(t, reg.Contains("m", "p"))
	assert.Equal(t, 0, reg.Len())
	assert.Nil(t, reg.Versions())
}

func TestVersion_Key(t *testing.T) {
	assert.Equal(t, "gpt-4ov3", Version{ModelVersion: "gpt-4o", PromptVersion: "v3"}.Key())
}

func TestLoadVersionsFromFile(t *testing.T) {
	dir := t.TempDir()

	list := filepath.Join(dir, "list.yaml")
	require.NoError(t, os.WriteFile(list, []byte(`
- model_version: gpt-4o
  prompt_version: v3
  kind: final
- model_version: gpt-4o-mini
  prompt_version: v2
`), 0o644))

	versions, err := LoadVersionsFromFile(list)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "gpt-4o", versions[0].ModelVersion)
	assert.Equal(t, "v2", versions[1].PromptVersion)

	wrapped := filepath.Join(dir, "wrapped.json")
	require.NoError(t, os.WriteFile(wrapped, []byte(`{"versions": [{"model_version": "a", "prompt_version": "b"}]}`), 0o644))

	versions, err = LoadVersionsFromFile(wrapped)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "ab", versions[0].Key())
}

func TestLoadVersionsFromFile_Errors(t *testing.T) {
	_, err := LoadVersionsFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry: read versions file")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("versions: [unclosed"), 0o644))
	_, err = LoadVersionsFromFile(bad)
	require.Error(t, err)
}

func TestLoad_InlineAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "versions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("versions:\n  - model_version: f\n    prompt_version: p\n"), 0o644))

	reg, err := Load([]Version{{ModelVersion: "i", PromptVersion: "p"}}, path)
	require.NoError(t, err)
	assert.True(t, reg.Contains("i", "p"))
	assert.True(t, reg.Contains("f", "p"))

	reg, err = Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Len())
}
