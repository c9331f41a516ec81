package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverridesFile(t *testing.T) {
	path := writeSeedFile(t, `overrides:
  - park_id: 6
    attraction_id: 130
    tier: 1
    note: headline coaster
  - park_id: 6
    attraction_id: 131
    tier: 3
`)

	entries, err := LoadOverridesFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(130), entries[0].AttractionID)
	assert.Equal(t, 1, entries[0].Tier)
	assert.Equal(t, "headline coaster", entries[0].Note)
	assert.Equal(t, 3, entries[1].Tier)
}

func TestLoadOverridesFile_InvalidTier(t *testing.T) {
	path := writeSeedFile(t, `overrides:
  - park_id: 6
    attraction_id: 130
    tier: 4
`)

	_, err := LoadOverridesFile(path)
	assert.Error(t, err)
}

func TestLoadOverridesFile_Missing(t *testing.T) {
	_, err := LoadOverridesFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
