package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndCleanup(t *testing.T) {
	m := NewManager(t.TempDir())

	rd, err := m.Create("run-1")
	require.NoError(t, err)
	assert.DirExists(t, rd.Path)
	assert.Equal(t, filepath.Join(rd.Path, "checkout"), rd.Checkout())

	require.NoError(t, m.Cleanup(rd))
	assert.NoDirExists(t, rd.Path)
}

func TestCreateRemovesStaleWorkspace(t *testing.T) {
	base := t.TempDir()
	m := NewManager(base)

	rd, err := m.Create("run-1")
	require.NoError(t, err)
	stale := filepath.Join(rd.Path, "leftover.txt")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))

	rd2, err := m.Create("run-1")
	require.NoError(t, err)
	assert.Equal(t, rd.Path, rd2.Path)
	assert.NoFileExists(t, stale)
}

func TestCleanupEmptyIsNoop(t *testing.T) {
	m := NewManager(t.TempDir())
	assert.NoError(t, m.Cleanup(RunDir{}))
}
