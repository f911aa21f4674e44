package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "graph.yaml")
	exists, err := FileExists(filePath)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, os.WriteFile(filePath, []byte("nodes: []\n"), 0o644))
	exists, err = FileExists(filePath)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = FileExists(dir)
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	got, err := ExpandPath("/tmp/graph.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/graph.yaml", got)

	usr, err := user.Current()
	if err != nil {
		t.Skipf("no current user: %v", err)
	}
	got, err = ExpandPath("~/graph.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(usr.HomeDir, "graph.yaml"), got)
}
