package scan_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/imagetagger/internal/scan"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestIsImage(t *testing.T) {
	assert.True(t, scan.IsImage("photo.jpg"))
	assert.True(t, scan.IsImage("photo.JPEG"))
	assert.True(t, scan.IsImage("/some/dir/photo.Png"))
	assert.True(t, scan.IsImage("scan.tif"))
	assert.False(t, scan.IsImage("notes.txt"))
	assert.False(t, scan.IsImage("archive.zip"))
	assert.False(t, scan.IsImage("noextension"))
}

func TestFolder(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.jpg"))
	touch(t, filepath.Join(dir, "a.png"))
	touch(t, filepath.Join(dir, "readme.md"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	touch(t, filepath.Join(dir, "nested", "c.jpg"))

	paths, err := scan.Folder(dir)
	require.NoError(t, err)

	// Sorted, non-recursive, images only.
	assert.Equal(t, []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.jpg"),
	}, paths)
}

func TestFolderEmpty(t *testing.T) {
	paths, err := scan.Folder(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestFolderMissing(t *testing.T) {
	_, err := scan.Folder(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
