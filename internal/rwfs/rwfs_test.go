package rwfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFSCreateWriteReadFile(t *testing.T) {
	dir := t.TempDir()
	fs := NewOSFS(dir)

	require.NoError(t, WriteFile(fs, "hello.txt", []byte("hi"), 0o644))
	data, err := ReadFile(fs, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), data)
}

func TestMkdirAllCreatesNestedDirs(t *testing.T) {
	dir := t.TempDir()
	fs := NewOSFS(dir)

	require.NoError(t, MkdirAll(fs, "a/b/c", 0o755))
	fi, err := Stat(fs, "a/b/c")
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestMkdirAllOnExistingDirIsNoop(t *testing.T) {
	dir := t.TempDir()
	fs := NewOSFS(dir)

	require.NoError(t, MkdirAll(fs, "a", 0o755))
	require.NoError(t, MkdirAll(fs, "a", 0o755))
}

func TestRenameUsesRenamerFastPath(t *testing.T) {
	dir := t.TempDir()
	fs := NewOSFS(dir)
	require.NoError(t, WriteFile(fs, "old.txt", []byte("content"), 0o644))

	require.NoError(t, Rename(fs, "old.txt", "new.txt"))

	_, err := os.Stat(filepath.Join(dir, "old.txt"))
	assert.True(t, os.IsNotExist(err))
	data, err := ReadFile(fs, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), data)
}

// fakeRWFS embeds the RWFS interface rather than OSFS itself, so it
// doesn't promote OSFS's Rename method, forcing Rename's copy+remove
// fallback.
type fakeRWFS struct {
	RWFS
}

func TestRenameFallsBackToCopyRemoveWithoutRenamer(t *testing.T) {
	dir := t.TempDir()
	fs := fakeRWFS{RWFS: NewOSFS(dir)}
	require.NoError(t, WriteFile(fs, "old.txt", []byte("content"), 0o644))

	require.NoError(t, Rename(fs, "old.txt", "new.txt"))

	_, err := os.Stat(filepath.Join(dir, "old.txt"))
	assert.True(t, os.IsNotExist(err))
	data, err := ReadFile(fs, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), data)
}
