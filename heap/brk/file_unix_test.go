//go:build linux || darwin

package brk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile(t *testing.T) {
	b, err := OpenFile(filepath.Join(t.TempDir(), "arena.bin"), 1<<20)
	require.NoError(t, err)
	exerciseBreak(t, b)
}

func TestFileBreakTracksFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.bin")
	b, err := OpenFile(path, 1<<20)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Sbrk(300)
	require.NoError(t, err)
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 300, st.Size())

	_, err = b.Sbrk(-200)
	require.NoError(t, err)
	st, err = os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 100, st.Size())
	assert.Equal(t, path, b.Path())
}

func TestFileReopenKeepsContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.bin")
	b, err := OpenFile(path, 1<<16)
	require.NoError(t, err)

	_, err = b.Sbrk(5)
	require.NoError(t, err)
	copy(b.Bytes(), "hello")
	require.NoError(t, b.SyncRange(0, 5))
	require.NoError(t, b.Sync())
	require.NoError(t, b.Close())

	b, err = OpenFile(path, 1<<16)
	require.NoError(t, err)
	defer b.Close()

	end, err := b.Sbrk(0)
	require.NoError(t, err)
	assert.Equal(t, 5, end)
	assert.Equal(t, "hello", string(b.Bytes()))
}

func TestFileRejectsOversizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 2*os.Getpagesize()), 0o600))

	_, err := OpenFile(path, 1)
	require.Error(t, err)
}

func TestFileSyncRangeOutOfBounds(t *testing.T) {
	b, err := OpenFile(filepath.Join(t.TempDir(), "arena.bin"), 1<<16)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.SyncRange(0, 10), "empty arena: nothing to flush")
	_, err = b.Sbrk(10)
	require.NoError(t, err)
	require.NoError(t, b.SyncRange(-1, 4))
	require.NoError(t, b.SyncRange(5, 1<<20))
}
