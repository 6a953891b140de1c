package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile(t *testing.T) {
	fs, err := NewFileService(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(fs.OutputDir))

	changed, err := fs.WriteFile("Loon", "a.lcf", []byte("one"))
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := os.ReadFile(filepath.Join(fs.ToolDir("Loon"), "a.lcf"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))

	changed, err = fs.WriteFile("Loon", "a.lcf", []byte("one"))
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = fs.WriteFile("Loon", "a.lcf", []byte("two"))
	require.NoError(t, err)
	assert.True(t, changed)

	entries, err := os.ReadDir(fs.ToolDir("Loon"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files are cleaned up")
	assert.Equal(t, "a.lcf", entries[0].Name())
}

func TestCheckAndRotateLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxyrules.log")

	CheckAndRotateLogFile(path)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, os.WriteFile(path, []byte("small"), 0o644))
	CheckAndRotateLogFile(path)
	_, err = os.Stat(path + ".old")
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", maxLogFileSize+1)), 0o644))
	f, err := OpenLogFileWithRotation(path)
	require.NoError(t, err)
	defer f.Close()

	old, err := os.Stat(path + ".old")
	require.NoError(t, err)
	assert.Equal(t, int64(maxLogFileSize+1), old.Size())

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}
