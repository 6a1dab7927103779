package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic_CreatesFileWithContent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "doc.json")

	require.NoError(t, WriteAtomic(target, []byte(`{"ok":true}`), 0644))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))
}

func TestWriteAtomic_ReplacesExistingAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "doc.json")

	require.NoError(t, os.WriteFile(target, []byte("old"), 0644))
	require.NoError(t, WriteAtomic(target, []byte("new"), 0644))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "doc.json", entries[0].Name())
}

func TestCopy_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")

	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))
	require.NoError(t, Copy(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestCopy_MissingSource(t *testing.T) {
	dir := t.TempDir()
	err := Copy(filepath.Join(dir, "nope"), filepath.Join(dir, "dst"))
	assert.Error(t, err)
}
