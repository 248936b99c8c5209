package pathnorm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Normalize(""))
	assert.Empty(t, Normalize("   "))

	dir := t.TempDir()
	messy := filepath.Join(dir, "a", "..", "b", ".", "c.jpg")
	assert.Equal(t, Normalize(filepath.Join(dir, "b", "c.jpg")), Normalize(messy))
	assert.True(t, filepath.IsAbs(Normalize("rel.jpg")))
	assert.Equal(t, Normalize(messy), Normalize(Normalize(messy)), "idempotent")
}

func TestEqual(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	assert.True(t, Equal(filepath.Join(dir, "x", "..", "a.jpg"), filepath.Join(dir, "a.jpg")))
	assert.False(t, Equal(filepath.Join(dir, "a.jpg"), filepath.Join(dir, "b.jpg")))
}

func TestIsWithin(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	assert.True(t, IsWithin(dir, filepath.Join(dir, "a", "b.jpg")))
	assert.True(t, IsWithin(dir, dir))
	assert.False(t, IsWithin(filepath.Join(dir, "a"), filepath.Join(dir, "ab", "c.jpg")))
	assert.False(t, IsWithin(filepath.Join(dir, "a"), dir))
	assert.True(t, IsWithin(dir, filepath.Join(dir, "..foo")))
	assert.False(t, IsWithin("", dir))
}

func TestExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(file))
	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
}
