package disk

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/thumbcache/fingerprint"
	"github.com/meigma/thumbcache/governor"
	"github.com/meigma/thumbcache/internal/testutil"
	"github.com/meigma/thumbcache/preview"
)

const testFP = fingerprint.Fingerprint("AAAAAAAAAAAAAAAAAAAAAA")

func newCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), opts...)
	require.NoError(t, err)
	return c
}

func newGate(t *testing.T) *governor.Gate {
	t.Helper()
	g, err := governor.NewGate(2)
	require.NoError(t, err)
	return g
}

func gradientPreview(w, h int) *preview.Preview {
	return preview.New(testutil.Gradient(w, h))
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNewEmptyDir(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.ErrorIs(t, err, ErrEmptyDir)

	_, err = New(t.TempDir(), WithMaxBytes(-1))
	require.Error(t, err)
}

func TestPathFor(t *testing.T) {
	t.Parallel()

	c := newCache(t)
	got := c.PathFor(testFP, 128, 96)
	assert.Equal(t, filepath.Join(c.Dir(), "AAAAAAAAAAAAAAAAAAAAAA_128x96.jpg"), got)
	assert.Equal(t, got, c.PathFor(testFP, 128, 96), "path derivation is deterministic")
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()

	c := newCache(t)
	path := c.PathFor(testFP, 64, 64)
	require.NoError(t, c.Save(gradientPreview(64, 32), path))

	found, ok := c.Lookup(testFP, 64, 64)
	require.True(t, ok)
	assert.Equal(t, path, found)

	p, err := c.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64, p.Width())
	assert.Equal(t, 32, p.Height())
	assert.Positive(t, c.SizeBytes())

	_, ok = c.Lookup(testFP, 32, 32)
	assert.False(t, ok)
}

func TestSaveFirstWriterWins(t *testing.T) {
	t.Parallel()

	c := newCache(t)
	first := gradientPreview(40, 40)
	second := preview.New(testutil.Gradient(80, 10))

	path := c.PathFor(testFP, 40, 40)
	require.NoError(t, c.Save(first, path))
	require.NoError(t, c.Save(second, path))

	var want bytes.Buffer
	require.NoError(t, preview.Encode(&want, first, preview.QualityFor(40, 40)))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want.Bytes(), got)
}

func TestSaveConcurrent(t *testing.T) {
	t.Parallel()

	c := newCache(t)
	path := c.PathFor(testFP, 32, 32)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Save(gradientPreview(32, 32), path))
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{filepath.Base(path)}, listDir(t, c.Dir()), "no temp files left behind")
	_, err := c.Load(path)
	require.NoError(t, err)
}

func TestLoadCorruptLeavesFile(t *testing.T) {
	t.Parallel()

	c := newCache(t)
	path := c.PathFor(testFP, 16, 16)
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o600))

	_, err := c.Load(path)
	require.ErrorIs(t, err, ErrCorrupt)
	_, statErr := os.Stat(path)
	require.NoError(t, statErr, "corrupt entries are not deleted")
}

func TestLookupLegacyEntry(t *testing.T) {
	t.Parallel()

	c := newCache(t)
	legacy := testutil.WritePNG(t, c.Dir(), string(testFP)+"_24x24.png", 24, 12)

	found, ok := c.Lookup(testFP, 24, 24)
	require.True(t, ok)
	assert.Equal(t, legacy, found)

	p, err := c.Load(found)
	require.NoError(t, err)
	assert.Equal(t, 24, p.Width())
}

func TestLoadTouchesEntry(t *testing.T) {
	t.Parallel()

	now := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)
	c := newCache(t, WithClock(func() time.Time { return now }))
	path := c.PathFor(testFP, 16, 16)
	require.NoError(t, c.Save(gradientPreview(16, 16), path))

	_, err := c.Load(path)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(now), "mtime = %v, want %v", info.ModTime(), now)
}

func TestSweep(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := newCache(t, WithClock(func() time.Time { return now }))

	stale := c.PathFor("stale", 16, 16)
	fresh := c.PathFor("fresh", 16, 16)
	require.NoError(t, c.Save(gradientPreview(16, 16), stale))
	require.NoError(t, c.Save(gradientPreview(16, 16), fresh))
	old := now.Add(-8 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	orphan := filepath.Join(c.Dir(), "thumb-123.tmp")
	require.NoError(t, os.WriteFile(orphan, []byte("partial"), 0o600))
	require.NoError(t, os.Chtimes(orphan, now.Add(-2*time.Hour), now.Add(-2*time.Hour)))
	young := filepath.Join(c.Dir(), "thumb-456.tmp")
	require.NoError(t, os.WriteFile(young, []byte("partial"), 0o600))

	res, err := c.Sweep(context.Background(), DefaultStaleAfter, newGate(t))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Scanned)
	assert.Equal(t, 2, res.Removed)
	assert.Positive(t, res.FreedBytes)
	assert.ElementsMatch(t, []string{filepath.Base(fresh), filepath.Base(young)}, listDir(t, c.Dir()))
}

func TestSweepCancelled(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := newCache(t, WithClock(func() time.Time { return now }))
	path := c.PathFor(testFP, 16, 16)
	require.NoError(t, c.Save(gradientPreview(16, 16), path))
	old := now.Add(-30 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Sweep(ctx, DefaultStaleAfter, newGate(t))
	require.ErrorIs(t, err, context.Canceled)
}

func TestClear(t *testing.T) {
	t.Parallel()

	c := newCache(t)
	for _, fp := range []fingerprint.Fingerprint{"a", "b", "c"} {
		require.NoError(t, c.Save(gradientPreview(8, 8), c.PathFor(fp, 8, 8)))
	}

	n, err := c.Clear(context.Background(), newGate(t))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, listDir(t, c.Dir()))
	assert.Zero(t, c.SizeBytes())
}

func TestPruneOldestFirst(t *testing.T) {
	t.Parallel()

	c := newCache(t)
	base := time.Now().Add(-time.Hour)
	var paths []string
	for i, fp := range []fingerprint.Fingerprint{"a", "b", "c"} {
		path := c.PathFor(fp, 32, 32)
		require.NoError(t, c.Save(gradientPreview(32, 32), path))
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, ts, ts))
		paths = append(paths, path)
	}
	size, files, err := c.Usage()
	require.NoError(t, err)
	assert.Equal(t, 3, files)

	freed, err := c.Prune(size - 1)
	require.NoError(t, err)
	assert.Positive(t, freed)
	_, err = os.Stat(paths[0])
	require.ErrorIs(t, err, os.ErrNotExist, "oldest entry is pruned first")
	_, err = os.Stat(paths[2])
	require.NoError(t, err)
}

func TestSaveRespectsMaxBytes(t *testing.T) {
	t.Parallel()

	c := newCache(t, WithMaxBytes(1))
	path := c.PathFor(testFP, 32, 32)
	require.NoError(t, c.Save(gradientPreview(32, 32), path))

	_, err := os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist, "entry larger than the limit is skipped")

	c.SetMaxBytes(0)
	require.NoError(t, c.Save(gradientPreview(32, 32), path))
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestSizeCountsTempFilesConsistently(t *testing.T) {
	t.Parallel()

	c := newCache(t)
	path := c.PathFor(testFP, 32, 32)
	require.NoError(t, c.Save(gradientPreview(32, 32), path))
	tmp := testutil.WriteBytes(t, c.Dir(), "thumb-123.tmp", make([]byte, 500))

	size, files, err := c.Usage()
	require.NoError(t, err)
	assert.Equal(t, 1, files, "temporary files are not entries")
	assert.Equal(t, size, c.SizeBytes())

	freed, err := c.Prune(0)
	require.NoError(t, err)
	assert.Equal(t, size-500, freed)
	assert.FileExists(t, tmp, "prune leaves temporary files to sweep")
	assert.Equal(t, int64(500), c.SizeBytes())

	size, files, err = c.Usage()
	require.NoError(t, err)
	assert.Equal(t, int64(500), size)
	assert.Zero(t, files)
	assert.Equal(t, size, c.SizeBytes())
}
