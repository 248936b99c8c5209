package thumbcache

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/dustin/go-humanize"

	"github.com/meigma/thumbcache/config"
	"github.com/meigma/thumbcache/disk"
	"github.com/meigma/thumbcache/pathnorm"
)

// Cancel cancels the in-flight load for path, if any.
func (c *Cache) Cancel(path string) bool {
	return c.loads.Cancel(pathnorm.Normalize(path))
}

// CancelAll cancels every in-flight load and returns how many were cancelled.
func (c *Cache) CancelAll() int {
	return c.loads.CancelAll()
}

// Invalidate drops the memory entry for path. The disk entry is kept; it is
// keyed by content and becomes unreachable once the source changes.
func (c *Cache) Invalidate(path string) {
	c.mem.Delete(pathnorm.Normalize(path))
}

// Clear cancels in-flight loads, empties both tiers and returns freed memory
// to the OS. Disk deletions are best effort: every file is attempted and
// the failures are returned joined.
func (c *Cache) Clear(ctx context.Context) error {
	cancelled := c.loads.CancelAll()
	c.mem.Clear()

	var err error
	removed := 0
	if c.disk != nil {
		removed, err = c.disk.Clear(ctx, c.diskGate)
	}
	debug.FreeOSMemory()

	c.log().Info("cache cleared", "cancelled_loads", cancelled, "removed_files", removed)
	if err != nil {
		return fmt.Errorf("clear disk cache: %w", err)
	}
	return nil
}

// Sweep removes disk entries not accessed within the configured stale-after
// window and orphaned temporary files, then prunes the least recently used
// entries if the disk tier is over its size cap. Each deletion takes a disk
// slot, so a sweep competes with loads instead of starving them.
func (c *Cache) Sweep(ctx context.Context) (disk.SweepResult, error) {
	if c.disk == nil {
		return disk.SweepResult{}, nil
	}
	s := c.Settings()
	res, err := c.disk.Sweep(ctx, s.StaleAfter, c.diskGate)
	if err != nil {
		return res, err
	}

	if maxBytes := s.DiskMaxBytes; maxBytes > 0 && c.disk.SizeBytes() > maxBytes {
		freed, err := c.disk.Prune(maxBytes)
		if err != nil {
			return res, fmt.Errorf("prune disk cache: %w", err)
		}
		res.FreedBytes += freed
	}

	c.log().Info("disk cache swept",
		"scanned", res.Scanned,
		"removed", res.Removed,
		"freed", humanize.Bytes(uint64(max(res.FreedBytes, 0))), //nolint:gosec // clamped to >= 0
		"size", humanize.Bytes(uint64(max(c.disk.SizeBytes(), 0))), //nolint:gosec // clamped to >= 0
	)
	return res, nil
}

// UpdateParallelism changes the number of concurrent disk operations.
// It waits for operations holding the current slots to finish.
func (c *Cache) UpdateParallelism(ctx context.Context, n int) error {
	if err := c.diskGate.Resize(ctx, n); err != nil {
		return err
	}
	s := c.Settings()
	s.DiskParallelism = n
	c.settings.Store(&s)
	return nil
}

// ApplySettings applies new settings to a running cache. Limits take effect
// immediately; the cache directory cannot change and a different CacheDir
// is ignored.
func (c *Cache) ApplySettings(ctx context.Context, next config.Settings) error {
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	cur := c.Settings()
	if next.CacheDir != cur.CacheDir {
		c.log().Warn("cache dir change requires restart, ignoring",
			"current", cur.CacheDir, "requested", next.CacheDir)
		next.CacheDir = cur.CacheDir
	}

	c.mem.SetLimits(next.MaxEntries, next.TrimThreshold, next.TrimTarget)
	if c.disk != nil {
		c.disk.SetMaxBytes(next.DiskMaxBytes)
	}
	err := errors.Join(
		c.diskGate.Resize(ctx, next.DiskParallelism),
		c.decodeGate.Resize(ctx, next.DecodeParallelism),
	)
	if err != nil {
		return fmt.Errorf("resize gates: %w", err)
	}
	c.settings.Store(&next)
	c.log().Info("settings applied",
		"max_entries", next.MaxEntries,
		"disk_parallelism", next.DiskParallelism,
		"decode_parallelism", next.DecodeParallelism,
	)
	return nil
}

// Stats is a snapshot of cache statistics. Counters are read without
// synchronizing with loads, so a snapshot is advisory.
type Stats struct {
	MemoryCount    int
	Hits           int64
	Misses         int64
	HitRatio       float64
	DiskHits       int64
	Decodes        int64
	Evictions      int64
	Persisted      int64
	PersistSkipped int64
	PersistFailed  int64
	InFlight       int64
	DiskBytes      int64
}

// Stats returns a snapshot of the cache statistics.
func (c *Cache) Stats() Stats {
	st := Stats{
		MemoryCount:    c.mem.Len(),
		Hits:           c.stats.hits.Load(),
		Misses:         c.stats.misses.Load(),
		DiskHits:       c.stats.diskHits.Load(),
		Decodes:        c.stats.decodes.Load(),
		Evictions:      c.mem.Evictions(),
		Persisted:      c.stats.persisted.Load(),
		PersistSkipped: c.stats.persistSkipped.Load(),
		PersistFailed:  c.stats.persistFailed.Load(),
		InFlight:       c.stats.inFlight.Load(),
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRatio = float64(st.Hits) / float64(total)
	}
	if c.disk != nil {
		st.DiskBytes = c.disk.SizeBytes()
	}
	return st
}

// DiskUsage scans the disk tier and returns its size and entry count.
func (c *Cache) DiskUsage() (size int64, files int, err error) {
	if c.disk == nil {
		return 0, 0, nil
	}
	return c.disk.Usage()
}
