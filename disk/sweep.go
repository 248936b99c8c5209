package disk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultStaleAfter is the default last-access age after which Sweep
// deletes an entry.
const DefaultStaleAfter = 7 * 24 * time.Hour

// tempGrace is how old an orphaned temporary file must be before Sweep
// removes it; younger ones may belong to a Save in progress.
const tempGrace = time.Hour

// maxWorkers caps the goroutines a sweep or clear fans out to. Actual disk
// concurrency is bounded by the Slots passed in.
const maxWorkers = 16

// Slots hands out disk-operation slots. Maintenance deletions take one slot
// per file so they compete fairly with user-facing loads.
type Slots interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// SweepResult summarizes a sweep.
type SweepResult struct {
	Scanned    int
	Removed    int
	FreedBytes int64
}

// Sweep deletes entries whose last access is older than maxAge, along with
// orphaned temporary files. Per-file failures are logged and skipped; only
// cancellation of ctx is returned as an error.
func (c *Cache) Sweep(ctx context.Context, maxAge time.Duration, slots Slots) (SweepResult, error) {
	if maxAge <= 0 {
		maxAge = DefaultStaleAfter
	}
	if err := ctx.Err(); err != nil {
		return SweepResult{}, err
	}
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return SweepResult{}, nil
		}
		return SweepResult{}, err
	}

	now := c.now()
	cutoff := now.Add(-maxAge)
	tempCutoff := now.Add(-tempGrace)

	var removed atomic.Int64
	var freed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	result := SweepResult{}
	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		result.Scanned++
		limit := cutoff
		if isTemp(de.Name()) {
			limit = tempCutoff
		}
		if !info.ModTime().Before(limit) {
			continue
		}
		path := filepath.Join(c.dir, de.Name())
		size := info.Size()
		g.Go(func() error {
			release, err := slots.Acquire(gctx)
			if err != nil {
				return err
			}
			defer release()
			if err := os.Remove(path); err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					c.log().Warn("failed to remove stale cache entry", "disk_path", path, "error", err)
				}
				return nil
			}
			removed.Add(1)
			freed.Add(size)
			return nil
		})
	}
	err = g.Wait()

	result.Removed = int(removed.Load())
	result.FreedBytes = freed.Load()
	c.bytes.Add(-result.FreedBytes)
	if c.bytes.Load() < 0 {
		c.bytes.Store(0)
	}
	return result, err
}

// Clear deletes every file in the cache directory. Deletion is best effort:
// every file is attempted and the failures are joined into the returned
// error. Returns the number of files removed.
func (c *Cache) Clear(ctx context.Context, slots Slots) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	var (
		removed atomic.Int64
		mu      sync.Mutex
		errs    []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		path := filepath.Join(c.dir, de.Name())
		g.Go(func() error {
			release, err := slots.Acquire(gctx)
			if err != nil {
				return err
			}
			defer release()
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				c.log().Warn("failed to remove cache entry", "disk_path", path, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
				mu.Unlock()
				return nil
			}
			removed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	if size, _, err := dirStats(c.dir); err == nil {
		c.bytes.Store(size)
	}
	return int(removed.Load()), errors.Join(errs...)
}
