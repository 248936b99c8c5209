package thumbcache

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/meigma/thumbcache/config"
	"github.com/meigma/thumbcache/fingerprint"
	"github.com/meigma/thumbcache/governor"
	"github.com/meigma/thumbcache/pathnorm"
	"github.com/meigma/thumbcache/preview"
)

// Load returns the preview for the image at path.
//
// The memory tier is consulted first, then the disk tier, and finally the
// source is decoded at the configured target width. A decoded preview is
// cached in memory and persisted to disk in the background; Load does not
// wait for the write.
//
// Errors:
//   - ErrEmptyPath if path is empty
//   - ErrNotFound if no regular file exists at path
//   - ErrCancelled, wrapping the cause, if the load was cancelled or superseded
//   - ErrDecode if the source could not be decoded
//   - ErrClosed if the cache is closed
//
// Disk-tier failures are never returned; they fall through to decoding.
func (c *Cache) Load(ctx context.Context, path string, progress ProgressFunc) (*preview.Preview, error) {
	if !c.track() {
		return nil, ErrClosed
	}
	defer c.wg.Done()
	key := pathnorm.Normalize(path)
	if key == "" {
		return nil, ErrEmptyPath
	}
	if !pathnorm.FileExists(key) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	h := c.loads.Register(ctx, key)
	defer c.loads.Deregister(h)
	c.stats.inFlight.Add(1)
	defer c.stats.inFlight.Add(-1)

	progress.report(StageCheckingMemory, key)
	if p, ok := c.mem.Get(key); ok {
		c.stats.hits.Add(1)
		progress.report(StageDone, key)
		return p, nil
	}
	c.stats.misses.Add(1)

	if err := checkCancelled(h); err != nil {
		return nil, err
	}
	progress.report(StageFingerprinting, key)
	fp := fingerprint.ComputeOrFallback(key)
	if err := checkCancelled(h); err != nil {
		return nil, err
	}

	s := c.Settings()
	if c.disk != nil && !fingerprint.IsFallback(fp) {
		progress.report(StageCheckingDisk, key)
		p, err := c.loadFromDisk(h, fp, s)
		switch {
		case err == nil:
			if err := checkCancelled(h); err != nil {
				return nil, err
			}
			c.mem.Put(key, p)
			c.stats.diskHits.Add(1)
			progress.report(StageDone, key)
			return p, nil
		case errors.Is(err, ErrCancelled):
			return nil, err
		case !errors.Is(err, errNoEntry):
			c.log().Warn("disk cache entry unusable, regenerating",
				"path", key, "fingerprint", fp.String(), "error", err)
		}
	}

	if err := checkCancelled(h); err != nil {
		return nil, err
	}
	progress.report(StageDecoding, key)
	p, err := c.decode(h, key, s.TargetWidth)
	if err != nil {
		return nil, err
	}
	c.stats.decodes.Add(1)

	// The persist is a side effect worth keeping even if the caller has
	// gone away; only the result is withheld.
	c.persist(fp, p, s)
	if err := checkCancelled(h); err != nil {
		return nil, err
	}
	c.mem.Put(key, p)
	progress.report(StageDone, key)
	return p, nil
}

// LoadThumbnail is Load for callers that only care whether a preview is
// available. Every failure, including cancellation, yields nil.
func (c *Cache) LoadThumbnail(ctx context.Context, path string, progress ProgressFunc) *preview.Preview {
	p, err := c.Load(ctx, path, progress)
	if err != nil {
		if !errors.Is(err, ErrCancelled) {
			c.log().Debug("no preview available", "path", path, "error", err)
		}
		return nil
	}
	return p
}

var errNoEntry = errors.New("no disk entry")

func checkCancelled(h *governor.Handle) error {
	ctx := h.Context()
	if ctx.Err() == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

// loadFromDisk decodes the disk entry for fp. Concurrent loads of the same
// entry share one read. Returns errNoEntry if there is none.
func (c *Cache) loadFromDisk(h *governor.Handle, fp fingerprint.Fingerprint, s config.Settings) (*preview.Preview, error) {
	entryPath, ok := c.disk.Lookup(fp, s.TargetWidth, s.TargetHeight)
	if !ok {
		return nil, errNoEntry
	}
	ch := c.diskLoads.DoChan(entryPath, func() (any, error) {
		release, err := c.diskGate.Acquire(c.ctx)
		if err != nil {
			return nil, err
		}
		defer release()
		return c.disk.Load(entryPath)
	})
	select {
	case <-h.Context().Done():
		return nil, checkCancelled(h)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*preview.Preview), nil
	}
}

// decode reads and decodes the source under a decode slot, retrying with
// the minimal decoder when the primary one fails.
func (c *Cache) decode(h *governor.Handle, path string, width int) (*preview.Preview, error) {
	release, err := c.decodeGate.Acquire(h.Context())
	if err != nil {
		return nil, checkCancelled(h)
	}
	defer release()

	data, err := os.ReadFile(path) //nolint:gosec // path is caller-supplied by contract
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrDecode, path, err)
	}
	p, err := preview.Decode(data, width)
	if err == nil {
		return p, nil
	}
	c.log().Debug("decode failed, retrying with fallback decoder", "path", path, "error", err)
	p, fallbackErr := preview.DecodeFile(path, width)
	if fallbackErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, path, errors.Join(err, fallbackErr))
	}
	return p, nil
}

// persist writes p to the disk tier in the background. The write is skipped
// if no disk slot frees up within the persist timeout, and never attempted
// for fallback fingerprints, which do not identify content.
func (c *Cache) persist(fp fingerprint.Fingerprint, p *preview.Preview, s config.Settings) {
	if c.disk == nil || fingerprint.IsFallback(fp) {
		return
	}
	entryPath := c.disk.PathFor(fp, s.TargetWidth, s.TargetHeight)
	c.background(func() {
		// Not bound to c.ctx: Close waits for pending persists rather than
		// dropping them, and the wait is bounded by the timeout.
		release, err := c.diskGate.TryAcquire(context.Background(), s.PersistTimeout)
		if err != nil {
			c.stats.persistSkipped.Add(1)
			c.log().Debug("persist skipped, no disk slot", "disk_path", entryPath, "error", err)
			return
		}
		defer release()
		if err := c.disk.Save(p, entryPath); err != nil {
			c.stats.persistFailed.Add(1)
			c.log().Warn("persist failed", "disk_path", entryPath, "error", err)
			return
		}
		c.stats.persisted.Add(1)
	})
}
