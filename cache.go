package thumbcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/thumbcache/config"
	"github.com/meigma/thumbcache/disk"
	"github.com/meigma/thumbcache/governor"
	"github.com/meigma/thumbcache/memory"
)

// Cache is a two-tier preview cache. It is safe for concurrent use.
//
// Create caches with New and release them with Close. Instances are
// independent; nothing is shared between two caches except, possibly, the
// disk directory, which must not be shared between processes.
type Cache struct {
	// Construction-time configuration, consumed by New.
	cfg              config.Settings
	logger           *slog.Logger
	memoryOnly       bool
	weakEntries      bool
	skipStartupSweep bool

	settings atomic.Pointer[config.Settings]

	mem  *memory.Cache
	disk *disk.Cache // nil when running memory-only

	diskGate   *governor.Gate     // disk reads, writes and janitor deletions
	decodeGate *governor.Gate     // source decodes
	loads      governor.Registry  // in-flight loads by normalized path
	diskLoads  singleflight.Group // disk entry decodes by entry path

	stats counters

	// Lifetime of background work (persists, startup sweep).
	ctx    context.Context
	stop   context.CancelFunc
	mu     sync.Mutex // guards closed and additions to wg
	closed bool
	wg     sync.WaitGroup
}

type counters struct {
	hits           atomic.Int64
	misses         atomic.Int64
	diskHits       atomic.Int64
	decodes        atomic.Int64
	persisted      atomic.Int64
	persistSkipped atomic.Int64
	persistFailed  atomic.Int64
	inFlight       atomic.Int64
}

// New creates a cache.
//
// Settings default to [config.Default]. If the disk cache directory cannot
// be created, the failure is logged and the cache runs memory-only. Unless
// [WithoutStartupSweep] is given, a sweep of stale disk entries starts in
// the background.
func New(opts ...Option) (*Cache, error) {
	c := &Cache{cfg: config.Default()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	s := c.cfg
	c.settings.Store(&s)

	var err error
	if c.diskGate, err = governor.NewGate(s.DiskParallelism); err != nil {
		return nil, fmt.Errorf("disk parallelism: %w", err)
	}
	if c.decodeGate, err = governor.NewGate(s.DecodeParallelism); err != nil {
		return nil, fmt.Errorf("decode parallelism: %w", err)
	}

	c.mem = memory.New(
		memory.WithMaxEntries(s.MaxEntries),
		memory.WithTrimThreshold(s.TrimThreshold),
		memory.WithTrimTarget(s.TrimTarget),
		memory.WithWeakEntries(c.weakEntries),
		memory.WithLogger(c.log()),
	)

	if !c.memoryOnly {
		dir := s.ResolvedCacheDir()
		dc, err := disk.New(dir,
			disk.WithMaxBytes(s.DiskMaxBytes),
			disk.WithLogger(c.log()),
		)
		if err != nil {
			c.log().Error("disk cache unavailable, running memory-only", "dir", dir, "error", err)
		} else {
			c.disk = dc
		}
	}

	c.ctx, c.stop = context.WithCancel(context.Background())

	if c.disk != nil && !c.skipStartupSweep {
		c.background(func() {
			if _, err := c.Sweep(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.log().Warn("startup sweep failed", "error", err)
			}
		})
	}
	return c, nil
}

func (c *Cache) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// background runs fn in a goroutine tracked by Close.
// It reports false, without running fn, once the cache is closed.
func (c *Cache) background(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Go(fn)
	return true
}

// track registers an in-flight load so Close waits for it.
// It reports false once the cache is closed; callers that get true must
// call c.wg.Done when the load returns.
func (c *Cache) track() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	return true
}

// Settings returns the settings currently in effect.
func (c *Cache) Settings() config.Settings {
	return *c.settings.Load()
}

// Dir returns the disk cache directory, or "" when running memory-only.
func (c *Cache) Dir() string {
	if c.disk == nil {
		return ""
	}
	return c.disk.Dir()
}

// MemoryOnly reports whether the disk tier is disabled or unavailable.
func (c *Cache) MemoryOnly() bool {
	return c.disk == nil
}

// Close cancels in-flight loads and waits for them, background persists and
// the startup sweep to finish. Loads started after Close fail with ErrClosed.
// Close is safe to call more than once.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.loads.CancelAll()
	c.stop()
	c.wg.Wait()
	c.mem.Wait()
	return nil
}
