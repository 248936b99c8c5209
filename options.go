package thumbcache

import (
	"errors"
	"log/slog"
	"time"

	"github.com/meigma/thumbcache/config"
)

// Option configures a Cache.
type Option func(*Cache) error

// WithSettings replaces the cache settings. Options applied after it
// override individual fields.
func WithSettings(s config.Settings) Option {
	return func(c *Cache) error {
		c.cfg = s
		return nil
	}
}

// WithCacheDir sets the disk cache directory.
func WithCacheDir(dir string) Option {
	return func(c *Cache) error {
		if dir == "" {
			return errors.New("cache dir is empty")
		}
		c.cfg.CacheDir = dir
		return nil
	}
}

// WithLogger sets the logger for cache operations.
// By default, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) error {
		c.logger = logger
		return nil
	}
}

// WithMemoryOnly disables the disk tier.
func WithMemoryOnly() Option {
	return func(c *Cache) error {
		c.memoryOnly = true
		return nil
	}
}

// WithWeakEntries makes the memory tier hold previews weakly, so an entry
// survives only while a consumer still references its preview.
func WithWeakEntries(enabled bool) Option {
	return func(c *Cache) error {
		c.weakEntries = enabled
		return nil
	}
}

// WithStaleAfter sets the last-access age after which disk entries are swept.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Cache) error {
		if d <= 0 {
			return errors.New("stale-after must be > 0")
		}
		c.cfg.StaleAfter = d
		return nil
	}
}

// WithPersistTimeout bounds how long a background persist waits for a disk
// slot before it is skipped.
func WithPersistTimeout(d time.Duration) Option {
	return func(c *Cache) error {
		if d <= 0 {
			return errors.New("persist timeout must be > 0")
		}
		c.cfg.PersistTimeout = d
		return nil
	}
}

// WithDiskMaxBytes caps the disk cache size. Zero disables the cap.
func WithDiskMaxBytes(n int64) Option {
	return func(c *Cache) error {
		if n < 0 {
			return errors.New("disk max bytes must be >= 0")
		}
		c.cfg.DiskMaxBytes = n
		return nil
	}
}

// WithoutStartupSweep skips the disk sweep New normally starts in the
// background.
func WithoutStartupSweep() Option {
	return func(c *Cache) error {
		c.skipStartupSweep = true
		return nil
	}
}
