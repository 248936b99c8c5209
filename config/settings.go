// Package config loads and validates thumbnail cache settings.
//
// Settings come from defaults, an optional YAML file and THUMBCACHE_*
// environment variables, in increasing priority. A Loader can watch the
// file and deliver every valid reload to a callback, which is how a running
// cache picks up new limits without restarting.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Settings are the tunable parameters of a thumbnail cache.
type Settings struct {
	// CacheDir is the disk cache directory. Empty selects DefaultCacheDir.
	CacheDir string `mapstructure:"cache_dir"`

	// MaxEntries is the hard memory-cache entry limit.
	MaxEntries int `mapstructure:"max_entries"`
	// TrimThreshold is the entry count above which a memory trim starts.
	TrimThreshold int `mapstructure:"trim_threshold"`
	// TrimTarget is the entry count a memory trim evicts down to.
	TrimTarget int `mapstructure:"trim_target"`

	// DiskParallelism bounds concurrent disk reads, writes and deletions.
	DiskParallelism int `mapstructure:"disk_parallelism"`
	// DecodeParallelism bounds concurrent source decodes.
	DecodeParallelism int `mapstructure:"decode_parallelism"`

	// TargetWidth and TargetHeight are the requested preview dimensions.
	// Previews are scaled to TargetWidth; both values name the disk entry.
	TargetWidth  int `mapstructure:"target_width"`
	TargetHeight int `mapstructure:"target_height"`

	// StaleAfter is the last-access age after which disk entries are swept.
	StaleAfter time.Duration `mapstructure:"stale_after"`
	// PersistTimeout bounds the wait for a disk slot when persisting.
	PersistTimeout time.Duration `mapstructure:"persist_timeout"`
	// DiskMaxBytes caps the disk cache size. Zero disables the cap.
	DiskMaxBytes int64 `mapstructure:"disk_max_bytes"`
}

// Default returns the default settings.
func Default() Settings {
	return Settings{
		MaxEntries:        1000,
		TrimThreshold:     1000,
		TrimTarget:        750,
		DiskParallelism:   4,
		DecodeParallelism: runtime.GOMAXPROCS(0),
		TargetWidth:       256,
		TargetHeight:      256,
		StaleAfter:        7 * 24 * time.Hour,
		PersistTimeout:    100 * time.Millisecond,
	}
}

// Validate checks that the settings are usable.
func (s Settings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.MaxEntries, validation.Required, validation.Min(1)),
		validation.Field(&s.TrimThreshold, validation.Required, validation.Min(1), validation.Max(s.MaxEntries)),
		validation.Field(&s.TrimTarget, validation.Required, validation.Min(1), validation.Max(s.TrimThreshold)),
		validation.Field(&s.DiskParallelism, validation.Required, validation.Min(1)),
		validation.Field(&s.DecodeParallelism, validation.Required, validation.Min(1)),
		validation.Field(&s.TargetWidth, validation.Required, validation.Min(1)),
		validation.Field(&s.TargetHeight, validation.Required, validation.Min(1)),
		validation.Field(&s.StaleAfter, validation.Required, validation.Min(time.Minute)),
		validation.Field(&s.PersistTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&s.DiskMaxBytes, validation.Min(int64(0))),
	)
}

// DefaultCacheDir returns the per-user cache directory for thumbnails.
func DefaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "thumbcache")
}

// ResolvedCacheDir returns CacheDir, or DefaultCacheDir when it is empty.
func (s Settings) ResolvedCacheDir() string {
	if s.CacheDir != "" {
		return s.CacheDir
	}
	return DefaultCacheDir()
}
