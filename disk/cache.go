// Package disk provides the persistent tier of the thumbnail cache.
//
// Entries are flat files named {fingerprint}_{width}x{height}.jpg inside a
// single directory. There is no index: the directory listing is the source
// of truth. Entries are immutable once written; Save never replaces an
// existing file, and readers never observe a partially written one.
//
// A file's modification time records its last access. Load refreshes it,
// and Sweep deletes entries whose last access is older than a cutoff.
package disk

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meigma/thumbcache/fingerprint"
	"github.com/meigma/thumbcache/preview"
)

const (
	defaultDirPerm = 0o700
	tempPattern    = "thumb-*.tmp"
)

var (
	// ErrEmptyDir is returned by New when no directory is given.
	ErrEmptyDir = errors.New("cache dir is empty")

	// ErrCorrupt is returned by Load when an entry cannot be decoded.
	ErrCorrupt = errors.New("corrupt cache entry")
)

// Cache is a directory of encoded previews. It is safe for concurrent use
// within a single process.
type Cache struct {
	dir      string       // root directory for cached files
	dirPerm  os.FileMode  // permissions for created directories
	maxBytes atomic.Int64 // maximum cache size (0 = unlimited)
	bytes    atomic.Int64 // current total size of cached files
	pruneMu  sync.Mutex   // serializes prune operations
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a disk cache.
type Option func(*Cache)

// WithDirPerm sets the directory permissions used for the cache directory.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.dirPerm = mode
	}
}

// WithMaxBytes sets the maximum cache size in bytes.
// Values < 0 are invalid. Use 0 to disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes.Store(n)
	}
}

// WithLogger sets the logger for cache maintenance.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithClock overrides the time source used for access times and sweeps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a disk cache rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, ErrEmptyDir
	}
	c := &Cache{
		dir:     dir,
		dirPerm: defaultDirPerm,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxBytes.Load() < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, err
	}
	size, _, err := dirStats(dir)
	if err != nil {
		return nil, err
	}
	c.bytes.Store(size)
	return c, nil
}

func (c *Cache) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// PathFor returns the entry path for a fingerprint and target size.
func (c *Cache) PathFor(fp fingerprint.Fingerprint, width, height int) string {
	return c.pathWithExt(fp, width, height, preview.Ext)
}

func (c *Cache) pathWithExt(fp fingerprint.Fingerprint, width, height int, ext string) string {
	name := string(fp) + "_" + strconv.Itoa(width) + "x" + strconv.Itoa(height) + ext
	return filepath.Join(c.dir, name)
}

// Lookup returns the path of an existing entry for the fingerprint and
// target size, checking the native format before legacy formats.
func (c *Cache) Lookup(fp fingerprint.Fingerprint, width, height int) (string, bool) {
	path := c.PathFor(fp, width, height)
	if isFile(path) {
		return path, true
	}
	for _, ext := range preview.LegacyExts {
		legacy := c.pathWithExt(fp, width, height, ext)
		if isFile(legacy) {
			return legacy, true
		}
	}
	return "", false
}

// Load decodes the entry at path and marks it as accessed.
// Decode failures wrap ErrCorrupt; the file is left in place.
func (c *Cache) Load(path string) (*preview.Preview, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from a fingerprint
	if err != nil {
		return nil, err
	}
	p, format, err := preview.DecodeCached(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}
	if format != preview.Format {
		c.log().Debug("transcoded legacy cache entry", "disk_path", path, "format", format)
	}
	now := c.now()
	if err := os.Chtimes(path, now, now); err != nil {
		c.log().Debug("failed to touch cache entry", "disk_path", path, "error", err)
	}
	return p, nil
}

// Save encodes p and writes it to path unless path already exists.
//
// The first writer wins: the encoded preview is written to a temporary file
// and hard-linked into place, which fails rather than replacing a file a
// concurrent Save created first.
func (c *Cache) Save(p *preview.Preview, path string) error {
	if p == nil {
		return errors.New("nil preview")
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := preview.Encode(&buf, p, preview.QualityFor(p.Width(), p.Height())); err != nil {
		return err
	}
	size := int64(buf.Len())
	if ok, err := c.ensureCapacity(size); err != nil {
		return err
	} else if !ok {
		c.log().Debug("entry larger than cache limit, not saved", "disk_path", path, "size", size)
		return nil
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // temp file is gone after a successful link

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	created, err := publish(tmpPath, path)
	if err != nil {
		return err
	}
	if created {
		c.bytes.Add(size)
	}
	return nil
}

// publish moves tmpPath to path without replacing an existing file.
// Returns false if path already existed.
func publish(tmpPath, path string) (bool, error) {
	err := os.Link(tmpPath, path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	// Filesystems without hard links: rename, re-checking for a winner first.
	if _, statErr := os.Stat(path); statErr == nil {
		return false, nil
	}
	if err := os.Rename(tmpPath, path); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes.Load()
}

// SetMaxBytes updates the cache size limit. Negative values are ignored.
func (c *Cache) SetMaxBytes(n int64) {
	if n >= 0 {
		c.maxBytes.Store(n)
	}
}

// SizeBytes returns the current cache size in bytes.
func (c *Cache) SizeBytes() int64 {
	return c.bytes.Load()
}

// Usage scans the directory and returns the total size and entry count.
func (c *Cache) Usage() (size int64, files int, err error) {
	size, files, err = dirStats(c.dir)
	if err == nil {
		c.bytes.Store(size)
	}
	return size, files, err
}

// Prune removes the least recently accessed entries until the cache is at or
// below targetBytes. Returns the number of bytes freed.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	if targetBytes < 0 {
		targetBytes = 0
	}
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := pruneDir(c.dir, targetBytes)
	if err != nil {
		return 0, err
	}
	c.bytes.Store(remaining)
	return freed, nil
}

func (c *Cache) ensureCapacity(need int64) (bool, error) {
	maxBytes := c.maxBytes.Load()
	if maxBytes <= 0 {
		return true, nil
	}
	if need > maxBytes {
		return false, nil
	}
	if c.SizeBytes()+need <= maxBytes {
		return true, nil
	}
	if _, err := c.Prune(maxBytes - need); err != nil {
		return false, err
	}
	return c.SizeBytes()+need <= maxBytes, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isTemp(name string) bool {
	return strings.HasPrefix(name, "thumb-") && strings.HasSuffix(name, ".tmp")
}
