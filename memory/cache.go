// Package memory provides the in-memory tier of the thumbnail cache.
//
// Entries map a normalized source path to a decoded preview and the time it
// was last accessed. Get and Put never wait on eviction: the map is a
// sync.Map and the entry count is an atomic counter. Eviction (Trim) runs
// under a dedicated lock, so at most one trim is active at a time; trims
// triggered while another is running are dropped rather than queued.
//
// By default the cache owns its previews and evicts strictly by capacity.
// With WithWeakEntries the cache holds only weak pointers, so a preview
// stays cached only while some consumer still references it. Dead entries
// are removed lazily by Get and first by every Trim.
package memory

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/meigma/thumbcache/preview"
)

// Default limits.
const (
	DefaultMaxEntries    = 1000
	DefaultTrimThreshold = 1000
	DefaultTrimTarget    = 750
)

// Cache is a concurrent, LRU-trimmed preview cache.
type Cache struct {
	entries sync.Map     // string -> *entry
	count   atomic.Int64 // number of keys in entries

	maxEntries    atomic.Int64
	trimThreshold atomic.Int64
	trimTarget    atomic.Int64
	weak          bool

	trimMu    sync.Mutex     // held by the running trim
	trimWG    sync.WaitGroup // background trims
	evictions atomic.Int64

	now    func() time.Time
	logger *slog.Logger
}

type entry struct {
	strong     *preview.Preview
	ref        weak.Pointer[preview.Preview]
	lastAccess atomic.Int64 // unix nanoseconds
}

// value returns the preview, or nil if a weak entry's preview was collected.
func (e *entry) value() *preview.Preview {
	if e.strong != nil {
		return e.strong
	}
	return e.ref.Value()
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries sets the hard entry limit. Exceeding it always triggers a trim.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries.Store(int64(n))
	}
}

// WithTrimThreshold sets the entry count above which Put triggers a trim.
func WithTrimThreshold(n int) Option {
	return func(c *Cache) {
		c.trimThreshold.Store(int64(n))
	}
}

// WithTrimTarget sets the entry count a trim evicts down to.
func WithTrimTarget(n int) Option {
	return func(c *Cache) {
		c.trimTarget.Store(int64(n))
	}
}

// WithWeakEntries makes the cache hold previews through weak pointers only.
func WithWeakEntries(enabled bool) Option {
	return func(c *Cache) {
		c.weak = enabled
	}
}

// WithLogger sets the logger for trim operations.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithClock overrides the time source used for access timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{now: time.Now}
	c.maxEntries.Store(DefaultMaxEntries)
	c.trimThreshold.Store(DefaultTrimThreshold)
	c.trimTarget.Store(DefaultTrimTarget)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c
}

func (c *Cache) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// SetLimits updates the trim limits. Non-positive values leave the
// corresponding limit unchanged.
func (c *Cache) SetLimits(maxEntries, trimThreshold, trimTarget int) {
	if maxEntries > 0 {
		c.maxEntries.Store(int64(maxEntries))
	}
	if trimThreshold > 0 {
		c.trimThreshold.Store(int64(trimThreshold))
	}
	if trimTarget > 0 {
		c.trimTarget.Store(int64(trimTarget))
	}
}

// Get returns the preview cached for key and refreshes its access time.
// A weak entry whose preview was collected is removed and reported as a miss.
func (c *Cache) Get(key string) (*preview.Preview, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	p := e.value()
	if p == nil {
		c.remove(key, e)
		return nil, false
	}
	e.lastAccess.Store(c.now().UnixNano())
	return p, true
}

// Put caches p under key, replacing any existing entry, and starts a
// background trim when the cache is over its threshold.
func (c *Cache) Put(key string, p *preview.Preview) {
	if p == nil {
		return
	}
	e := &entry{}
	if c.weak {
		e.ref = weak.Make(p)
	} else {
		e.strong = p
	}
	e.lastAccess.Store(c.now().UnixNano())
	if _, loaded := c.entries.Swap(key, e); !loaded {
		c.count.Add(1)
	}
	c.maybeTrim()
}

// Delete removes the entry for key.
func (c *Cache) Delete(key string) {
	if v, ok := c.entries.Load(key); ok {
		c.remove(key, v.(*entry))
	}
}

// Len returns the number of entries, including dead weak entries not yet reaped.
func (c *Cache) Len() int {
	return int(c.count.Load())
}

// Evictions returns the number of entries removed by trims.
func (c *Cache) Evictions() int64 {
	return c.evictions.Load()
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.entries.Range(func(key, value any) bool {
		c.remove(key.(string), value.(*entry))
		return true
	})
}

// Wait blocks until background trims have finished.
func (c *Cache) Wait() {
	c.trimWG.Wait()
}

// remove deletes key only if it still maps to e, so an entry replaced
// concurrently by Put is kept.
func (c *Cache) remove(key string, e *entry) bool {
	if c.entries.CompareAndDelete(key, e) {
		c.count.Add(-1)
		return true
	}
	return false
}

func (c *Cache) maybeTrim() {
	n := c.count.Load()
	if n <= c.trimThreshold.Load() && n <= c.maxEntries.Load() {
		return
	}
	if !c.trimMu.TryLock() {
		return
	}
	c.trimWG.Add(1)
	go func() {
		defer c.trimWG.Done()
		defer c.trimMu.Unlock()
		c.trimLocked()
	}()
}
