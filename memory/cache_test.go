package memory

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/thumbcache/internal/testutil"
	"github.com/meigma/thumbcache/preview"
)

// tickClock returns a clock that advances one second per call.
func tickClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func newPreview() *preview.Preview {
	return preview.New(testutil.Gradient(2, 2))
}

func TestGetPut(t *testing.T) {
	t.Parallel()

	c := New()
	_, ok := c.Get("a")
	assert.False(t, ok)

	p := newPreview()
	c.Put("a", p)
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Same(t, p, got)
	assert.Equal(t, 1, c.Len())

	// Overwrite keeps a single entry.
	p2 := newPreview()
	c.Put("a", p2)
	got, ok = c.Get("a")
	require.True(t, ok)
	assert.Same(t, p2, got)
	assert.Equal(t, 1, c.Len())

	c.Put("nil", nil)
	assert.Equal(t, 1, c.Len())
}

func TestDeleteAndClear(t *testing.T) {
	t.Parallel()

	c := New()
	c.Put("a", newPreview())
	c.Put("b", newPreview())
	c.Delete("a")
	c.Delete("missing")
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("b")
	assert.False(t, ok)
}

func TestTrimKeepsMostRecent(t *testing.T) {
	t.Parallel()

	const (
		n      = 50
		target = 10
	)
	c := New(
		WithClock(tickClock()),
		WithMaxEntries(20),
		WithTrimThreshold(20),
		WithTrimTarget(target),
	)
	// Hold every preview so liveness cannot influence the result.
	held := make([]*preview.Preview, n)
	for i := range n {
		held[i] = newPreview()
		c.Put(fmt.Sprintf("key-%02d", i), held[i])
	}
	c.Trim()
	c.Wait()

	assert.LessOrEqual(t, c.Len(), target)
	for i := n - target; i < n; i++ {
		_, ok := c.Get(fmt.Sprintf("key-%02d", i))
		assert.True(t, ok, "key-%02d should be retained", i)
	}
	for i := range n - target {
		_, ok := c.Get(fmt.Sprintf("key-%02d", i))
		assert.False(t, ok, "key-%02d should be evicted", i)
	}
	assert.Positive(t, c.Evictions())
	runtime.KeepAlive(held)
}

func TestTrimHonoursAccessOrder(t *testing.T) {
	t.Parallel()

	c := New(
		WithClock(tickClock()),
		WithTrimThreshold(100),
		WithMaxEntries(100),
		WithTrimTarget(2),
	)
	c.Put("a", newPreview())
	c.Put("b", newPreview())
	c.Put("c", newPreview())
	_, ok := c.Get("a")
	require.True(t, ok)

	assert.Equal(t, 1, c.Trim())
	_, ok = c.Get("b")
	assert.False(t, ok, "b is the least recently used entry")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestPutTriggersBackgroundTrim(t *testing.T) {
	t.Parallel()

	c := New(WithMaxEntries(5), WithTrimThreshold(5), WithTrimTarget(3))
	for i := range 6 {
		c.Put(fmt.Sprintf("k%d", i), newPreview())
	}
	c.Wait()

	assert.LessOrEqual(t, c.Len(), 3)
}

func TestSetLimits(t *testing.T) {
	t.Parallel()

	c := New()
	c.SetLimits(4, 3, 1)
	c.SetLimits(0, 0, 0)
	for i := range 4 {
		c.Put(fmt.Sprintf("k%d", i), newPreview())
	}
	c.Wait()
	c.Trim()

	assert.LessOrEqual(t, c.Len(), 1)
}

func TestWeakEntriesReaped(t *testing.T) {
	t.Parallel()

	c := New(WithWeakEntries(true))
	kept := newPreview()
	c.Put("kept", kept)
	c.Put("dropped", newPreview())

	for range 5 {
		runtime.GC()
	}

	_, ok := c.Get("dropped")
	assert.False(t, ok, "collected preview must read as a miss")
	got, ok := c.Get("kept")
	require.True(t, ok)
	assert.Same(t, kept, got)
	assert.Equal(t, 1, c.Len(), "dead entry is removed by Get")
	runtime.KeepAlive(kept)
}

func TestTrimRemovesDeadFirst(t *testing.T) {
	t.Parallel()

	c := New(WithWeakEntries(true), WithTrimTarget(10), WithTrimThreshold(100), WithMaxEntries(100))
	kept := newPreview()
	c.Put("kept", kept)
	for i := range 3 {
		c.Put(fmt.Sprintf("dead-%d", i), newPreview())
	}
	for range 5 {
		runtime.GC()
	}

	assert.Equal(t, 3, c.Trim())
	assert.Equal(t, 1, c.Len())
	runtime.KeepAlive(kept)
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := New(WithMaxEntries(64), WithTrimThreshold(64), WithTrimTarget(32))
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				key := fmt.Sprintf("w%d-%d", w, i%80)
				c.Put(key, newPreview())
				c.Get(key)
			}
		}()
	}
	wg.Wait()
	c.Wait()
	c.Trim()

	assert.LessOrEqual(t, c.Len(), 32)
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	assert.Equal(t, n, c.Len(), "counter must match the map")
}
