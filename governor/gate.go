package governor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrInvalidCapacity is returned when a gate capacity is not positive.
var ErrInvalidCapacity = errors.New("governor: capacity must be > 0")

// Gate bounds the number of concurrent operations.
// The zero value is not usable; create gates with NewGate.
type Gate struct {
	resizeMu sync.Mutex              // serializes Resize
	cur      atomic.Pointer[permits] // current semaphore
}

type permits struct {
	sem *semaphore.Weighted
	n   int64
}

// NewGate returns a gate admitting n concurrent holders.
func NewGate(n int) (*Gate, error) {
	if n <= 0 {
		return nil, ErrInvalidCapacity
	}
	g := &Gate{}
	g.cur.Store(&permits{sem: semaphore.NewWeighted(int64(n)), n: int64(n)})
	return g, nil
}

// Capacity returns the current number of slots.
func (g *Gate) Capacity() int {
	return int(g.cur.Load().n)
}

// Acquire blocks until a slot is free or ctx is done.
// The returned release function is idempotent and always returns the slot
// to the semaphore it was taken from, even after a Resize.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	for {
		p := g.cur.Load()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		// Served by a semaphore that was replaced while we queued on it:
		// hand the slot back and queue on the current one.
		if g.cur.Load() != p {
			p.sem.Release(1)
			continue
		}
		var once sync.Once
		return func() {
			once.Do(func() { p.sem.Release(1) })
		}, nil
	}
}

// TryAcquire is Acquire bounded by wait.
func (g *Gate) TryAcquire(ctx context.Context, wait time.Duration) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return g.Acquire(ctx)
}

// Resize replaces the gate with one of capacity n.
//
// The old semaphore is drained first: Resize waits until every slot taken
// from it has been released, then installs the new semaphore. Callers that
// queued on the old semaphore while it drained move to the new one, so the
// new capacity holds as soon as Resize returns.
func (g *Gate) Resize(ctx context.Context, n int) error {
	if n <= 0 {
		return ErrInvalidCapacity
	}
	g.resizeMu.Lock()
	defer g.resizeMu.Unlock()

	old := g.cur.Load()
	if old.n == int64(n) {
		return nil
	}
	if err := old.sem.Acquire(ctx, old.n); err != nil {
		return err
	}
	g.cur.Store(&permits{sem: semaphore.NewWeighted(int64(n)), n: int64(n)})
	old.sem.Release(old.n)
	return nil
}
