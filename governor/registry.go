package governor

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrSuperseded is the cancellation cause of a load replaced by a newer
	// load for the same key.
	ErrSuperseded = errors.New("superseded by a newer load")

	// ErrCancelRequested is the cancellation cause of Cancel and CancelAll.
	ErrCancelRequested = errors.New("cancel requested")

	errCompleted = errors.New("load completed")
)

// Handle is the cancellation handle of one in-flight load.
type Handle struct {
	key    string
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// Key returns the cache key the handle was registered for.
func (h *Handle) Key() string {
	return h.key
}

// Context returns the load's context. It is done when the caller's context
// is done, the handle is cancelled, or the load is superseded.
func (h *Handle) Context() context.Context {
	return h.ctx
}

// Cancelled reports whether the load was cancelled before it completed.
func (h *Handle) Cancelled() bool {
	return h.ctx.Err() != nil && !errors.Is(context.Cause(h.ctx), errCompleted)
}

// Superseded reports whether a newer load for the same key replaced this one.
func (h *Handle) Superseded() bool {
	return errors.Is(context.Cause(h.ctx), ErrSuperseded)
}

// Err returns the cancellation cause, or nil if the load is still live or
// completed normally.
func (h *Handle) Err() error {
	if !h.Cancelled() {
		return nil
	}
	return context.Cause(h.ctx)
}

// Registry tracks the live load handle per key. It is safe for concurrent use.
type Registry struct {
	handles sync.Map // string -> *Handle
}

// Register creates a handle for key derived from parent. A handle already
// registered for key is cancelled with ErrSuperseded and replaced.
func (r *Registry) Register(parent context.Context, key string) *Handle {
	ctx, cancel := context.WithCancelCause(parent)
	h := &Handle{key: key, ctx: ctx, cancel: cancel}
	if prev, loaded := r.handles.Swap(key, h); loaded {
		prev.(*Handle).cancel(ErrSuperseded)
	}
	return h
}

// Deregister removes h if it is still the registered handle for its key and
// releases its context. It is safe to call more than once.
func (r *Registry) Deregister(h *Handle) {
	r.handles.CompareAndDelete(h.key, h)
	h.cancel(errCompleted)
}

// Lookup returns the handle currently registered for key.
func (r *Registry) Lookup(key string) (*Handle, bool) {
	v, ok := r.handles.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Handle), true
}

// Cancel cancels and removes the handle registered for key.
// Returns false if no load is registered for key.
func (r *Registry) Cancel(key string) bool {
	v, ok := r.handles.LoadAndDelete(key)
	if !ok {
		return false
	}
	v.(*Handle).cancel(ErrCancelRequested)
	return true
}

// CancelAll cancels every registered handle and returns how many were cancelled.
func (r *Registry) CancelAll() int {
	n := 0
	r.handles.Range(func(key, value any) bool {
		if r.handles.CompareAndDelete(key, value) {
			value.(*Handle).cancel(ErrCancelRequested)
			n++
		}
		return true
	})
	return n
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	n := 0
	r.handles.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
