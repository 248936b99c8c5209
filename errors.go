package thumbcache

import (
	"errors"

	"github.com/meigma/thumbcache/disk"
	"github.com/meigma/thumbcache/governor"
)

var (
	// ErrEmptyPath is returned when Load is called with an empty path.
	ErrEmptyPath = errors.New("thumbcache: empty path")

	// ErrNotFound is returned when the source file does not exist.
	ErrNotFound = errors.New("thumbcache: source file not found")

	// ErrCancelled is returned when a load is cancelled, superseded by a newer
	// load for the same path, or its context is done. The cancellation cause
	// is wrapped alongside it.
	ErrCancelled = errors.New("thumbcache: load cancelled")

	// ErrDecode is returned when the source image cannot be decoded.
	ErrDecode = errors.New("thumbcache: decode failed")

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("thumbcache: cache closed")
)

// Errors re-exported from subpackages.
var (
	// ErrSuperseded is the cancellation cause of a load replaced by a newer one.
	ErrSuperseded = governor.ErrSuperseded

	// ErrCorrupt is returned when a disk cache entry cannot be decoded.
	ErrCorrupt = disk.ErrCorrupt
)
