// Package thumbcache provides a two-tier cache of image previews.
//
// A [Cache] maps a source image path to a downscaled preview. Previews are
// served from an in-memory LRU tier when possible, then from a persistent
// disk tier keyed by a content fingerprint of the source, and otherwise
// decoded from the source and written back to both tiers.
//
// # Quick Start
//
//	c, err := thumbcache.New(thumbcache.WithCacheDir("/var/cache/thumbs"))
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	p, err := c.Load(ctx, "/photos/img_0001.jpg", nil)
//	if err != nil {
//	    return err
//	}
//	img := p.Image()
//
// # Tiers
//
// The memory tier is keyed by normalized path and holds at most MaxEntries
// previews; once it grows past TrimThreshold a background trim evicts the
// least recently used entries down to TrimTarget.
//
// The disk tier is keyed by fingerprint, so a renamed or moved source still
// hits, and an edited source misses. Entries are written in the background
// after a decode and are never overwritten. Entries not accessed for
// StaleAfter are removed by [Cache.Sweep], which runs once at startup.
//
// # Cancellation
//
// At most one load per path is live. Starting a new load for a path
// supersedes the previous one, which then returns [ErrCancelled] wrapping
// [ErrSuperseded]. [Cache.Cancel] and [Cache.CancelAll] cancel loads
// explicitly, and a cancelled caller context has the same effect.
// Cancellation is cooperative and observed between stages.
//
// [Cache.LoadThumbnail] is the lenient entry point: every failure, including
// cancellation, yields a nil preview.
//
// # Degraded Mode
//
// If the disk cache directory cannot be created, the cache logs the failure
// and runs with the memory tier only. Disk-tier failures during a load are
// logged and fall through to decoding the source.
package thumbcache
