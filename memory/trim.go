package memory

import (
	"cmp"
	"slices"
	"strings"
)

type candidate struct {
	key        string
	e          *entry
	lastAccess int64
}

// Trim evicts entries until the cache is at or below its trim target and
// returns the number removed. Dead weak entries go first, then the least
// recently accessed live entries; ties are broken by key. Trim waits for a
// running background trim to finish.
func (c *Cache) Trim() int {
	c.trimMu.Lock()
	defer c.trimMu.Unlock()
	return c.trimLocked()
}

func (c *Cache) trimLocked() int {
	removed := 0
	live := make([]candidate, 0, c.Len())
	c.entries.Range(func(key, value any) bool {
		k, e := key.(string), value.(*entry)
		if e.value() == nil {
			if c.remove(k, e) {
				removed++
			}
			return true
		}
		live = append(live, candidate{key: k, e: e, lastAccess: e.lastAccess.Load()})
		return true
	})
	dead := removed

	excess := len(live) - int(c.trimTarget.Load())
	if excess > 0 {
		slices.SortFunc(live, func(a, b candidate) int {
			if n := cmp.Compare(a.lastAccess, b.lastAccess); n != 0 {
				return n
			}
			return strings.Compare(a.key, b.key)
		})
		for _, cand := range live[:excess] {
			if c.remove(cand.key, cand.e) {
				removed++
			}
		}
	}

	if removed > 0 {
		c.evictions.Add(int64(removed))
		c.log().Debug("memory cache trimmed",
			"dead", dead,
			"evicted", removed-dead,
			"remaining", c.Len())
	}
	return removed
}
