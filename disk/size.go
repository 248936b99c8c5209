package disk

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Size accounting: every regular file in the cache directory counts toward
// the cache size, temporary files included, since they occupy the same
// disk. Only finished entries are counted as entries or considered for
// pruning; temporary files belong to a Save in progress or are left for
// Sweep.

type cacheEntry struct {
	path    string
	size    int64
	modTime time.Time
}

type dirScan struct {
	entries   []cacheEntry
	tempBytes int64
}

func (s dirScan) totalBytes() int64 {
	total := s.tempBytes
	for _, e := range s.entries {
		total += e.size
	}
	return total
}

// scanDir lists the regular files in the flat cache directory at root.
// A missing directory scans as empty.
func scanDir(root string) (dirScan, error) {
	var scan dirScan
	dirEntries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return scan, nil
		}
		return scan, err
	}
	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return dirScan{}, err
		}
		if isTemp(de.Name()) {
			scan.tempBytes += info.Size()
			continue
		}
		scan.entries = append(scan.entries, cacheEntry{
			path:    filepath.Join(root, de.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	return scan, nil
}

// dirStats returns the cache size and the number of finished entries.
func dirStats(root string) (int64, int, error) {
	scan, err := scanDir(root)
	if err != nil {
		return 0, 0, err
	}
	return scan.totalBytes(), len(scan.entries), nil
}

// pruneDir removes the least recently accessed entries until the cache size
// is at or below targetBytes. Temporary files count toward the size but are
// never removed here, so remaining may stay above targetBytes.
func pruneDir(root string, targetBytes int64) (freed int64, remaining int64, err error) {
	targetBytes = max(targetBytes, 0)
	scan, err := scanDir(root)
	if err != nil {
		return 0, 0, err
	}
	remaining = scan.totalBytes()
	if remaining <= targetBytes {
		return 0, remaining, nil
	}

	slices.SortFunc(scan.entries, func(a, b cacheEntry) int {
		if n := a.modTime.Compare(b.modTime); n != 0 {
			return n
		}
		return strings.Compare(a.path, b.path)
	})
	for _, e := range scan.entries {
		if remaining <= targetBytes {
			break
		}
		if err := os.Remove(e.path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				remaining -= e.size
				continue
			}
			return freed, remaining, err
		}
		remaining -= e.size
		freed += e.size
	}
	return freed, remaining, nil
}

