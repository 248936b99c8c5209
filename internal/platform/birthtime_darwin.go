//go:build darwin

package platform

import (
	"io/fs"
	"syscall"
	"time"
)

// BirthTime extracts the creation time from file info on macOS.
func BirthTime(_ string, info fs.FileInfo) time.Time {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(stat.Birthtimespec.Sec, stat.Birthtimespec.Nsec).UTC()
	}
	return time.Time{}
}
