//go:build windows

package platform

import (
	"io/fs"
	"syscall"
	"time"
)

// BirthTime extracts the creation time from file info on Windows.
func BirthTime(_ string, info fs.FileInfo) time.Time {
	if data, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		return time.Unix(0, data.CreationTime.Nanoseconds()).UTC()
	}
	return time.Time{}
}
