//go:build !linux && !darwin && !windows

package platform

import (
	"io/fs"
	"time"
)

// BirthTime returns the zero time on systems without a creation timestamp.
func BirthTime(_ string, _ fs.FileInfo) time.Time {
	return time.Time{}
}
