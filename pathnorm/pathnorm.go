// Package pathnorm canonicalizes file-system paths into cache keys.
//
// Normalization is lexical and deterministic: it never touches the file
// system, so two spellings of the same file that differ beyond what
// Normalize folds (for example through symlinks) produce different keys.
package pathnorm

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// foldCase is true on platforms whose default file systems are case-insensitive.
var foldCase = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// Normalize returns the absolute, cleaned form of path.
// Returns "" for an empty or blank path.
func Normalize(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if foldCase {
		abs = strings.ToLower(abs)
	}
	return abs
}

// Equal reports whether a and b normalize to the same key.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// IsWithin reports whether child is parent or lies beneath it.
func IsWithin(parent, child string) bool {
	p, c := Normalize(parent), Normalize(child)
	if p == "" || c == "" {
		return false
	}
	rel, err := filepath.Rel(p, c)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// DirExists reports whether path is an existing directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// FileExists reports whether path is an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
