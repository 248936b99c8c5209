// Package fingerprint derives path-independent identities for image files.
//
// A fingerprint hashes the file length, creation time, last-write time and a
// leading sample of the content. It is stable across renames and moves as long
// as the file metadata is preserved, which lets the disk cache serve a moved
// file without re-decoding it.
//
// Fingerprints are not integrity hashes: two files with identical length,
// timestamps and leading SampleSize bytes produce the same fingerprint.
package fingerprint

import (
	"crypto/md5" //nolint:gosec // identity digest, not a security boundary
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/meigma/thumbcache/internal/platform"
)

// SampleSize is the maximum number of leading content bytes hashed.
const SampleSize = 32 << 10

// ErrNotRegular is returned when the path is not a regular file.
var ErrNotRegular = errors.New("not a regular file")

const (
	fallbackPrefix = "fallback-"

	// Timestamps are hashed as 100ns ticks since 0001-01-01 UTC.
	nanosPerTick   = 100
	unixEpochTicks = 621355968000000000
)

// encodedLen is the length of an encoded 128-bit digest.
var encodedLen = base64.RawURLEncoding.EncodedLen(md5.Size)

// Fingerprint is a short URL-safe identity string for file content.
type Fingerprint string

// String returns the fingerprint as a string.
func (f Fingerprint) String() string {
	return string(f)
}

// Compute returns the fingerprint for the file at path.
func Compute(path string) (Fingerprint, error) {
	f, err := os.Open(path) //nolint:gosec // caller-provided image path
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s: %w", path, ErrNotRegular)
	}

	h := md5.New() //nolint:gosec // see import
	header := strconv.FormatInt(info.Size(), 10) + "|" +
		strconv.FormatInt(ticks(platform.BirthTime(path, info)), 10) + "|" +
		strconv.FormatInt(ticks(info.ModTime()), 10)
	if _, err := io.WriteString(h, header); err != nil {
		return "", err
	}
	if _, err := io.CopyN(h, f, SampleSize); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read sample: %w", err)
	}

	return Fingerprint(base64.RawURLEncoding.EncodeToString(h.Sum(nil))), nil
}

// ComputeOrFallback returns the fingerprint for path, or a fallback value that
// never matches a previous fingerprint if the file cannot be read.
func ComputeOrFallback(path string) Fingerprint {
	fp, err := Compute(path)
	if err != nil {
		return Fallback(path, time.Now())
	}
	return fp
}

// Fallback builds the degenerate fingerprint used when a file cannot be read.
// It embeds the path and timestamp, so it never hits an existing cache entry.
func Fallback(path string, now time.Time) Fingerprint {
	return Fingerprint(fallbackPrefix +
		base64.RawURLEncoding.EncodeToString([]byte(path)) + "-" +
		strconv.FormatInt(now.UnixNano(), 10))
}

// IsFallback reports whether fp was produced by Fallback.
func IsFallback(fp Fingerprint) bool {
	return len(fp) != encodedLen && strings.HasPrefix(string(fp), fallbackPrefix)
}

func ticks(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()/nanosPerTick + unixEpochTicks
}
