package testutil

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// Gradient returns a w×h image with a deterministic color gradient.
func Gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{
				R: uint8(x * 255 / max(w-1, 1)),
				G: uint8(y * 255 / max(h-1, 1)),
				B: uint8((x + y) % 256),
				A: 0xFF,
			})
		}
	}
	return img
}

// WriteJPEG writes a w×h gradient JPEG to dir/name and returns its path.
func WriteJPEG(tb testing.TB, dir, name string, w, h int) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path) //nolint:gosec // test fixture path
	if err != nil {
		tb.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, Gradient(w, h), &jpeg.Options{Quality: 90}); err != nil {
		tb.Fatalf("encode %s: %v", path, err)
	}
	return path
}

// WritePNG writes a w×h gradient PNG to dir/name and returns its path.
func WritePNG(tb testing.TB, dir, name string, w, h int) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path) //nolint:gosec // test fixture path
	if err != nil {
		tb.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, Gradient(w, h)); err != nil {
		tb.Fatalf("encode %s: %v", path, err)
	}
	return path
}

// WriteBytes writes raw data to dir/name and returns its path.
func WriteBytes(tb testing.TB, dir, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}
