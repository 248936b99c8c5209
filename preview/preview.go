// Package preview decodes source images into reduced-resolution previews and
// encodes previews into the cache's on-disk format.
//
// A Preview is immutable after construction and safe to share between
// goroutines. Every decode path produces an *image.NRGBA that nothing else
// references, and the accessors never hand out a mutable copy.
package preview

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

// ErrInvalidSize is returned when a target width is not positive.
var ErrInvalidSize = errors.New("preview: target width must be > 0")

// Preview is a decoded, reduced-resolution image.
type Preview struct {
	img *image.NRGBA
}

// New copies img into a new Preview.
func New(img image.Image) *Preview {
	if img == nil {
		return nil
	}
	return &Preview{img: imaging.Clone(img)}
}

// wrap adopts img without copying; callers must not retain img.
func wrap(img *image.NRGBA) *Preview {
	return &Preview{img: img}
}

// Width returns the preview width in pixels.
func (p *Preview) Width() int {
	return p.img.Rect.Dx()
}

// Height returns the preview height in pixels.
func (p *Preview) Height() int {
	return p.img.Rect.Dy()
}

// Bounds returns the preview bounds.
func (p *Preview) Bounds() image.Rectangle {
	return p.img.Rect
}

// Image returns the shared pixel data. The returned image must not be modified.
func (p *Preview) Image() image.Image {
	return p.img
}

// SizeBytes returns the approximate in-memory size of the pixel buffer.
func (p *Preview) SizeBytes() int {
	return len(p.img.Pix)
}
