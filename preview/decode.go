package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/disintegration/imaging"

	// Source and legacy cache formats beyond the ones imaging registers.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var jpegMagic = []byte{0xFF, 0xD8, 0xFF}

// Decode decodes a complete encoded image and scales it to width, preserving
// the aspect ratio. Images narrower than width are not enlarged.
func Decode(data []byte, width int) (*Preview, error) {
	if width <= 0 {
		return nil, ErrInvalidSize
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return wrap(scale(img, width, imaging.Lanczos)), nil
}

// DecodeFile decodes the image at path with minimal options. It is the
// fallback for sources the in-memory decode rejects.
func DecodeFile(path string, width int) (*Preview, error) {
	if width <= 0 {
		return nil, ErrInvalidSize
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return wrap(scale(img, width, imaging.Linear)), nil
}

// DecodeCached decodes a cache entry. Native JPEG entries are decoded
// directly; other formats are transcoded through NRGBA. The returned format
// name is "jpeg" for native entries.
func DecodeCached(data []byte) (*Preview, string, error) {
	if bytes.HasPrefix(data, jpegMagic) {
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decode jpeg: %w", err)
		}
		return wrap(imaging.Clone(img)), "jpeg", nil
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode legacy entry: %w", err)
	}
	return wrap(imaging.Clone(img)), format, nil
}

func scale(img image.Image, width int, filter imaging.ResampleFilter) *image.NRGBA {
	if img.Bounds().Dx() <= width {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, width, 0, filter)
}
