package preview

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
)

// Native on-disk encoding of cache entries.
const (
	Format = "jpeg"
	Ext    = ".jpg"
)

// LegacyExts lists extensions of cache entries written by older versions.
// They remain readable through DecodeCached.
var LegacyExts = []string{".webp", ".png"}

// Quality bands, highest for the smallest previews.
const (
	QualitySmall  = 95
	QualityMedium = 85
	QualityLarge  = 75
)

// QualityFor returns the encode quality for a preview of the given size.
// Compression artifacts are more visible on small images.
func QualityFor(width, height int) int {
	pixels := width * height
	switch {
	case pixels < 100*100:
		return QualitySmall
	case pixels < 200*200:
		return QualityMedium
	default:
		return QualityLarge
	}
}

// Encode writes p to w in the native format at the given quality.
func Encode(w io.Writer, p *Preview, quality int) error {
	if p == nil {
		return errors.New("preview: nil preview")
	}
	if err := imaging.Encode(w, p.img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// EncodeBytes encodes p at the quality chosen by QualityFor.
func EncodeBytes(p *Preview) ([]byte, error) {
	var buf bytes.Buffer
	if p == nil {
		return nil, errors.New("preview: nil preview")
	}
	if err := Encode(&buf, p, QualityFor(p.Width(), p.Height())); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
