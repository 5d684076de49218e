// Package thumb renders downscaled JPEG previews of catalog images.
package thumb

import (
	"fmt"
	"io"

	"github.com/disintegration/imaging"
)

const (
	// DefaultSize bounds both dimensions when the caller passes zero.
	DefaultSize = 320
	// MaxSize caps requested dimensions.
	MaxSize = 2048
	quality = 80
)

// Clamp normalises a requested bound.
func Clamp(n int) int {
	switch {
	case n <= 0:
		return DefaultSize
	case n > MaxSize:
		return MaxSize
	default:
		return n
	}
}

// Render decodes the image at path, honouring its EXIF orientation, fits it
// inside width×height, and writes it to w as JPEG.
func Render(w io.Writer, path string, width, height int) error {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("thumb: open %s: %w", path, err)
	}
	fitted := imaging.Fit(img, Clamp(width), Clamp(height), imaging.Lanczos)
	if err := imaging.Encode(w, fitted, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("thumb: encode: %w", err)
	}
	return nil
}
