package media

import (
	"fmt"
	"image"
	"math"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"photo-library/internal/logging"
)

// Decode limits for the pure Go path. Anything larger is resampled right
// after decoding so derived assets never hold a 100MP bitmap for long.
const (
	MaxImageDimension = 8192
	MaxImagePixels    = 40_000_000
)

// LoadImageConstrained decodes path honouring EXIF orientation and shrinks
// the result with filter when it exceeds maxDimension on either side or
// maxPixels in area.
func LoadImageConstrained(path string, maxDimension, maxPixels int, filter imaging.ResampleFilter) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	b := img.Bounds()
	w, h := constrain(b.Dx(), b.Dy(), maxDimension, maxPixels)
	if w == b.Dx() && h == b.Dy() {
		return img, nil
	}

	logging.Debug("Downscaling %s from %dx%d to %dx%d", path, b.Dx(), b.Dy(), w, h)
	return imaging.Resize(img, w, h, filter), nil
}

// constrain fits width x height inside both limits, preserving the aspect
// ratio. Neither side drops below one pixel.
func constrain(width, height, maxDimension, maxPixels int) (int, int) {
	w, h := width, height

	if longest := max(w, h); longest > maxDimension {
		w = w * maxDimension / longest
		h = h * maxDimension / longest
	}

	if area := w * h; area > maxPixels {
		f := math.Sqrt(float64(maxPixels) / float64(area))
		w = int(float64(w) * f)
		h = int(float64(h) * f)
	}

	return max(w, 1), max(h, 1)
}
