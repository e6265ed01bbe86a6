// Package faces detects faces on photos and clusters them into face groups.
//
// Detection is delegated to a Detector; the bundled NoopDetector finds
// nothing. Clustering compares embeddings by Euclidean distance against the
// centroid of every group of the same owner.
package faces

import (
	"context"
	"fmt"
	"image"

	"photo-library/internal/apperr"
	"photo-library/internal/database"
)

// Detection is one face found on a photo.
type Detection struct {
	// Rect is normalized to [0,1] on both axes.
	Rect      database.Rect
	Embedding []float32
}

// Detector localizes faces and computes their embeddings.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// NoopDetector never finds a face.
type NoopDetector struct{}

// Detect implements Detector.
func (NoopDetector) Detect(context.Context, image.Image) ([]Detection, error) {
	return nil, nil
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, img image.Image) ([]Detection, error)

// Detect implements Detector.
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	return f(ctx, img)
}

// Validate checks that a detection has a well-formed rectangle and an
// embedding.
func (d Detection) Validate() error {
	r := d.Rect
	for _, v := range []float64{r.MinX, r.MinY, r.MaxX, r.MaxY} {
		if v < 0 || v > 1 {
			return fmt.Errorf("face rectangle %+v outside [0,1]: %w", r, apperr.ErrInvalidArgument)
		}
	}
	if r.MinX >= r.MaxX || r.MinY >= r.MaxY {
		return fmt.Errorf("face rectangle %+v is empty: %w", r, apperr.ErrInvalidArgument)
	}
	if len(d.Embedding) == 0 {
		return fmt.Errorf("face without embedding: %w", apperr.ErrInvalidArgument)
	}
	return nil
}
