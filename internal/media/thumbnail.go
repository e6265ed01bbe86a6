package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"time"

	"github.com/buckket/go-blurhash"
	"github.com/disintegration/imaging"

	"photo-library/internal/apperr"
	"photo-library/internal/database"
	"photo-library/internal/logging"
	"photo-library/internal/mediatypes"
	"photo-library/internal/metrics"
	"photo-library/internal/storage"
	"photo-library/internal/transcoder"
)

// Target sizes of derived images. Sources smaller than a target are never
// upscaled.
const (
	ThumbnailSize    = 1024
	ThumbnailQuality = 80
	HighResSize      = 2560
	HighResQuality   = 90

	blurhashSize        = 64
	blurhashXComponents = 4
	blurhashYComponents = 3
)

// FrameSource decodes what the Go image decoders cannot: video frames,
// exotic still formats and web renditions. WebRendition is only called
// while IsEnabled reports true.
type FrameSource interface {
	ExtractFrame(ctx context.Context, path string) (image.Image, error)
	DecodeStill(ctx context.Context, path string) (image.Image, error)
	IsEnabled() bool
	WebRendition(ctx context.Context, path string) (*transcoder.Rendition, error)
}

var _ FrameSource = (*transcoder.Transcoder)(nil)

// Source is a media file to derive assets from.
type Source struct {
	OwnerID int64
	Path    string
	Type    database.MediaType
	// Video is the inspected video info; nil for photos.
	Video *transcoder.VideoInfo
}

// Output lists the assets produced for one media. MediaID is unset on URLs.
type Output struct {
	URLs     []database.MediaURL
	Blurhash string
	// Preview is the decoded high resolution image of a photo, kept for
	// face detection. Nil for videos.
	Preview image.Image
	// Warnings are non-fatal failures, e.g. a failed web rendition.
	Warnings []error
}

// Purposes returns the set of purposes present in URLs.
func (o *Output) Purposes() map[string]bool {
	set := make(map[string]bool, len(o.URLs))
	for _, u := range o.URLs {
		set[u.Purpose] = true
	}
	return set
}

// Generator produces thumbnails, high resolution previews, blurhashes and
// web renditions.
type Generator struct {
	store   storage.Store
	frames  FrameSource
	method  func() string
	useVips bool
}

// NewGenerator creates a Generator storing assets in store. method returns
// the live downsample method and is read at every generation.
func NewGenerator(store storage.Store, frames FrameSource, method func() string, useVips bool) *Generator {
	if method == nil {
		method = func() string { return DefaultFilter }
	}
	return &Generator{
		store:   store,
		frames:  frames,
		method:  method,
		useVips: useVips,
	}
}

// Generate derives every asset of src. Undecodable sources yield
// apperr.ErrUnsupported.
func (g *Generator) Generate(ctx context.Context, src Source) (*Output, error) {
	start := time.Now()
	kind := string(src.Type)

	method := g.method()
	filter, err := ParseFilter(method)
	if err != nil {
		logging.Warn("Falling back to %s: %v", DefaultFilter, err)
		method = DefaultFilter
		filter, _ = ParseFilter(method)
	}

	var out *Output
	switch src.Type {
	case database.MediaTypePhoto:
		out, err = g.generatePhoto(ctx, src, filter, g.vipsFor(method))
	case database.MediaTypeVideo:
		out, err = g.generateVideo(ctx, src, filter)
	default:
		err = fmt.Errorf("unknown media type %q: %w", src.Type, apperr.ErrUnsupported)
	}

	metrics.ThumbnailGenerationDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		metrics.ThumbnailGenerationsTotal.WithLabelValues(kind, "success").Inc()
	case errors.Is(err, apperr.ErrUnsupported):
		metrics.ThumbnailGenerationsTotal.WithLabelValues(kind, "unsupported").Inc()
	default:
		metrics.ThumbnailGenerationsTotal.WithLabelValues(kind, "error").Inc()
	}
	return out, err
}

func (g *Generator) generatePhoto(ctx context.Context, src Source, filter imaging.ResampleFilter, vips bool) (*Output, error) {
	img, err := g.decodePhoto(ctx, src.Path, filter, vips)
	if err != nil {
		return nil, err
	}

	highres := imaging.Fit(img, HighResSize, HighResSize, filter)
	thumb := imaging.Fit(highres, ThumbnailSize, ThumbnailSize, filter)

	out := &Output{Preview: highres}
	for _, a := range []struct {
		img     image.Image
		purpose string
		quality int
	}{
		{highres, database.PurposeHighRes, HighResQuality},
		{thumb, database.PurposeThumbnail, ThumbnailQuality},
	} {
		u, err := g.putJPEG(ctx, src, a.purpose, a.img, a.quality)
		if err != nil {
			return nil, err
		}
		out.URLs = append(out.URLs, u)
	}

	out.Blurhash, err = Blurhash(thumb, filter)
	if err != nil {
		out.Warnings = append(out.Warnings, err)
	}
	return out, nil
}

// vipsFor reports whether photos downsampled with method may be shrunk by
// libvips. Its thumbnail kernel is Lanczos, so other methods stay on imaging.
func (g *Generator) vipsFor(method string) bool {
	return g.useVips && method == FilterLanczos
}

func (g *Generator) decodePhoto(ctx context.Context, path string, filter imaging.ResampleFilter, vips bool) (image.Image, error) {
	if vips && IsVipsAvailable() {
		img, err := LoadImageWithVips(path, HighResSize)
		if err == nil {
			return img, nil
		}
		logging.Debug("Vips decode failed for %s: %v", path, err)
	}

	img, err := LoadImageConstrained(path, MaxImageDimension, MaxImagePixels, filter)
	if err == nil {
		return img, nil
	}
	logging.Debug("Standard decode failed for %s: %v, trying ffmpeg fallback", path, err)

	if g.frames == nil {
		return nil, fmt.Errorf("cannot decode %s: %v: %w", path, err, apperr.ErrUnsupported)
	}
	img, ffErr := g.frames.DecodeStill(ctx, path)
	if ffErr != nil {
		return nil, fmt.Errorf("all image decode methods failed for %s: %v: %w", path, ffErr, apperr.ErrUnsupported)
	}
	return img, nil
}

func (g *Generator) generateVideo(ctx context.Context, src Source, filter imaging.ResampleFilter) (*Output, error) {
	if g.frames == nil {
		return nil, fmt.Errorf("no frame source for %s: %w", src.Path, apperr.ErrUnsupported)
	}

	frame, err := g.frames.ExtractFrame(ctx, src.Path)
	if err != nil {
		return nil, err
	}

	thumb := imaging.Fit(frame, ThumbnailSize, ThumbnailSize, filter)
	u, err := g.putJPEG(ctx, src, database.PurposeVideoThumbnail, thumb, ThumbnailQuality)
	if err != nil {
		return nil, err
	}

	out := &Output{URLs: []database.MediaURL{u}}
	out.Blurhash, err = Blurhash(thumb, filter)
	if err != nil {
		out.Warnings = append(out.Warnings, err)
	}

	switch {
	case src.Video == nil || !src.Video.NeedsTranscode:
	case !g.frames.IsEnabled():
		logging.Debug("Skipping web rendition of %s: transcoding disabled", src.Path)
	default:
		web, err := g.webRendition(ctx, src)
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Errorf("web rendition of %s: %w", src.Path, err))
		} else {
			out.URLs = append(out.URLs, *web)
		}
	}
	return out, nil
}

func (g *Generator) webRendition(ctx context.Context, src Source) (*database.MediaURL, error) {
	rendition, err := g.frames.WebRendition(ctx, src.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(rendition.Path); err != nil && !os.IsNotExist(err) {
			logging.Warn("failed to remove rendition %s: %v", rendition.Path, err)
		}
	}()

	f, err := os.Open(rendition.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	key := AssetKey(src.OwnerID, src.Path, database.PurposeVideoWeb, ".mp4")
	contentType := mediatypes.GetMimeType(".mp4")
	info, err := g.store.Put(ctx, key, f, rendition.Size, contentType)
	if err != nil {
		return nil, err
	}
	metrics.ThumbnailBytesWritten.WithLabelValues(database.PurposeVideoWeb).Add(float64(info.Size))

	return &database.MediaURL{
		Purpose:     database.PurposeVideoWeb,
		StorageKey:  key,
		ContentType: contentType,
		Width:       rendition.Width,
		Height:      rendition.Height,
		FileSize:    info.Size,
	}, nil
}

func (g *Generator) putJPEG(ctx context.Context, src Source, purpose string, img image.Image, quality int) (database.MediaURL, error) {
	data, err := EncodeJPEG(img, quality)
	if err != nil {
		return database.MediaURL{}, err
	}

	key := AssetKey(src.OwnerID, src.Path, purpose, ".jpg")
	contentType := mediatypes.GetMimeType(".jpg")
	info, err := g.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return database.MediaURL{}, fmt.Errorf("failed to store %s: %w", purpose, err)
	}
	metrics.ThumbnailBytesWritten.WithLabelValues(purpose).Add(float64(info.Size))

	b := img.Bounds()
	return database.MediaURL{
		Purpose:     purpose,
		StorageKey:  key,
		ContentType: contentType,
		Width:       b.Dx(),
		Height:      b.Dy(),
		FileSize:    info.Size,
	}, nil
}

// Delete removes derived assets, e.g. after their media was hard-deleted.
func (g *Generator) Delete(ctx context.Context, keys []string) error {
	return storage.DeleteAll(ctx, g.store, keys)
}

// EncodeJPEG encodes img at quality. Identical input yields identical bytes.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Blurhash encodes a 4x3 component blurhash of img from a 64px downscale.
func Blurhash(img image.Image, filter imaging.ResampleFilter) (string, error) {
	small := imaging.Fit(img, blurhashSize, blurhashSize, filter)
	hash, err := blurhash.Encode(blurhashXComponents, blurhashYComponents, small)
	if err != nil {
		return "", fmt.Errorf("failed to encode blurhash: %w", err)
	}
	return hash, nil
}
