// Package metadata reads capture metadata from photos (EXIF) and videos
// (ffprobe, container tags).
//
// Missing or corrupt metadata is not an error: absent fields stay nil.
// Files that cannot be read at all are reported as apperr.ErrUnsupported.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/rwcarlsen/goexif/exif"

	"photo-library/internal/apperr"
	"photo-library/internal/database"
	"photo-library/internal/logging"
	"photo-library/internal/mediatypes"
	"photo-library/internal/metrics"
	"photo-library/internal/transcoder"
)

// Inspector reads video containers.
type Inspector interface {
	Inspect(ctx context.Context, filePath string) (*transcoder.MediaInfo, error)
}

// Result is the metadata of one media file.
type Result struct {
	Type  mediatypes.MediaType
	Title string
	// DateShot is the capture date, or the import time when the file
	// carries none.
	DateShot time.Time
	// DateFromMetadata reports whether DateShot came from the file.
	DateFromMetadata bool
	// Orientation is the EXIF orientation (1 to 8), 1 when absent.
	Orientation int
	EXIF        *database.MediaEXIF
	Video       *database.VideoMetadata
	// Container is the ffprobe output for videos.
	Container *transcoder.MediaInfo
}

// Extractor reads metadata for the scanner.
type Extractor struct {
	inspector Inspector
	now       func() time.Time
}

// NewExtractor creates an Extractor that reads videos with inspector.
func NewExtractor(inspector Inspector) *Extractor {
	return &Extractor{inspector: inspector, now: time.Now}
}

// Extract reads the metadata of path as mediaType.
func (e *Extractor) Extract(ctx context.Context, path string, mediaType mediatypes.MediaType) (*Result, error) {
	var (
		result *Result
		err    error
	)

	switch mediaType {
	case mediatypes.MediaTypePhoto:
		result, err = e.extractPhoto(path)
	case mediatypes.MediaTypeVideo:
		result, err = e.extractVideo(ctx, path)
	default:
		err = fmt.Errorf("%s: unknown media type %q: %w", path, mediaType, apperr.ErrUnsupported)
	}

	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrUnsupported):
		status = "unsupported"
	default:
		status = "error"
	}
	metrics.MetadataExtractionsTotal.WithLabelValues(string(mediaType), status).Inc()

	if err != nil {
		return nil, err
	}

	if result.DateShot.IsZero() {
		result.DateShot = e.now().UTC()
	} else {
		result.DateFromMetadata = true
	}
	return result, nil
}

func (e *Extractor) extractPhoto(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, apperr.ErrUnsupported)
	}
	defer f.Close()

	result := &Result{
		Type:        mediatypes.MediaTypePhoto,
		Title:       filepath.Base(path),
		Orientation: 1,
	}

	x, err := exif.Decode(f)
	if err != nil || x == nil {
		if err != nil && !exif.IsCriticalError(err) {
			logging.Debug("Partial EXIF in %s: %v", path, err)
		}
		if x == nil {
			return result, nil
		}
	}

	result.EXIF = photoEXIF(x)
	if result.EXIF.DateShot != nil {
		result.DateShot = result.EXIF.DateShot.Time
	}
	if o, ok := intField(x, exif.Orientation); ok && o >= 1 && o <= 8 {
		result.Orientation = int(o)
	}
	return result, nil
}

func (e *Extractor) extractVideo(ctx context.Context, path string) (*Result, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, apperr.ErrUnsupported)
	}
	if e.inspector == nil {
		return nil, fmt.Errorf("%s: no video inspector configured: %w", path, apperr.ErrUnsupported)
	}

	container, err := e.inspector.Inspect(ctx, path)
	if err != nil {
		return nil, err
	}
	stream := container.VideoStream()
	if stream == nil {
		return nil, fmt.Errorf("%s has no video stream: %w", path, apperr.ErrUnsupported)
	}

	result := &Result{
		Type:        mediatypes.MediaTypeVideo,
		Title:       videoTitle(path, container),
		Orientation: 1,
		Video:       videoMetadata(container, stream),
		Container:   container,
	}
	if created, ok := container.CreationTime(); ok {
		result.DateShot = created.UTC()
	}
	return result, nil
}

func videoMetadata(container *transcoder.MediaInfo, stream *transcoder.StreamInfo) *database.VideoMetadata {
	v := &database.VideoMetadata{}
	if stream.Width > 0 && stream.Height > 0 {
		v.Width = ptr(int64(stream.Width))
		v.Height = ptr(int64(stream.Height))
	}
	if d, ok := container.Duration(); ok {
		v.Duration = ptr(d)
	}
	if stream.CodecName != "" {
		v.Codec = ptr(stream.CodecName)
	}
	if fr, ok := stream.FrameRate(); ok {
		v.Framerate = ptr(fr)
	}
	if br, ok := container.BitRate(); ok {
		v.Bitrate = ptr(br)
	}
	if cp := stream.ColorProfile(); cp != "" {
		v.ColorProfile = ptr(cp)
	}
	if audio := container.AudioStream(); audio != nil {
		v.Audio = ptr(audio.AudioDescription())
	}
	return v
}

// mp4Family are containers dhowden/tag reads atoms from.
var mp4Family = map[string]bool{".mp4": true, ".m4v": true, ".mov": true, ".3gp": true}

// videoTitle prefers an embedded title and falls back to the file name.
func videoTitle(path string, container *transcoder.MediaInfo) string {
	if mp4Family[strings.ToLower(filepath.Ext(path))] {
		if title := containerTitle(path); title != "" {
			return title
		}
	}
	if title := strings.TrimSpace(container.Format.Tags["title"]); title != "" {
		return title
	}
	return filepath.Base(path)
}

func containerTitle(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		logging.Debug("No container tags in %s: %v", path, err)
		return ""
	}
	return strings.TrimSpace(m.Title())
}

func ptr[T any](v T) *T {
	return &v
}
