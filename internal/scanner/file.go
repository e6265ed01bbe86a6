package scanner

import (
	"context"
	"fmt"
	"os"
	"time"

	"photo-library/internal/database"
	"photo-library/internal/faces"
	"photo-library/internal/logging"
	"photo-library/internal/media"
	"photo-library/internal/mediatypes"
	"photo-library/internal/metrics"
)

// scanFile decides whether path needs processing and processes it. Failures
// are recorded as warnings; a file that fails but already has a live record
// keeps it.
func (r *run) scanFile(ctx context.Context, path string, entry os.DirEntry, albumID int64, existing map[string]database.Media) {
	prev, known := existing[path]
	keep := func() {
		if known && !prev.Tombstoned() {
			r.markSeen(ctx, prev.ID)
		}
	}
	fail := func(err error) {
		r.result.Failed++
		metrics.ScanFilesTotal.WithLabelValues("error").Inc()
		r.warn(err)
		keep()
	}

	info, err := entry.Info()
	if err != nil {
		fail(fmt.Errorf("%s: %w", path, err))
		return
	}
	fp, err := Fingerprint(ctx, path, info, r.s.cfg.ContentHash, r.s.cfg.Retry)
	if err != nil {
		fail(err)
		return
	}

	if known && prev.Fingerprint == fp && !prev.Tombstoned() && !r.job.Regenerate {
		r.result.Unchanged++
		metrics.ScanFilesTotal.WithLabelValues("unchanged").Inc()
		r.markSeen(ctx, prev.ID)
		return
	}

	// Regenerating an unchanged file refreshes its derived assets only. Its
	// faces and their groups belong to the user.
	assetsOnly := known && prev.Fingerprint == fp && !prev.Tombstoned()

	mediaType, err := mediatypes.Classify(path)
	if err != nil {
		r.result.Failed++
		metrics.ScanFilesTotal.WithLabelValues("unsupported").Inc()
		r.warn(err)
		keep()
		return
	}

	// A started file always runs to completion.
	work := context.WithoutCancel(ctx)
	start := time.Now()
	err = r.process(work, path, fp, mediaType, albumID, assetsOnly)
	metrics.ScanFileDuration.WithLabelValues(string(mediaType)).Observe(time.Since(start).Seconds())
	if err != nil {
		fail(fmt.Errorf("%s: %w", path, err))
		return
	}

	if known {
		r.result.Changed++
		metrics.ScanFilesTotal.WithLabelValues("changed").Inc()
	} else {
		r.result.New++
		metrics.ScanFilesTotal.WithLabelValues("new").Inc()
	}
}

// process runs one file through the pipeline and commits the result in a
// single transaction. With assetsOnly set face detection is skipped and the
// stored faces are left alone.
func (r *run) process(ctx context.Context, path, fingerprint string, mediaType mediatypes.MediaType, albumID int64, assetsOnly bool) error {
	cfg := r.s.cfg
	owner := r.job.UserID

	meta, err := cfg.Extractor.Extract(ctx, path, mediaType)
	if err != nil {
		return err
	}

	src := media.Source{OwnerID: owner, Path: path, Type: database.MediaType(mediaType)}
	if meta.Container != nil {
		src.Video, err = meta.Container.VideoInfo(path)
		if err != nil {
			return err
		}
	}
	out, err := cfg.Thumbnails.Generate(ctx, src)
	if err != nil {
		return err
	}
	for _, w := range out.Warnings {
		r.warn(w)
	}

	var dets []faces.Detection
	detected := false
	if src.Type == database.MediaTypePhoto && out.Preview != nil && !assetsOnly {
		dets, err = cfg.Detector.Detect(ctx, out.Preview)
		if err != nil {
			r.warn(fmt.Errorf("face detection on %s: %w", path, err))
		} else {
			detected = true
		}
	}

	var blurhash *string
	if out.Blurhash != "" {
		blurhash = &out.Blurhash
	}
	record := &database.Media{
		Title:       meta.Title,
		Path:        path,
		Type:        src.Type,
		AlbumID:     albumID,
		OwnerID:     owner,
		DateShot:    database.NewTimestamp(meta.DateShot),
		Blurhash:    blurhash,
		Fingerprint: fingerprint,
		LastSeen:    r.seen,
	}

	unlock := cfg.Faces.LockOwner(owner)
	defer unlock()

	var stale []string
	err = cfg.DB.WithTx(ctx, func(tx *database.Tx) error {
		id, err := tx.UpsertMedia(ctx, record)
		if err != nil {
			return err
		}
		if err := tx.ReplaceEXIF(ctx, id, meta.EXIF); err != nil {
			return fmt.Errorf("failed to store exif: %w", err)
		}
		if err := tx.ReplaceVideoMetadata(ctx, id, meta.Video); err != nil {
			return fmt.Errorf("failed to store video metadata: %w", err)
		}

		previous, err := tx.MediaURLs(ctx, id)
		if err != nil {
			return err
		}
		for i := range out.URLs {
			u := out.URLs[i]
			u.MediaID = id
			if err := tx.UpsertMediaURL(ctx, &u); err != nil {
				return fmt.Errorf("failed to store %s url: %w", u.Purpose, err)
			}
		}
		current := out.Purposes()
		for _, u := range previous {
			if current[u.Purpose] {
				continue
			}
			if err := tx.DeleteMediaURL(ctx, id, u.Purpose); err != nil {
				return err
			}
			stale = append(stale, u.StorageKey)
		}

		if detected {
			if _, err := cfg.Faces.AssignFaces(ctx, tx, owner, id, dets); err != nil {
				return fmt.Errorf("failed to assign faces: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(stale) > 0 {
		if err := cfg.Thumbnails.Delete(ctx, stale); err != nil {
			logging.Warn("Failed to delete stale assets of %s: %v", path, err)
		}
	}
	logging.Debug("Indexed %s (%s, %d assets, %d faces)", path, mediaType, len(out.URLs), len(dets))
	return nil
}
