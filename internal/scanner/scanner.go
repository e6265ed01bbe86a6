// Package scanner implements the per-user scan job: it walks the root paths
// of a user, diffs every directory against the catalog and runs new or
// changed files through metadata extraction, thumbnail generation and face
// detection.
//
// Each file is committed in its own transaction. Records whose file was not
// seen by a complete scan are tombstoned, unless the root could not be read,
// the directory listing failed or the job was cancelled.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"photo-library/internal/apperr"
	"photo-library/internal/database"
	"photo-library/internal/faces"
	"photo-library/internal/filesystem"
	"photo-library/internal/logging"
	"photo-library/internal/media"
	"photo-library/internal/mediatypes"
	"photo-library/internal/memory"
	"photo-library/internal/metadata"
	"photo-library/internal/metrics"
)

const (
	// Number of unchanged media marked seen per transaction
	touchBatchSize = 500

	// Minimum delay between two progress reports
	progressInterval = 250 * time.Millisecond

	// Warnings kept verbatim in a Result
	maxWarnings = 20
)

// MetadataExtractor reads capture metadata.
type MetadataExtractor interface {
	Extract(ctx context.Context, path string, mediaType mediatypes.MediaType) (*metadata.Result, error)
}

// ThumbnailGenerator derives thumbnails and renditions.
type ThumbnailGenerator interface {
	Generate(ctx context.Context, src media.Source) (*media.Output, error)
	Delete(ctx context.Context, keys []string) error
}

// FaceClusterer places detected faces into face groups.
type FaceClusterer interface {
	LockOwner(ownerID int64) func()
	AssignFaces(ctx context.Context, tx *database.Tx, ownerID, mediaID int64, dets []faces.Detection) ([]database.ImageFace, error)
}

// Throttle holds scans back under resource pressure. Wait returns an
// error only when ctx ends.
type Throttle interface {
	Wait(ctx context.Context) error
}

var (
	_ MetadataExtractor  = (*metadata.Extractor)(nil)
	_ ThumbnailGenerator = (*media.Generator)(nil)
	_ FaceClusterer      = (*faces.Service)(nil)
	_ Throttle           = (*memory.Guard)(nil)
)

// Config wires the scanner to the pipeline stages.
type Config struct {
	DB          *database.Database
	Extractor   MetadataExtractor
	Thumbnails  ThumbnailGenerator
	Detector    faces.Detector
	Faces       FaceClusterer
	Retry       filesystem.RetryConfig
	ContentHash bool
	// Throttle, when set, is consulted before each file.
	Throttle Throttle
}

// Scanner runs scan jobs. It is safe for concurrent use by jobs of
// different users.
type Scanner struct {
	cfg     Config
	readDir func(ctx context.Context, path string) ([]os.DirEntry, error)
	now     func() time.Time
}

// New creates a Scanner. A nil Detector finds no faces.
func New(cfg Config) *Scanner {
	if cfg.Detector == nil {
		cfg.Detector = faces.NoopDetector{}
	}
	s := &Scanner{cfg: cfg, now: time.Now}
	s.readDir = func(ctx context.Context, path string) ([]os.DirEntry, error) {
		return filesystem.ReadDirWithRetry(ctx, path, s.cfg.Retry)
	}
	return s
}

// Job describes one scan of a user's library.
type Job struct {
	UserID int64
	// Regenerate reprocesses unchanged files too.
	Regenerate bool
	// Progress, when set, receives throttled progress reports and a final
	// report when the walk ends.
	Progress func(Progress)
}

// Progress is a snapshot of a running job. Total grows as directories are
// listed, so Fraction is an estimate.
type Progress struct {
	Processed int     `json:"processed"`
	Total     int     `json:"total"`
	Fraction  float64 `json:"fraction"`
	Current   string  `json:"current,omitempty"`
}

// Result summarizes a finished job.
type Result struct {
	Albums           int      `json:"albums"`
	NewAlbums        int      `json:"newAlbums"`
	New              int      `json:"new"`
	Changed          int      `json:"changed"`
	Unchanged        int      `json:"unchanged"`
	Failed           int      `json:"failed"`
	Tombstoned       int64    `json:"tombstoned"`
	TombstonedAlbums int64    `json:"tombstonedAlbums"`
	Warnings         []string `json:"warnings,omitempty"`
	Cancelled        bool     `json:"cancelled"`
}

// Summary is a one-line human readable description of r.
func (r *Result) Summary() string {
	s := fmt.Sprintf("%d new, %d changed, %d unchanged, %d removed", r.New, r.Changed, r.Unchanged, r.Tombstoned)
	if r.Failed > 0 {
		s += fmt.Sprintf(", %d failed", r.Failed)
	}
	return s
}

// run is the state of one job.
type run struct {
	s      *Scanner
	job    Job
	seen   database.Timestamp
	result Result

	processed  int
	total      int
	lastReport time.Time
	touch      []int64
	failedDirs []string
	rootFailed bool
}

// Run scans every root path of job.UserID. When ctx is cancelled the job
// stops at the next directory or file boundary, skips tombstoning and
// returns the partial result with ctx's error.
func (s *Scanner) Run(ctx context.Context, job Job) (*Result, error) {
	roots, err := s.cfg.DB.RootPaths(ctx, job.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load root paths of user %d: %w", job.UserID, err)
	}

	r := &run{s: s, job: job, seen: database.NewTimestamp(s.now().UTC())}
	logging.Info("Scanning %d root paths of user %d", len(roots), job.UserID)

	for _, root := range roots {
		if ctx.Err() != nil {
			break
		}
		r.scanRoot(ctx, root)
	}
	r.flushTouch(context.WithoutCancel(ctx))
	r.report("", true)

	if err := ctx.Err(); err != nil {
		r.result.Cancelled = true
		logging.Info("Scan of user %d cancelled: %s", job.UserID, r.result.Summary())
		return &r.result, err
	}
	logging.Info("Scan of user %d complete: %s", job.UserID, r.result.Summary())
	return &r.result, nil
}

func (r *run) scanRoot(ctx context.Context, root database.RootPath) {
	r.failedDirs = r.failedDirs[:0]
	r.rootFailed = false

	info, err := filesystem.StatWithRetry(ctx, root.Path, r.s.cfg.Retry)
	if err != nil || !info.IsDir() {
		r.warn(fmt.Errorf("root %s is not readable, keeping its records: %v", root.Path, err))
		return
	}

	err = r.s.cfg.DB.WithTx(ctx, func(tx *database.Tx) error {
		return tx.MarkAlbumSeen(ctx, root.AlbumID, r.seen)
	})
	if err != nil {
		r.warn(fmt.Errorf("root album of %s: %w", root.Path, err))
		return
	}
	r.result.Albums++
	metrics.ScanAlbumsTotal.WithLabelValues("existing").Inc()

	r.walkDir(ctx, root.Path, root.AlbumID, nil)

	// Touches must land before tombstoning compares last_seen.
	r.flushTouch(context.WithoutCancel(ctx))
	if ctx.Err() != nil || r.rootFailed {
		return
	}
	if err := r.tombstone(ctx, root.Path); err != nil {
		r.warn(fmt.Errorf("tombstoning below %s: %w", root.Path, err))
	}
}

func (r *run) walkDir(ctx context.Context, dir string, albumID int64, inherited ignoreRules) {
	if ctx.Err() != nil {
		return
	}

	entries, err := r.s.readDir(ctx, dir)
	if err != nil {
		r.failedDirs = append(r.failedDirs, dir)
		r.warn(fmt.Errorf("listing %s: %w", dir, err))
		return
	}

	rules, err := loadIgnore(ctx, dir, r.s.cfg.Retry, inherited)
	if err != nil {
		r.warn(err)
	}

	var files, dirs []os.DirEntry
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || rules.Match(filepath.Join(dir, e.Name())) {
			continue
		}
		switch {
		case e.IsDir():
			dirs = append(dirs, e)
		case e.Type().IsRegular() && mediatypes.IsMediaFile(e.Name()):
			files = append(files, e)
		}
	}
	r.total += len(files)

	var existing map[string]database.Media
	if len(files) > 0 {
		existing, err = r.s.cfg.DB.MediaInAlbum(ctx, albumID)
		if err != nil {
			r.failedDirs = append(r.failedDirs, dir)
			r.warn(fmt.Errorf("loading media of %s: %w", dir, err))
			return
		}
	}

	for _, e := range files {
		if ctx.Err() != nil {
			return
		}
		if t := r.s.cfg.Throttle; t != nil && t.Wait(ctx) != nil {
			return
		}
		path := filepath.Join(dir, e.Name())
		r.scanFile(ctx, path, e, albumID, existing)
		r.processed++
		r.report(path, false)
	}

	for _, e := range dirs {
		if ctx.Err() != nil {
			return
		}
		path := filepath.Join(dir, e.Name())
		childID, err := r.ensureAlbum(ctx, path, albumID)
		if err != nil {
			r.failedDirs = append(r.failedDirs, path)
			r.warn(fmt.Errorf("album for %s: %w", path, err))
			continue
		}
		r.walkDir(ctx, path, childID, rules)
	}
}

// ensureAlbum finds or creates the album of dir below parentID and marks it
// seen.
func (r *run) ensureAlbum(ctx context.Context, dir string, parentID int64) (int64, error) {
	var id int64
	var created bool
	err := r.s.cfg.DB.WithTx(ctx, func(tx *database.Tx) error {
		album, err := tx.FindAlbumByPath(ctx, r.job.UserID, dir)
		if err == nil {
			id = album.ID
			return tx.MarkAlbumSeen(ctx, album.ID, r.seen)
		}
		if !isNotFound(err) {
			return err
		}
		album, err = tx.CreateAlbum(ctx, &database.Album{
			Title:         filepath.Base(dir),
			Path:          dir,
			ParentAlbumID: &parentID,
			OwnerID:       r.job.UserID,
			LastSeen:      r.seen,
		})
		if err != nil {
			return err
		}
		id, created = album.ID, true
		return nil
	})
	switch {
	case err != nil:
		metrics.ScanAlbumsTotal.WithLabelValues("error").Inc()
		return 0, err
	case created:
		r.result.NewAlbums++
		metrics.ScanAlbumsTotal.WithLabelValues("new").Inc()
	default:
		metrics.ScanAlbumsTotal.WithLabelValues("existing").Inc()
	}
	r.result.Albums++
	return id, nil
}

// tombstone marks records below root that this scan did not see, except
// inside subtrees whose listing failed.
func (r *run) tombstone(ctx context.Context, root string) error {
	db := r.s.cfg.DB
	albums, err := db.AlbumsUnder(ctx, r.job.UserID, root)
	if err != nil {
		return err
	}
	mediaList, err := db.MediaUnder(ctx, r.job.UserID, root)
	if err != nil {
		return err
	}

	var albumIDs, mediaIDs []int64
	for _, a := range albums {
		if a.DeletedAt == nil && a.LastSeen.Before(r.seen.Time) && !r.insideFailed(a.Path) {
			albumIDs = append(albumIDs, a.ID)
		}
	}
	for _, m := range mediaList {
		if m.DeletedAt == nil && m.LastSeen.Before(r.seen.Time) && !r.insideFailed(m.Path) {
			mediaIDs = append(mediaIDs, m.ID)
		}
	}
	if len(albumIDs) == 0 && len(mediaIDs) == 0 {
		return nil
	}

	return db.WithTx(ctx, func(tx *database.Tx) error {
		n, err := tx.TombstoneMedia(ctx, mediaIDs, r.seen)
		if err != nil {
			return err
		}
		a, err := tx.TombstoneAlbums(ctx, albumIDs, r.seen)
		if err != nil {
			return err
		}
		r.result.Tombstoned += n
		r.result.TombstonedAlbums += a
		metrics.ScanTombstonesTotal.WithLabelValues("media").Add(float64(n))
		metrics.ScanTombstonesTotal.WithLabelValues("album").Add(float64(a))
		if n > 0 || a > 0 {
			logging.Info("Tombstoned %d media and %d albums below %s", n, a, root)
		}
		return nil
	})
}

func (r *run) insideFailed(path string) bool {
	for _, dir := range r.failedDirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (r *run) markSeen(ctx context.Context, id int64) {
	r.touch = append(r.touch, id)
	if len(r.touch) >= touchBatchSize {
		r.flushTouch(context.WithoutCancel(ctx))
	}
}

func (r *run) flushTouch(ctx context.Context) {
	if len(r.touch) == 0 {
		return
	}
	ids := r.touch
	r.touch = nil
	err := r.s.cfg.DB.WithTx(ctx, func(tx *database.Tx) error {
		return tx.TouchMedia(ctx, ids, r.seen)
	})
	if err != nil {
		// Untouched records would be tombstoned by mistake.
		r.rootFailed = true
		r.warn(fmt.Errorf("marking %d media seen: %w", len(ids), err))
	}
}

func (r *run) report(current string, final bool) {
	if r.job.Progress == nil {
		return
	}
	now := time.Now()
	if !final && now.Sub(r.lastReport) < progressInterval {
		return
	}
	r.lastReport = now

	fraction := 1.0
	if r.total > 0 {
		fraction = min(float64(r.processed)/float64(r.total), 1)
	}
	r.job.Progress(Progress{Processed: r.processed, Total: r.total, Fraction: fraction, Current: current})
}

func (r *run) warn(err error) {
	logging.Warn("Scan of user %d: %v", r.job.UserID, err)
	if len(r.result.Warnings) < maxWarnings {
		r.result.Warnings = append(r.result.Warnings, err.Error())
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
