package database

import (
	"context"
	"errors"
	"strconv"

	"photo-library/internal/apperr"
	"photo-library/internal/metrics"
)

// Keys of the persisted scanner settings.
const (
	keyPeriodicScanInterval = "periodic_scan_interval"
	keyConcurrentWorkers    = "concurrent_workers"
	keyThumbnailMethod      = "thumbnail_method"
)

// GetMetadata retrieves a metadata value by key.
func (r reader) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := sqlxGet(ctx, r.q, &value, "SELECT COALESCE(value, '') FROM metadata WHERE key = ?", key)
	if err != nil {
		return "", notFound(err, "metadata %q", key)
	}
	return value, nil
}

// SetMetadata sets a metadata key-value pair.
func (d *Database) SetMetadata(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// SiteInfo returns the persisted scanner settings. Settings that were never
// stored keep the value from defaults.
func (d *Database) SiteInfo(ctx context.Context, defaults SiteInfo) (SiteInfo, error) {
	info := defaults

	readInt := func(key string, dst *int) error {
		v, err := d.GetMetadata(ctx, key)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil
		}
		*dst = n
		return nil
	}

	if err := readInt(keyPeriodicScanInterval, &info.PeriodicScanInterval); err != nil {
		return info, err
	}
	if err := readInt(keyConcurrentWorkers, &info.ConcurrentWorkers); err != nil {
		return info, err
	}

	method, err := d.GetMetadata(ctx, keyThumbnailMethod)
	switch {
	case err == nil && method != "":
		info.ThumbnailMethod = method
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		return info, err
	}
	return info, nil
}

// SavePeriodicScanInterval persists the periodic scan interval in seconds.
func (d *Database) SavePeriodicScanInterval(ctx context.Context, seconds int) error {
	return d.SetMetadata(ctx, keyPeriodicScanInterval, strconv.Itoa(seconds))
}

// SaveConcurrentWorkers persists the concurrent worker count.
func (d *Database) SaveConcurrentWorkers(ctx context.Context, n int) error {
	return d.SetMetadata(ctx, keyConcurrentWorkers, strconv.Itoa(n))
}

// SaveThumbnailMethod persists the thumbnail downsample filter name.
func (d *Database) SaveThumbnailMethod(ctx context.Context, method string) error {
	return d.SetMetadata(ctx, keyThumbnailMethod, method)
}

// CatalogStats implements metrics.StatsProvider.
func (d *Database) CatalogStats(ctx context.Context) (metrics.Stats, error) {
	var stats metrics.Stats
	err := sqlxGet(ctx, d.q, &stats, `SELECT
		(SELECT COUNT(*) FROM media WHERE type = 'photo' AND deleted_at IS NULL) AS photos,
		(SELECT COUNT(*) FROM media WHERE type = 'video' AND deleted_at IS NULL) AS videos,
		(SELECT COUNT(*) FROM albums WHERE deleted_at IS NULL) AS albums,
		(SELECT COUNT(*) FROM media WHERE deleted_at IS NOT NULL) AS tombstoned_media,
		(SELECT COUNT(*) FROM face_groups WHERE label IS NOT NULL) AS labeled_groups,
		(SELECT COUNT(*) FROM face_groups WHERE label IS NULL) AS unlabeled_groups`)
	if err == nil {
		d.UpdateDBMetrics()
	}
	return stats, err
}
