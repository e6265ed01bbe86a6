package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const mediaColumns = `id, title, path, type, album_id, owner_id, date_shot, favorite, blurhash,
	fingerprint, deleted_at, last_seen, created_at`

// touchBatchSize bounds the number of ids per UPDATE ... IN (...) statement.
const touchBatchSize = 500

// GetMedia returns the media with id, tombstoned or not.
func (r reader) GetMedia(ctx context.Context, id int64) (*Media, error) {
	var m Media
	err := sqlxGet(ctx, r.q, &m, `SELECT `+mediaColumns+` FROM media WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(err, "media %d", id)
	}
	return &m, nil
}

// FindMediaByPath returns the media of owner at path, tombstoned or not.
func (r reader) FindMediaByPath(ctx context.Context, ownerID int64, path string) (*Media, error) {
	var m Media
	err := sqlxGet(ctx, r.q, &m,
		`SELECT `+mediaColumns+` FROM media WHERE owner_id = ? AND path = ?`, ownerID, path)
	if err != nil {
		return nil, notFound(err, "media %s", path)
	}
	return &m, nil
}

// MediaInAlbum returns all media of an album, including tombstoned ones,
// keyed by path.
func (r reader) MediaInAlbum(ctx context.Context, albumID int64) (map[string]Media, error) {
	var list []Media
	err := sqlxSelect(ctx, r.q, &list, `SELECT `+mediaColumns+` FROM media WHERE album_id = ?`, albumID)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]Media, len(list))
	for _, m := range list {
		byPath[m.Path] = m
	}
	return byPath, nil
}

// AlbumMedia returns the live media of an album, newest first.
func (r reader) AlbumMedia(ctx context.Context, albumID int64) ([]Media, error) {
	var list []Media
	err := sqlxSelect(ctx, r.q, &list, `SELECT `+mediaColumns+` FROM media
		WHERE album_id = ? AND deleted_at IS NULL ORDER BY date_shot DESC, id DESC`, albumID)
	return list, err
}

// MediaUnder returns every media of owner whose path is below root.
func (r reader) MediaUnder(ctx context.Context, ownerID int64, root string) ([]Media, error) {
	var list []Media
	prefix := strings.TrimSuffix(root, "/") + "/"
	err := sqlxSelect(ctx, r.q, &list, `SELECT `+mediaColumns+` FROM media
		WHERE owner_id = ? AND substr(path, 1, ?) = ? ORDER BY path`, ownerID, len(prefix), prefix)
	return list, err
}

// MediaURLs returns the derived assets of a media ordered by purpose.
func (r reader) MediaURLs(ctx context.Context, mediaID int64) ([]MediaURL, error) {
	var urls []MediaURL
	err := sqlxSelect(ctx, r.q, &urls, `SELECT id, media_id, purpose, storage_key, content_type, width, height, file_size
		FROM media_urls WHERE media_id = ? ORDER BY purpose`, mediaID)
	return urls, err
}

// GetMediaEXIF returns the EXIF record of a media.
func (r reader) GetMediaEXIF(ctx context.Context, mediaID int64) (*MediaEXIF, error) {
	var exif MediaEXIF
	err := sqlxGet(ctx, r.q, &exif, `SELECT * FROM media_exif WHERE media_id = ?`, mediaID)
	if err != nil {
		return nil, notFound(err, "exif of media %d", mediaID)
	}
	return &exif, nil
}

// GetVideoMetadata returns the video metadata record of a media.
func (r reader) GetVideoMetadata(ctx context.Context, mediaID int64) (*VideoMetadata, error) {
	var video VideoMetadata
	err := sqlxGet(ctx, r.q, &video, `SELECT * FROM video_metadata WHERE media_id = ?`, mediaID)
	if err != nil {
		return nil, notFound(err, "video metadata of media %d", mediaID)
	}
	return &video, nil
}

// UpsertMedia inserts or updates the media identified by (owner, path),
// clears its tombstone and returns its id. The favorite flag is preserved.
func (tx *Tx) UpsertMedia(ctx context.Context, m *Media) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("commit_media", start, err) }()

	var id int64
	err = tx.tx.QueryRowxContext(ctx, `
		INSERT INTO media (title, path, type, album_id, owner_id, date_shot, blurhash, fingerprint, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, path) DO UPDATE SET
			title = excluded.title,
			type = excluded.type,
			album_id = excluded.album_id,
			date_shot = excluded.date_shot,
			blurhash = excluded.blurhash,
			fingerprint = excluded.fingerprint,
			last_seen = excluded.last_seen,
			deleted_at = NULL
		RETURNING id`,
		m.Title, m.Path, m.Type, m.AlbumID, m.OwnerID, m.DateShot, m.Blurhash, m.Fingerprint, m.LastSeen, now(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert media %s: %w", m.Path, err)
	}
	return id, nil
}

// ReplaceEXIF replaces the EXIF record of a media. A nil exif removes it.
func (tx *Tx) ReplaceEXIF(ctx context.Context, mediaID int64, exif *MediaEXIF) error {
	if _, err := tx.tx.ExecContext(ctx, `DELETE FROM media_exif WHERE media_id = ?`, mediaID); err != nil {
		return err
	}
	if exif == nil {
		return nil
	}
	row := *exif
	row.MediaID = mediaID
	_, err := tx.tx.NamedExecContext(ctx, `INSERT INTO media_exif (media_id, camera, maker, lens, date_shot,
		exposure, aperture, iso, focal_length, flash, exposure_program, gps_latitude, gps_longitude)
		VALUES (:media_id, :camera, :maker, :lens, :date_shot, :exposure, :aperture, :iso, :focal_length,
		:flash, :exposure_program, :gps_latitude, :gps_longitude)`, &row)
	return err
}

// ReplaceVideoMetadata replaces the video metadata of a media. A nil video
// removes it.
func (tx *Tx) ReplaceVideoMetadata(ctx context.Context, mediaID int64, video *VideoMetadata) error {
	if _, err := tx.tx.ExecContext(ctx, `DELETE FROM video_metadata WHERE media_id = ?`, mediaID); err != nil {
		return err
	}
	if video == nil {
		return nil
	}
	row := *video
	row.MediaID = mediaID
	_, err := tx.tx.NamedExecContext(ctx, `INSERT INTO video_metadata (media_id, width, height, duration,
		codec, framerate, bitrate, color_profile, audio)
		VALUES (:media_id, :width, :height, :duration, :codec, :framerate, :bitrate, :color_profile, :audio)`, &row)
	return err
}

// UpsertMediaURL stores a derived asset, replacing any previous asset with
// the same purpose.
func (tx *Tx) UpsertMediaURL(ctx context.Context, u *MediaURL) error {
	_, err := tx.tx.NamedExecContext(ctx, `
		INSERT INTO media_urls (media_id, purpose, storage_key, content_type, width, height, file_size)
		VALUES (:media_id, :purpose, :storage_key, :content_type, :width, :height, :file_size)
		ON CONFLICT (media_id, purpose) DO UPDATE SET
			storage_key = excluded.storage_key,
			content_type = excluded.content_type,
			width = excluded.width,
			height = excluded.height,
			file_size = excluded.file_size`, u)
	return err
}

// DeleteMediaURL removes the derived asset of a media with purpose.
func (tx *Tx) DeleteMediaURL(ctx context.Context, mediaID int64, purpose string) error {
	_, err := tx.tx.ExecContext(ctx, `DELETE FROM media_urls WHERE media_id = ? AND purpose = ?`, mediaID, purpose)
	return err
}

// TouchMedia marks unchanged media as seen by the current scan.
func (tx *Tx) TouchMedia(ctx context.Context, ids []int64, seen Timestamp) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("touch_media", start, err) }()

	for i := 0; i < len(ids); i += touchBatchSize {
		end := min(i+touchBatchSize, len(ids))
		var query string
		var args []interface{}
		query, args, err = in(tx.q, `UPDATE media SET last_seen = ? WHERE id IN (?)`, seen, ids[i:end])
		if err != nil {
			return err
		}
		if _, err = tx.tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to touch media: %w", err)
		}
	}
	return nil
}

// TombstoneMedia sets deleted_at on the given live media.
func (tx *Tx) TombstoneMedia(ctx context.Context, ids []int64, at Timestamp) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("tombstone", start, err) }()

	var total int64
	for i := 0; i < len(ids); i += touchBatchSize {
		end := min(i+touchBatchSize, len(ids))
		var query string
		var args []interface{}
		query, args, err = in(tx.q, `UPDATE media SET deleted_at = ? WHERE id IN (?) AND deleted_at IS NULL`, at, ids[i:end])
		if err != nil {
			return total, err
		}
		res, execErr := tx.tx.ExecContext(ctx, query, args...)
		if execErr != nil {
			err = execErr
			return total, fmt.Errorf("failed to tombstone media: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Timeline returns the live media of a user, newest first, grouped into
// runs of the same day and album. limit and offset page over media.
func (r reader) Timeline(ctx context.Context, userID int64, limit, offset int) ([]TimelineGroup, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("timeline", start, err) }()

	if limit <= 0 {
		limit = 200
	}

	type row struct {
		Media
		AlbumTitle string `db:"album_title"`
	}
	var rows []row
	err = sqlxSelect(ctx, r.q, &rows, `
		SELECT m.id, m.title, m.path, m.type, m.album_id, m.owner_id, m.date_shot, m.favorite, m.blurhash,
			m.fingerprint, m.deleted_at, m.last_seen, m.created_at, a.title AS album_title
		FROM media m JOIN albums a ON a.id = m.album_id
		WHERE m.owner_id = ? AND m.deleted_at IS NULL AND a.deleted_at IS NULL
		ORDER BY m.date_shot DESC, m.id DESC
		LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	var groups []TimelineGroup
	for _, rw := range rows {
		y, mo, d := rw.DateShot.UTC().Date()
		day := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
		if n := len(groups); n > 0 && groups[n-1].Date.Equal(day) && groups[n-1].AlbumID == rw.AlbumID {
			groups[n-1].Media = append(groups[n-1].Media, rw.Media)
			continue
		}
		groups = append(groups, TimelineGroup{
			Date:       day,
			AlbumID:    rw.AlbumID,
			AlbumTitle: rw.AlbumTitle,
			Media:      []Media{rw.Media},
		})
	}
	return groups, nil
}
