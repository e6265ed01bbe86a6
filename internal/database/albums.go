package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"photo-library/internal/apperr"
)

const albumColumns = `id, title, path, parent_album_id, owner_id, cover_id, deleted_at, last_seen`

// GetAlbum returns the album with id, tombstoned or not.
func (r reader) GetAlbum(ctx context.Context, id int64) (*Album, error) {
	var album Album
	err := sqlxGet(ctx, r.q, &album, `SELECT `+albumColumns+` FROM albums WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(err, "album %d", id)
	}
	return &album, nil
}

// FindAlbumByPath returns the album of owner at path, tombstoned or not.
func (r reader) FindAlbumByPath(ctx context.Context, ownerID int64, path string) (*Album, error) {
	var album Album
	err := sqlxGet(ctx, r.q, &album,
		`SELECT `+albumColumns+` FROM albums WHERE owner_id = ? AND path = ?`, ownerID, path)
	if err != nil {
		return nil, notFound(err, "album %s", path)
	}
	return &album, nil
}

// SubAlbums returns the live children of an album ordered by title.
func (r reader) SubAlbums(ctx context.Context, albumID int64) ([]Album, error) {
	var albums []Album
	err := sqlxSelect(ctx, r.q, &albums,
		`SELECT `+albumColumns+` FROM albums
		WHERE parent_album_id = ? AND deleted_at IS NULL ORDER BY title, id`, albumID)
	return albums, err
}

// AlbumsUnder returns every album of owner whose path is root or below it.
func (r reader) AlbumsUnder(ctx context.Context, ownerID int64, root string) ([]Album, error) {
	var albums []Album
	prefix := strings.TrimSuffix(root, "/") + "/"
	err := sqlxSelect(ctx, r.q, &albums,
		`SELECT `+albumColumns+` FROM albums
		WHERE owner_id = ? AND (path = ? OR substr(path, 1, ?) = ?) ORDER BY path`,
		ownerID, root, len(prefix), prefix)
	return albums, err
}

// CreateAlbum inserts an album. A parent must exist, belong to the same
// owner and not make the album its own ancestor.
func (tx *Tx) CreateAlbum(ctx context.Context, album *Album) (*Album, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_album", start, err) }()

	if album.ParentAlbumID != nil {
		if err = tx.checkParent(ctx, album.OwnerID, *album.ParentAlbumID); err != nil {
			return nil, err
		}
	}

	seen := album.LastSeen
	if seen.IsZero() {
		seen = now()
	}

	res, err := tx.tx.ExecContext(ctx,
		`INSERT INTO albums (title, path, parent_album_id, owner_id, last_seen) VALUES (?, ?, ?, ?, ?)`,
		album.Title, album.Path, album.ParentAlbumID, album.OwnerID, seen)
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("album %s already exists: %w", album.Path, apperr.ErrConflict)
			return nil, err
		}
		return nil, fmt.Errorf("failed to insert album: %w", err)
	}

	created := *album
	created.LastSeen = seen
	created.DeletedAt = nil
	created.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// checkParent walks the ancestors of parentID and fails on a cycle or an
// album of another owner.
func (tx *Tx) checkParent(ctx context.Context, ownerID, parentID int64) error {
	visited := make(map[int64]bool)
	id := parentID
	for {
		if visited[id] {
			return fmt.Errorf("album parent %d would create a cycle: %w", parentID, apperr.ErrInvalidArgument)
		}
		visited[id] = true

		parent, err := tx.GetAlbum(ctx, id)
		if err != nil {
			if id == parentID {
				return fmt.Errorf("parent album %d does not exist: %w", parentID, apperr.ErrInvalidArgument)
			}
			return err
		}
		if parent.OwnerID != ownerID {
			return fmt.Errorf("parent album %d belongs to another user: %w", parentID, apperr.ErrInvalidArgument)
		}
		if parent.ParentAlbumID == nil {
			return nil
		}
		id = *parent.ParentAlbumID
	}
}

// MarkAlbumSeen records that the album's directory was visited and clears
// its tombstone.
func (tx *Tx) MarkAlbumSeen(ctx context.Context, albumID int64, seen Timestamp) error {
	_, err := tx.tx.ExecContext(ctx,
		`UPDATE albums SET last_seen = ?, deleted_at = NULL WHERE id = ?`, seen, albumID)
	return err
}

// TombstoneAlbums sets deleted_at on the given live albums.
func (tx *Tx) TombstoneAlbums(ctx context.Context, ids []int64, at Timestamp) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := in(tx.q, `UPDATE albums SET deleted_at = ? WHERE id IN (?) AND deleted_at IS NULL`, at, ids)
	if err != nil {
		return 0, err
	}
	res, err := tx.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetAlbumCover sets the cover of a live album of ownerID, or clears it
// when mediaID is nil. The cover must be live media of the album's subtree.
func (d *Database) SetAlbumCover(ctx context.Context, ownerID, albumID int64, mediaID *int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_album_cover", start, err) }()

	err = d.WithTx(ctx, func(tx *Tx) error {
		album, err := tx.GetAlbum(ctx, albumID)
		if err != nil {
			return err
		}
		switch {
		case album.OwnerID != ownerID:
			return fmt.Errorf("album %d belongs to another user: %w", albumID, apperr.ErrForbidden)
		case album.Tombstoned():
			return fmt.Errorf("album %d was removed from disk: %w", albumID, apperr.ErrGone)
		}

		if mediaID != nil {
			m, err := tx.GetMedia(ctx, *mediaID)
			if err != nil {
				return fmt.Errorf("cover media %d does not exist: %w", *mediaID, apperr.ErrInvalidArgument)
			}
			if m.OwnerID != ownerID || m.Tombstoned() || !strings.HasPrefix(m.Path, album.Path+"/") {
				return fmt.Errorf("media %d is not in album %d: %w", *mediaID, albumID, apperr.ErrInvalidArgument)
			}
		}
		_, err = tx.tx.ExecContext(ctx, `UPDATE albums SET cover_id = ? WHERE id = ?`, mediaID, albumID)
		return err
	})
	return err
}
