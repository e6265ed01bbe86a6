package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"photo-library/internal/apperr"
)

// CreateUser inserts a user. Usernames are unique.
func (d *Database) CreateUser(ctx context.Context, username string, admin bool) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username must not be empty: %w", apperr.ErrInvalidArgument)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	user := &User{Username: username, Admin: admin, CreatedAt: now()}
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO users (username, admin, created_at) VALUES (?, ?, ?)`,
		user.Username, user.Admin, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %q already exists: %w", username, apperr.ErrConflict)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	user.ID, err = res.LastInsertId()
	return user, err
}

// GetUser returns the user with id.
func (r reader) GetUser(ctx context.Context, id int64) (*User, error) {
	var user User
	err := sqlxGet(ctx, r.q, &user, `SELECT id, username, admin, created_at FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(err, "user %d", id)
	}
	return &user, nil
}

// GetUserByUsername returns the user with the given name.
func (r reader) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := sqlxGet(ctx, r.q, &user, `SELECT id, username, admin, created_at FROM users WHERE username = ?`, username)
	if err != nil {
		return nil, notFound(err, "user %q", username)
	}
	return &user, nil
}

// UsersWithRootPaths returns the ids of users owning at least one root path.
func (r reader) UsersWithRootPaths(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := sqlxSelect(ctx, r.q, &ids, `SELECT DISTINCT owner_id FROM root_paths ORDER BY owner_id`)
	return ids, err
}

// RootPaths returns the root paths of a user ordered by path.
func (r reader) RootPaths(ctx context.Context, userID int64) ([]RootPath, error) {
	var roots []RootPath
	err := sqlxSelect(ctx, r.q, &roots,
		`SELECT id, owner_id, path, album_id FROM root_paths WHERE owner_id = ? ORDER BY path`, userID)
	return roots, err
}

// pathsOverlap reports whether a equals, contains or is contained in b.
func pathsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(a, strings.TrimSuffix(b, "/")+"/") ||
		strings.HasPrefix(b, strings.TrimSuffix(a, "/")+"/")
}

// AddRootPath registers path as a root of userID and creates its root album.
func (d *Database) AddRootPath(ctx context.Context, userID int64, path string) (*RootPath, *Album, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("add_root_path", start, err) }()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid path %q: %w", path, apperr.ErrInvalidArgument)
	}
	abs = filepath.Clean(abs)

	info, statErr := os.Stat(abs)
	if statErr != nil || !info.IsDir() {
		err = fmt.Errorf("%s is not a directory: %w", abs, apperr.ErrInvalidArgument)
		return nil, nil, err
	}

	var root *RootPath
	var album *Album
	err = d.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}

		existing, err := tx.RootPaths(ctx, userID)
		if err != nil {
			return err
		}
		for _, rp := range existing {
			if pathsOverlap(rp.Path, abs) {
				return fmt.Errorf("%s overlaps root path %s: %w", abs, rp.Path, apperr.ErrConflict)
			}
		}

		album, err = tx.CreateAlbum(ctx, &Album{
			Title:   filepath.Base(abs),
			Path:    abs,
			OwnerID: userID,
		})
		if err != nil {
			return err
		}

		res, err := tx.tx.ExecContext(ctx,
			`INSERT INTO root_paths (owner_id, path, album_id) VALUES (?, ?, ?)`, userID, abs, album.ID)
		if err != nil {
			return fmt.Errorf("failed to insert root path: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		root = &RootPath{ID: id, OwnerID: userID, Path: abs, AlbumID: album.ID}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return root, album, nil
}

// subtreeCTE selects the ids of an album and all of its descendants.
const subtreeCTE = `WITH RECURSIVE subtree(id) AS (
	SELECT ?
	UNION ALL
	SELECT a.id FROM albums a JOIN subtree s ON a.parent_album_id = s.id
)`

// RemoveRootAlbum removes a root path together with its album subtree and
// media. It returns the storage keys of the removed derived assets.
func (d *Database) RemoveRootAlbum(ctx context.Context, userID, albumID int64) ([]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("remove_root_album", start, err) }()

	var keys []string
	err = d.WithTx(ctx, func(tx *Tx) error {
		album, err := tx.GetAlbum(ctx, albumID)
		if err != nil {
			return err
		}
		if album.OwnerID != userID {
			return fmt.Errorf("album %d belongs to another user: %w", albumID, apperr.ErrForbidden)
		}
		if album.ParentAlbumID != nil {
			return fmt.Errorf("album %d is not a root album: %w", albumID, apperr.ErrInvalidArgument)
		}

		var shares int
		err = sqlxGet(ctx, tx.q, &shares, subtreeCTE+`
			SELECT COUNT(*) FROM share_tokens st
			WHERE (st.expire IS NULL OR st.expire > ?)
			AND (st.album_id IN (SELECT id FROM subtree)
				OR st.media_id IN (SELECT m.id FROM media m WHERE m.album_id IN (SELECT id FROM subtree)))`,
			albumID, now())
		if err != nil {
			return fmt.Errorf("failed to count share tokens: %w", err)
		}
		if shares > 0 {
			return fmt.Errorf("%d active share tokens target album %d: %w", shares, albumID, apperr.ErrConflict)
		}

		err = sqlxSelect(ctx, tx.q, &keys, subtreeCTE+`
			SELECT u.storage_key FROM media_urls u JOIN media m ON m.id = u.media_id
			WHERE m.album_id IN (SELECT id FROM subtree) ORDER BY u.storage_key`, albumID)
		if err != nil {
			return fmt.Errorf("failed to list derived assets: %w", err)
		}

		if _, err := tx.tx.ExecContext(ctx, subtreeCTE+`
			DELETE FROM image_faces WHERE media_id IN (
				SELECT m.id FROM media m WHERE m.album_id IN (SELECT id FROM subtree))`, albumID); err != nil {
			return fmt.Errorf("failed to delete faces: %w", err)
		}
		if _, err := tx.tx.ExecContext(ctx, subtreeCTE+`
			DELETE FROM media WHERE album_id IN (SELECT id FROM subtree)`, albumID); err != nil {
			return fmt.Errorf("failed to delete media: %w", err)
		}
		if _, err := tx.tx.ExecContext(ctx, subtreeCTE+`
			DELETE FROM albums WHERE id IN (SELECT id FROM subtree)`, albumID); err != nil {
			return fmt.Errorf("failed to delete albums: %w", err)
		}
		if _, err := tx.tx.ExecContext(ctx,
			`DELETE FROM root_paths WHERE album_id = ?`, albumID); err != nil {
			return fmt.Errorf("failed to delete root path: %w", err)
		}

		_, err = tx.DeleteEmptyFaceGroups(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
