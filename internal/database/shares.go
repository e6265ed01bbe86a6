package database

import (
	"context"
	"fmt"
	"time"

	"photo-library/internal/apperr"
)

const shareColumns = `id, value, owner_id, expire, password_hash, album_id, media_id, created_at`

// CreateShareToken inserts a share token.
func (d *Database) CreateShareToken(ctx context.Context, token *ShareToken) (*ShareToken, error) {
	if !(ShareTarget{AlbumID: token.AlbumID, MediaID: token.MediaID}).Valid() {
		return nil, fmt.Errorf("share token needs exactly one target: %w", apperr.ErrInvalidArgument)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	created := *token
	created.CreatedAt = now()
	res, err := d.db.ExecContext(ctx, `INSERT INTO share_tokens
		(value, owner_id, expire, password_hash, album_id, media_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		created.Value, created.OwnerID, created.Expire, created.PasswordHash,
		created.AlbumID, created.MediaID, created.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("share token already exists: %w", apperr.ErrConflict)
		}
		return nil, fmt.Errorf("failed to create share token: %w", err)
	}
	created.ID, err = res.LastInsertId()
	return &created, err
}

// GetShareTokenByValue returns the share token with value.
func (r reader) GetShareTokenByValue(ctx context.Context, value string) (*ShareToken, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("share_lookup", start, err) }()

	var token ShareToken
	err = sqlxGet(ctx, r.q, &token, `SELECT `+shareColumns+` FROM share_tokens WHERE value = ?`, value)
	if err != nil {
		return nil, notFound(err, "share token")
	}
	return &token, nil
}

// UserShareTokens returns the share tokens of a user, newest first.
func (r reader) UserShareTokens(ctx context.Context, ownerID int64) ([]ShareToken, error) {
	var tokens []ShareToken
	err := sqlxSelect(ctx, r.q, &tokens,
		`SELECT `+shareColumns+` FROM share_tokens WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
	return tokens, err
}

// DeleteShareToken removes a share token.
func (d *Database) DeleteShareToken(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `DELETE FROM share_tokens WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("share token %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// SetShareTokenPassword sets or clears the password hash of a share token.
func (d *Database) SetShareTokenPassword(ctx context.Context, id int64, hash *string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `UPDATE share_tokens SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("share token %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}
