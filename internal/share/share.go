// Package share creates share tokens and resolves them for anonymous
// viewers.
package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"photo-library/internal/apperr"
	"photo-library/internal/database"
	"photo-library/internal/logging"
	"photo-library/internal/metrics"
)

// Service manages share tokens.
type Service struct {
	db  *database.Database
	now func() time.Time
}

// Shared is what a valid token resolves to: exactly one of Album or Media.
type Shared struct {
	Token *database.ShareToken `json:"token"`
	Album *database.Album      `json:"album,omitempty"`
	Media *database.Media      `json:"media,omitempty"`
}

// NewService creates a share service.
func NewService(db *database.Database) *Service {
	return &Service{db: db, now: time.Now}
}

// Validate resolves token. Checks run in order: unknown token is NotFound,
// a token past its expiry is Expired whatever the password, a wrong
// password is Unauthorized and a tombstoned or missing target is Gone.
func (s *Service) Validate(ctx context.Context, value, password string) (shared *Shared, err error) {
	defer func() {
		result := "valid"
		if err != nil {
			result = apperr.Kind(err)
		}
		metrics.ShareValidationsTotal.WithLabelValues(result).Inc()
	}()

	token, err := s.db.GetShareTokenByValue(ctx, value)
	if err != nil {
		return nil, err
	}
	if token.Expire != nil && !s.now().Before(token.Expire.Time) {
		return nil, fmt.Errorf("share token expired at %s: %w", token.Expire.Time.Format(time.RFC3339), apperr.ErrExpired)
	}
	if token.HasPassword() {
		if err := bcrypt.CompareHashAndPassword([]byte(*token.PasswordHash), []byte(password)); err != nil {
			return nil, fmt.Errorf("invalid share password: %w", apperr.ErrUnauthorized)
		}
	}

	shared = &Shared{Token: token}
	switch {
	case token.AlbumID != nil:
		shared.Album, err = s.db.GetAlbum(ctx, *token.AlbumID)
		if err == nil && shared.Album.Tombstoned() {
			err = fmt.Errorf("album %d was removed: %w", *token.AlbumID, apperr.ErrGone)
		}
	case token.MediaID != nil:
		shared.Media, err = s.db.GetMedia(ctx, *token.MediaID)
		if err == nil && shared.Media.Tombstoned() {
			err = fmt.Errorf("media %d was removed: %w", *token.MediaID, apperr.ErrGone)
		}
	default:
		err = fmt.Errorf("share token without target: %w", apperr.ErrGone)
	}
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) && !errors.Is(err, apperr.ErrGone) {
			err = fmt.Errorf("shared item no longer exists: %w", apperr.ErrGone)
		}
		return nil, err
	}
	return shared, nil
}

// Create shares target on behalf of userID. A nil expire never expires and
// an empty password leaves the token unprotected.
func (s *Service) Create(ctx context.Context, userID int64, target database.ShareTarget, expire *time.Time, password string) (*database.ShareToken, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("share exactly one album or media: %w", apperr.ErrInvalidArgument)
	}
	if expire != nil && !expire.After(s.now()) {
		return nil, fmt.Errorf("expiry %s is in the past: %w", expire.Format(time.RFC3339), apperr.ErrInvalidArgument)
	}
	if err := s.checkTarget(ctx, userID, target); err != nil {
		return nil, err
	}

	token := &database.ShareToken{
		Value:   uuid.NewString(),
		OwnerID: userID,
		AlbumID: target.AlbumID,
		MediaID: target.MediaID,
	}
	if expire != nil {
		token.Expire = database.TimestampPtr(expire.UTC())
	}
	if password != "" {
		hash, err := hashPassword(password)
		if err != nil {
			return nil, err
		}
		token.PasswordHash = &hash
	}

	created, err := s.db.CreateShareToken(ctx, token)
	if err != nil {
		return nil, err
	}
	logging.Info("User %d created share token %d", userID, created.ID)
	return created, nil
}

// List returns the share tokens of a user.
func (s *Service) List(ctx context.Context, userID int64) ([]database.ShareToken, error) {
	return s.db.UserShareTokens(ctx, userID)
}

// Delete removes a share token owned by userID.
func (s *Service) Delete(ctx context.Context, userID int64, value string) error {
	token, err := s.owned(ctx, userID, value)
	if err != nil {
		return err
	}
	return s.db.DeleteShareToken(ctx, token.ID)
}

// ProtectShareToken sets the password of a token owned by userID. An empty
// password removes the protection.
func (s *Service) ProtectShareToken(ctx context.Context, userID int64, value, password string) error {
	token, err := s.owned(ctx, userID, value)
	if err != nil {
		return err
	}
	var hash *string
	if password != "" {
		h, err := hashPassword(password)
		if err != nil {
			return err
		}
		hash = &h
	}
	return s.db.SetShareTokenPassword(ctx, token.ID, hash)
}

func (s *Service) owned(ctx context.Context, userID int64, value string) (*database.ShareToken, error) {
	token, err := s.db.GetShareTokenByValue(ctx, value)
	if err != nil {
		return nil, err
	}
	if token.OwnerID != userID {
		return nil, fmt.Errorf("share token belongs to another user: %w", apperr.ErrForbidden)
	}
	return token, nil
}

func (s *Service) checkTarget(ctx context.Context, userID int64, target database.ShareTarget) error {
	var owner int64
	var removed bool
	if target.AlbumID != nil {
		album, err := s.db.GetAlbum(ctx, *target.AlbumID)
		if err != nil {
			return err
		}
		owner, removed = album.OwnerID, album.Tombstoned()
	} else {
		media, err := s.db.GetMedia(ctx, *target.MediaID)
		if err != nil {
			return err
		}
		owner, removed = media.OwnerID, media.Tombstoned()
	}
	if owner != userID {
		return fmt.Errorf("cannot share an item of another user: %w", apperr.ErrForbidden)
	}
	if removed {
		return fmt.Errorf("cannot share a removed item: %w", apperr.ErrGone)
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
