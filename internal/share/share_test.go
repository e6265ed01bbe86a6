package share

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"photo-library/internal/apperr"
	"photo-library/internal/database"
)

type fixture struct {
	db    *database.Database
	svc   *Service
	user  int64
	album int64
	media int64
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.New(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	user, err := db.CreateUser(ctx, "alice", false)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	_, album, err := db.AddRootPath(ctx, user.ID, dir)
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{db: db, user: user.ID, album: album.ID, clock: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	err = db.WithTx(ctx, func(tx *database.Tx) error {
		f.media, err = tx.UpsertMedia(ctx, &database.Media{
			Title:       "beach.jpg",
			Path:        filepath.Join(dir, "beach.jpg"),
			Type:        database.MediaTypePhoto,
			AlbumID:     album.ID,
			OwnerID:     user.ID,
			DateShot:    database.NewTimestamp(f.clock),
			Fingerprint: "fp",
			LastSeen:    database.NewTimestamp(f.clock),
		})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	f.svc = NewService(db)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) create(t *testing.T, target database.ShareTarget, expire *time.Time, password string) string {
	t.Helper()
	token, err := f.svc.Create(context.Background(), f.user, target, expire, password)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return token.Value
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expire := f.clock.Add(time.Hour)

	open := f.create(t, database.ShareTarget{MediaID: &f.media}, nil, "")
	protected := f.create(t, database.ShareTarget{AlbumID: &f.album}, &expire, "secret")

	shared, err := f.svc.Validate(ctx, open, "")
	if err != nil {
		t.Fatalf("Validate(open) error = %v", err)
	}
	if shared.Media == nil || shared.Media.ID != f.media || shared.Album != nil {
		t.Errorf("Validate(open) = %+v, want media %d only", shared, f.media)
	}

	shared, err = f.svc.Validate(ctx, protected, "secret")
	if err != nil {
		t.Fatalf("Validate(protected) error = %v", err)
	}
	if shared.Album == nil || shared.Album.ID != f.album || shared.Media != nil {
		t.Errorf("Validate(protected) = %+v, want album %d only", shared, f.album)
	}

	tests := []struct {
		name     string
		token    string
		password string
		want     error
	}{
		{"unknown token", "nope", "", apperr.ErrNotFound},
		{"wrong password", protected, "guess", apperr.ErrUnauthorized},
		{"missing password", protected, "", apperr.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Validate(ctx, tt.token, tt.password); !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateExpiredBeforePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expire := f.clock.Add(time.Minute)
	value := f.create(t, database.ShareTarget{MediaID: &f.media}, &expire, "secret")

	f.clock = f.clock.Add(2 * time.Minute)
	for _, password := range []string{"secret", "wrong"} {
		if _, err := f.svc.Validate(ctx, value, password); !errors.Is(err, apperr.ErrExpired) {
			t.Errorf("Validate(%q) error = %v, want Expired", password, err)
		}
	}
}

func TestValidateTombstonedTargetIsGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mediaToken := f.create(t, database.ShareTarget{MediaID: &f.media}, nil, "")
	albumToken := f.create(t, database.ShareTarget{AlbumID: &f.album}, nil, "")

	err := f.db.WithTx(ctx, func(tx *database.Tx) error {
		at := database.NewTimestamp(f.clock)
		if _, err := tx.TombstoneMedia(ctx, []int64{f.media}, at); err != nil {
			return err
		}
		_, err := tx.TombstoneAlbums(ctx, []int64{f.album}, at)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, value := range []string{mediaToken, albumToken} {
		_, err := f.svc.Validate(ctx, value, "")
		if !errors.Is(err, apperr.ErrGone) || !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Validate() error = %v, want Gone", err)
		}
	}

	if _, err := f.svc.Create(ctx, f.user, database.ShareTarget{MediaID: &f.media}, nil, ""); !errors.Is(err, apperr.ErrGone) {
		t.Errorf("Create() for removed media error = %v, want Gone", err)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := f.clock.Add(-time.Hour)

	bob, err := f.db.CreateUser(ctx, "bob", false)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		user   int64
		target database.ShareTarget
		expire *time.Time
		want   error
	}{
		{"no target", f.user, database.ShareTarget{}, nil, apperr.ErrInvalidArgument},
		{"two targets", f.user, database.ShareTarget{AlbumID: &f.album, MediaID: &f.media}, nil, apperr.ErrInvalidArgument},
		{"past expiry", f.user, database.ShareTarget{MediaID: &f.media}, &past, apperr.ErrInvalidArgument},
		{"other owner", bob.ID, database.ShareTarget{MediaID: &f.media}, nil, apperr.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Create(ctx, tt.user, tt.target, tt.expire, ""); !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestProtectAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	value := f.create(t, database.ShareTarget{MediaID: &f.media}, nil, "")

	if err := f.svc.ProtectShareToken(ctx, f.user, value, "pw"); err != nil {
		t.Fatalf("ProtectShareToken() error = %v", err)
	}
	if _, err := f.svc.Validate(ctx, value, ""); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("Validate() after protect error = %v, want Unauthorized", err)
	}
	if err := f.svc.ProtectShareToken(ctx, f.user, value, ""); err != nil {
		t.Fatalf("ProtectShareToken(clear) error = %v", err)
	}
	if _, err := f.svc.Validate(ctx, value, ""); err != nil {
		t.Errorf("Validate() after clearing error = %v", err)
	}

	if err := f.svc.Delete(ctx, f.user+1, value); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("Delete() by another user error = %v, want Forbidden", err)
	}
	if err := f.svc.Delete(ctx, f.user, value); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.svc.Validate(ctx, value, ""); !errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrGone) {
		t.Errorf("Validate() after delete error = %v, want NotFound", err)
	}

	tokens, err := f.svc.List(ctx, f.user)
	if err != nil || len(tokens) != 0 {
		t.Errorf("List() = %v, %v, want none", tokens, err)
	}
}
