package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"photo-library/internal/apperr"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fixture creates a user with one root path at a fresh temp directory.
type fixture struct {
	db    *Database
	user  *User
	root  *RootPath
	album *Album
	dir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := newTestDB(t)

	user, err := db.CreateUser(ctx, "alice", false)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	dir := t.TempDir()
	root, album, err := db.AddRootPath(ctx, user.ID, dir)
	if err != nil {
		t.Fatalf("AddRootPath() error = %v", err)
	}
	return &fixture{db: db, user: user, root: root, album: album, dir: dir}
}

func (f *fixture) addMedia(t *testing.T, albumID int64, name string, shot time.Time) int64 {
	t.Helper()
	var id int64
	err := f.db.WithTx(context.Background(), func(tx *Tx) error {
		var err error
		id, err = tx.UpsertMedia(context.Background(), &Media{
			Title:       name,
			Path:        filepath.Join(f.dir, name),
			Type:        MediaTypePhoto,
			AlbumID:     albumID,
			OwnerID:     f.user.ID,
			DateShot:    NewTimestamp(shot),
			Fingerprint: "fp-" + name,
			LastSeen:    now(),
		})
		return err
	})
	if err != nil {
		t.Fatalf("UpsertMedia(%s) error = %v", name, err)
	}
	return id
}

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user, err := db.CreateUser(ctx, "bob", true)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if user.ID == 0 || !user.Admin {
		t.Errorf("CreateUser() = %+v", user)
	}

	got, err := db.GetUserByUsername(ctx, "bob")
	if err != nil || got.ID != user.ID {
		t.Errorf("GetUserByUsername() = %+v, %v", got, err)
	}

	if _, err := db.CreateUser(ctx, "bob", false); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("duplicate CreateUser() error = %v, want Conflict", err)
	}
	if _, err := db.CreateUser(ctx, "  ", false); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("empty CreateUser() error = %v, want InvalidArgument", err)
	}
	if _, err := db.GetUser(ctx, 999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetUser(999) error = %v, want NotFound", err)
	}
}

func TestAddRootPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if f.album.ParentAlbumID != nil {
		t.Error("root album should have no parent")
	}
	if f.root.AlbumID != f.album.ID {
		t.Errorf("root.AlbumID = %d, want %d", f.root.AlbumID, f.album.ID)
	}

	file := filepath.Join(f.dir, "file.jpg")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(f.dir, "nested")
	if err := os.Mkdir(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	other := t.TempDir()

	tests := []struct {
		name   string
		userID int64
		path   string
		want   error
	}{
		{"missing directory", f.user.ID, filepath.Join(f.dir, "missing"), apperr.ErrInvalidArgument},
		{"regular file", f.user.ID, file, apperr.ErrInvalidArgument},
		{"same path", f.user.ID, f.dir, apperr.ErrConflict},
		{"nested path", f.user.ID, nested, apperr.ErrConflict},
		{"parent path", f.user.ID, filepath.Dir(f.dir), apperr.ErrConflict},
		{"unknown user", 999, other, apperr.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.db.AddRootPath(ctx, tt.userID, tt.path)
			if !errors.Is(err, tt.want) {
				t.Errorf("AddRootPath(%s) error = %v, want %v", tt.path, err, tt.want)
			}
		})
	}

	if _, _, err := f.db.AddRootPath(ctx, f.user.ID, other); err != nil {
		t.Errorf("AddRootPath(disjoint) error = %v", err)
	}
	roots, err := f.db.RootPaths(ctx, f.user.ID)
	if err != nil || len(roots) != 2 {
		t.Errorf("RootPaths() = %v, %v; want 2 roots", roots, err)
	}
	users, err := f.db.UsersWithRootPaths(ctx)
	if err != nil || len(users) != 1 || users[0] != f.user.ID {
		t.Errorf("UsersWithRootPaths() = %v, %v", users, err)
	}
}

func TestCreateAlbum_ParentChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bob, err := f.db.CreateUser(ctx, "bob", false)
	if err != nil {
		t.Fatal(err)
	}

	err = f.db.WithTx(ctx, func(tx *Tx) error {
		child, err := tx.CreateAlbum(ctx, &Album{Title: "2023", Path: filepath.Join(f.dir, "2023"),
			OwnerID: f.user.ID, ParentAlbumID: &f.album.ID})
		if err != nil {
			return err
		}

		_, err = tx.CreateAlbum(ctx, &Album{Title: "x", Path: "/elsewhere/x", OwnerID: bob.ID, ParentAlbumID: &f.album.ID})
		if !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("cross-owner CreateAlbum() error = %v, want InvalidArgument", err)
		}

		missing := int64(999)
		_, err = tx.CreateAlbum(ctx, &Album{Title: "y", Path: "/y", OwnerID: f.user.ID, ParentAlbumID: &missing})
		if !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("missing parent CreateAlbum() error = %v, want InvalidArgument", err)
		}

		// A corrupted catalog where the root hangs below its own child.
		if _, err := tx.tx.ExecContext(ctx, `UPDATE albums SET parent_album_id = ? WHERE id = ?`, child.ID, f.album.ID); err != nil {
			return err
		}
		_, err = tx.CreateAlbum(ctx, &Album{Title: "z", Path: filepath.Join(f.dir, "2023", "z"),
			OwnerID: f.user.ID, ParentAlbumID: &child.ID})
		if !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("cyclic CreateAlbum() error = %v, want InvalidArgument", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
}

func TestSetAlbumCover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	photo := f.addMedia(t, f.album.ID, "a.jpg", time.Now())

	bob, err := f.db.CreateUser(ctx, "bob", false)
	if err != nil {
		t.Fatal(err)
	}
	missing := int64(999)

	tests := []struct {
		name    string
		owner   int64
		media   *int64
		wantErr error
	}{
		{"own photo", f.user.ID, &photo, nil},
		{"other owner", bob.ID, &photo, apperr.ErrForbidden},
		{"missing media", f.user.ID, &missing, apperr.ErrInvalidArgument},
		{"clear", f.user.ID, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.db.SetAlbumCover(ctx, tt.owner, f.album.ID, tt.media)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SetAlbumCover() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SetAlbumCover() error = %v", err)
			}
			album, err := f.db.GetAlbum(ctx, f.album.ID)
			if err != nil {
				t.Fatal(err)
			}
			if (album.CoverID == nil) != (tt.media == nil) || (tt.media != nil && *album.CoverID != *tt.media) {
				t.Errorf("CoverID = %v, want %v", album.CoverID, tt.media)
			}
		})
	}
}

func TestWithTx_RollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := f.db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.CreateAlbum(ctx, &Album{Title: "tmp", Path: filepath.Join(f.dir, "tmp"),
			OwnerID: f.user.ID, ParentAlbumID: &f.album.ID}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}
	if _, err := f.db.FindAlbumByPath(ctx, f.user.ID, filepath.Join(f.dir, "tmp")); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("album should not exist after rollback, error = %v", err)
	}
}

func TestMediaLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.addMedia(t, f.album.ID, "a.jpg", time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC))

	err := f.db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.TombstoneMedia(ctx, []int64{id}, now()); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	m, err := f.db.GetMedia(ctx, id)
	if err != nil || !m.Tombstoned() {
		t.Fatalf("media should be tombstoned: %+v, %v", m, err)
	}

	// Re-adding the same path revives the record and keeps its id.
	again := f.addMedia(t, f.album.ID, "a.jpg", time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC))
	if again != id {
		t.Errorf("UpsertMedia() id = %d, want %d", again, id)
	}
	m, _ = f.db.GetMedia(ctx, id)
	if m.Tombstoned() {
		t.Error("upsert should clear the tombstone")
	}

	seen := NewTimestamp(time.Now().Add(time.Hour))
	if err := f.db.WithTx(ctx, func(tx *Tx) error { return tx.TouchMedia(ctx, []int64{id}, seen) }); err != nil {
		t.Fatal(err)
	}
	m, _ = f.db.GetMedia(ctx, id)
	if !m.LastSeen.Equal(seen.Time) {
		t.Errorf("LastSeen = %v, want %v", m.LastSeen, seen)
	}

	byPath, err := f.db.MediaInAlbum(ctx, f.album.ID)
	if err != nil || len(byPath) != 1 {
		t.Errorf("MediaInAlbum() = %v, %v", byPath, err)
	}
}

func TestMediaDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.addMedia(t, f.album.ID, "a.jpg", time.Now())

	camera := "X100V"
	iso := int64(200)
	err := f.db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.ReplaceEXIF(ctx, id, &MediaEXIF{Camera: &camera, ISO: &iso}); err != nil {
			return err
		}
		for _, size := range []int64{100, 200} {
			if err := tx.UpsertMediaURL(ctx, &MediaURL{MediaID: id, Purpose: PurposeThumbnail,
				StorageKey: "k", ContentType: "image/jpeg", Width: 10, Height: 10, FileSize: size}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	exif, err := f.db.GetMediaEXIF(ctx, id)
	if err != nil {
		t.Fatalf("GetMediaEXIF() error = %v", err)
	}
	if exif.Camera == nil || *exif.Camera != camera || exif.Lens != nil || exif.Aperture != nil {
		t.Errorf("GetMediaEXIF() = %+v; absent fields must stay nil", exif)
	}

	urls, err := f.db.MediaURLs(ctx, id)
	if err != nil || len(urls) != 1 || urls[0].FileSize != 200 {
		t.Errorf("MediaURLs() = %+v, %v; want one replaced url", urls, err)
	}

	if _, err := f.db.GetVideoMetadata(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetVideoMetadata() error = %v, want NotFound", err)
	}
}

func TestTimeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	day1 := time.Date(2023, 1, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2023, 1, 2, 9, 0, 0, 0, time.UTC)
	f.addMedia(t, f.album.ID, "a.jpg", day1)
	f.addMedia(t, f.album.ID, "b.jpg", day1.Add(time.Hour))
	c := f.addMedia(t, f.album.ID, "c.jpg", day2)
	gone := f.addMedia(t, f.album.ID, "d.jpg", day2.Add(time.Hour))

	if err := f.db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.TombstoneMedia(ctx, []int64{gone}, now())
		return err
	}); err != nil {
		t.Fatal(err)
	}

	groups, err := f.db.Timeline(ctx, f.user.ID, 0, 0)
	if err != nil {
		t.Fatalf("Timeline() error = %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("Timeline() returned %d groups, want 2", len(groups))
	}
	if len(groups[0].Media) != 1 || groups[0].Media[0].ID != c {
		t.Errorf("first group = %+v, want only c.jpg", groups[0].Media)
	}
	if len(groups[1].Media) != 2 || groups[1].Media[0].Title != "b.jpg" {
		t.Errorf("second group = %+v, want b.jpg then a.jpg", groups[1].Media)
	}
}

func TestRemoveRootAlbum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var child *Album
	err := f.db.WithTx(ctx, func(tx *Tx) error {
		var err error
		child, err = tx.CreateAlbum(ctx, &Album{Title: "2023", Path: filepath.Join(f.dir, "2023"),
			OwnerID: f.user.ID, ParentAlbumID: &f.album.ID})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	mediaID := f.addMedia(t, child.ID, "a.jpg", time.Now())

	var groupID int64
	err = f.db.WithTx(ctx, func(tx *Tx) error {
		var err error
		if groupID, err = tx.CreateFaceGroup(ctx, f.user.ID, nil); err != nil {
			return err
		}
		_, err = tx.InsertFace(ctx, &ImageFace{MediaID: mediaID, FaceGroupID: groupID,
			Embedding: Embedding{0.25, -1.5}, Rect: Rect{MaxX: 0.5, MaxY: 0.5}})
		if err != nil {
			return err
		}
		return tx.UpsertMediaURL(ctx, &MediaURL{MediaID: mediaID, Purpose: PurposeThumbnail,
			StorageKey: "thumb-key", ContentType: "image/jpeg", Width: 1, Height: 1, FileSize: 1})
	})
	if err != nil {
		t.Fatal(err)
	}

	faces, err := f.db.MediaFaces(ctx, mediaID)
	if err != nil || len(faces) != 1 || faces[0].Embedding[1] != -1.5 || faces[0].OwnerID != f.user.ID {
		t.Fatalf("MediaFaces() = %+v, %v", faces, err)
	}

	bob, _ := f.db.CreateUser(ctx, "bob", false)
	if _, err := f.db.RemoveRootAlbum(ctx, bob.ID, f.album.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("RemoveRootAlbum(other user) error = %v, want Forbidden", err)
	}
	if _, err := f.db.RemoveRootAlbum(ctx, f.user.ID, child.ID); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("RemoveRootAlbum(child) error = %v, want InvalidArgument", err)
	}
	if _, err := f.db.RemoveRootAlbum(ctx, f.user.ID, 999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("RemoveRootAlbum(missing) error = %v, want NotFound", err)
	}

	active, err := f.db.CreateShareToken(ctx, &ShareToken{Value: "active", OwnerID: f.user.ID, MediaID: &mediaID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.db.RemoveRootAlbum(ctx, f.user.ID, f.album.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("RemoveRootAlbum(shared) error = %v, want Conflict", err)
	}

	if err := f.db.DeleteShareToken(ctx, active.ID); err != nil {
		t.Fatal(err)
	}
	_, err = f.db.CreateShareToken(ctx, &ShareToken{Value: "expired", OwnerID: f.user.ID,
		AlbumID: &child.ID, Expire: TimestampPtr(time.Now().Add(-time.Hour))})
	if err != nil {
		t.Fatal(err)
	}

	keys, err := f.db.RemoveRootAlbum(ctx, f.user.ID, f.album.ID)
	if err != nil {
		t.Fatalf("RemoveRootAlbum() error = %v", err)
	}
	if len(keys) != 1 || keys[0] != "thumb-key" {
		t.Errorf("RemoveRootAlbum() keys = %v, want [thumb-key]", keys)
	}

	if _, err := f.db.GetMedia(ctx, mediaID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("media should be deleted, error = %v", err)
	}
	if _, err := f.db.GetAlbum(ctx, child.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("child album should be deleted, error = %v", err)
	}
	if _, err := f.db.GetFaceGroup(ctx, groupID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("empty face group should be deleted, error = %v", err)
	}
	if _, err := f.db.GetShareTokenByValue(ctx, "expired"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expired token should be deleted with its album, error = %v", err)
	}
	roots, _ := f.db.RootPaths(ctx, f.user.ID)
	if len(roots) != 0 {
		t.Errorf("RootPaths() = %v, want none", roots)
	}
}

func TestFaceGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mediaID := f.addMedia(t, f.album.ID, "a.jpg", time.Now())

	label := "Ann"
	var labeled, unlabeled int64
	err := f.db.WithTx(ctx, func(tx *Tx) error {
		var err error
		if unlabeled, err = tx.CreateFaceGroup(ctx, f.user.ID, nil); err != nil {
			return err
		}
		if labeled, err = tx.CreateFaceGroup(ctx, f.user.ID, &label); err != nil {
			return err
		}
		_, err = tx.InsertFace(ctx, &ImageFace{MediaID: mediaID, FaceGroupID: unlabeled, Embedding: Embedding{1}})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	groups, err := f.db.FaceGroups(ctx, f.user.ID)
	if err != nil || len(groups) != 2 {
		t.Fatalf("FaceGroups() = %v, %v", groups, err)
	}
	if groups[0].ID != labeled || groups[1].FaceCount != 1 {
		t.Errorf("FaceGroups() = %+v, want labeled first", groups)
	}

	err = f.db.WithTx(ctx, func(tx *Tx) error {
		return tx.DeleteFaceGroup(ctx, unlabeled)
	})
	if err == nil {
		t.Error("deleting a group with faces should fail")
	}

	err = f.db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.MoveGroupFaces(ctx, unlabeled, labeled); err != nil {
			return err
		}
		n, err := tx.DeleteEmptyFaceGroups(ctx, f.user.ID)
		if n != 1 {
			t.Errorf("DeleteEmptyFaceGroups() = %d, want 1", n)
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	g, err := f.db.GetFaceGroup(ctx, labeled)
	if err != nil || g.FaceCount != 1 || !g.Labeled() {
		t.Errorf("GetFaceGroup() = %+v, %v", g, err)
	}
}

func TestShareTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.db.CreateShareToken(ctx, &ShareToken{Value: "none", OwnerID: f.user.ID}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("CreateShareToken(no target) error = %v, want InvalidArgument", err)
	}

	token, err := f.db.CreateShareToken(ctx, &ShareToken{Value: "v", OwnerID: f.user.ID, AlbumID: &f.album.ID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.db.CreateShareToken(ctx, &ShareToken{Value: "v", OwnerID: f.user.ID, AlbumID: &f.album.ID}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("duplicate CreateShareToken() error = %v, want Conflict", err)
	}

	hash := "hash"
	if err := f.db.SetShareTokenPassword(ctx, token.ID, &hash); err != nil {
		t.Fatal(err)
	}
	got, err := f.db.GetShareTokenByValue(ctx, "v")
	if err != nil || !got.HasPassword() || got.Expire != nil {
		t.Errorf("GetShareTokenByValue() = %+v, %v", got, err)
	}

	if err := f.db.DeleteShareToken(ctx, 999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("DeleteShareToken(999) error = %v, want NotFound", err)
	}
}

func TestSiteInfo(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	defaults := SiteInfo{PeriodicScanInterval: 0, ConcurrentWorkers: 3, ThumbnailMethod: "NearestNeighbor"}

	info, err := db.SiteInfo(ctx, defaults)
	if err != nil || info != defaults {
		t.Errorf("SiteInfo() = %+v, %v; want defaults", info, err)
	}

	if err := db.SavePeriodicScanInterval(ctx, 3600); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveConcurrentWorkers(ctx, 5); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveThumbnailMethod(ctx, "Lanczos"); err != nil {
		t.Fatal(err)
	}

	info, err = db.SiteInfo(ctx, defaults)
	want := SiteInfo{PeriodicScanInterval: 3600, ConcurrentWorkers: 5, ThumbnailMethod: "Lanczos"}
	if err != nil || info != want {
		t.Errorf("SiteInfo() = %+v, %v; want %+v", info, err, want)
	}
}

func TestCatalogStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addMedia(t, f.album.ID, "a.jpg", time.Now())

	stats, err := f.db.CatalogStats(ctx)
	if err != nil {
		t.Fatalf("CatalogStats() error = %v", err)
	}
	if stats.Photos != 1 || stats.Albums != 1 || stats.Videos != 0 {
		t.Errorf("CatalogStats() = %+v", stats)
	}
}

func TestPathsOverlap(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"/photos", "/photos", true},
		{"/photos", "/photos/2023", true},
		{"/photos/2023", "/photos", true},
		{"/photos", "/photos2", false},
		{"/a", "/b", false},
	}
	for _, tt := range tests {
		if got := pathsOverlap(tt.a, tt.b); got != tt.want {
			t.Errorf("pathsOverlap(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
