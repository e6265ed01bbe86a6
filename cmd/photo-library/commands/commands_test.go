package commands

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"photo-library/internal/apperr"
	"photo-library/internal/database"
)

// testEnv points the configuration at a temporary database and cache.
type testEnv struct {
	dbPath string
	root   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dbPath: filepath.Join(dir, "db", "catalog.db"),
		root:   filepath.Join(dir, "library"),
	}
	if err := os.MkdirAll(env.root, 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PHOTOLIB_DATABASE_PATH", env.dbPath)
	t.Setenv("PHOTOLIB_CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("PHOTOLIB_TRANSCODING_ENABLED", "false")
	return env
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("%v: error = %v\n%s", args, err, out)
	}
	return out
}

func (e *testEnv) openDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(context.Background(), e.dbPath)
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func writeJPEG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 8), B: 90, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
}

func stubPasswords(t *testing.T, answers ...string) {
	t.Helper()
	prev := readPassword
	t.Cleanup(func() { readPassword = prev })
	readPassword = func() ([]byte, error) {
		if len(answers) == 0 {
			return nil, errors.New("no more input")
		}
		next := answers[0]
		answers = answers[1:]
		return []byte(next), nil
	}
}

func TestVersion(t *testing.T) {
	out := mustRun(t, "version")
	if !strings.HasPrefix(out, "photo-library ") || !strings.Contains(out, "commit:") {
		t.Errorf("unexpected version output:\n%s", out)
	}
}

func TestUserAddAndAddRoot(t *testing.T) {
	env := newTestEnv(t)

	out := mustRun(t, "user", "add", "alice", "--admin")
	if !strings.Contains(out, "Created user alice") {
		t.Errorf("user add output = %q", out)
	}

	if _, err := run(t, "user", "add", "alice"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("duplicate user error = %v, want conflict", err)
	}

	out = mustRun(t, "user", "add-root", "alice", env.root)
	if !strings.Contains(out, "Added root path") {
		t.Errorf("add-root output = %q", out)
	}

	db := env.openDB(t)
	user, err := db.GetUserByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !user.Admin {
		t.Error("alice is not an admin")
	}
	roots, err := db.RootPaths(context.Background(), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(roots) != 1 || roots[0].Path != env.root {
		t.Errorf("RootPaths() = %+v, want %s", roots, env.root)
	}
}

func TestUserAddRootErrors(t *testing.T) {
	env := newTestEnv(t)
	mustRun(t, "user", "add", "bob")

	if _, err := run(t, "user", "add-root", "nobody", env.root); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown user error = %v, want not found", err)
	}
	missing := filepath.Join(env.root, "missing")
	if _, err := run(t, "user", "add-root", "bob", missing); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("missing directory error = %v, want invalid argument", err)
	}
	if _, err := run(t, "user", "add-root", "bob"); err == nil {
		t.Error("add-root accepted a single argument")
	}
}

func TestScan(t *testing.T) {
	env := newTestEnv(t)
	if err := os.MkdirAll(filepath.Join(env.root, "trip"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeJPEG(t, filepath.Join(env.root, "a.jpg"))
	writeJPEG(t, filepath.Join(env.root, "trip", "b.jpg"))

	mustRun(t, "user", "add", "carol")
	mustRun(t, "user", "add-root", "carol", env.root)

	out := mustRun(t, "scan", "--user", "carol")
	if !strings.Contains(out, "Scan finished: 2 new, 0 changed, 0 unchanged, 0 removed") {
		t.Errorf("scan output:\n%s", out)
	}

	out = mustRun(t, "scan", "--user", "carol")
	if !strings.Contains(out, "0 new, 0 changed, 2 unchanged") {
		t.Errorf("rescan output:\n%s", out)
	}
}

func TestScanRequiresUser(t *testing.T) {
	newTestEnv(t)
	if _, err := run(t, "scan"); err == nil {
		t.Error("scan without --user succeeded")
	}
	if _, err := run(t, "scan", "--user", "ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("scan of unknown user error = %v, want not found", err)
	}
}

func TestShareCreate(t *testing.T) {
	env := newTestEnv(t)
	mustRun(t, "user", "add", "dave")
	mustRun(t, "user", "add-root", "dave", env.root)

	db := env.openDB(t)
	user, err := db.GetUserByUsername(context.Background(), "dave")
	if err != nil {
		t.Fatal(err)
	}
	roots, err := db.RootPaths(context.Background(), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	album := roots[0].AlbumID

	stubPasswords(t, "secret123", "secret123")
	out := mustRun(t, "share", "create", "--user", "dave", "--album", strconv.FormatInt(album, 10), "--expire", "48h", "--protect")
	if !strings.Contains(out, "Share token: ") || !strings.Contains(out, "Expires:") || !strings.Contains(out, "Protected:   yes") {
		t.Fatalf("share create output:\n%s", out)
	}

	tokens, err := db.UserShareTokens(context.Background(), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 1 {
		t.Fatalf("got %d tokens, want 1", len(tokens))
	}
	tok := tokens[0]
	if tok.AlbumID == nil || *tok.AlbumID != album || !tok.HasPassword() || tok.Expire == nil {
		t.Errorf("token = %+v", tok)
	}
	if !strings.Contains(out, tok.Value) {
		t.Errorf("output does not contain token %s", tok.Value)
	}
}

func TestShareCreateFlagValidation(t *testing.T) {
	newTestEnv(t)
	mustRun(t, "user", "add", "erin")

	tests := []struct {
		name string
		args []string
	}{
		{"no target", []string{"share", "create", "--user", "erin"}},
		{"both targets", []string{"share", "create", "--user", "erin", "--album", "1", "--media", "2"}},
		{"negative expiry", []string{"share", "create", "--user", "erin", "--album", "1", "--expire", "-1h"}},
		{"unknown album", []string{"share", "create", "--user", "erin", "--album", "999"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestPromptPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		confirm  string
		wantErr  bool
	}{
		{"valid password", "validpass123", "validpass123", false},
		{"minimum length password", "123456", "123456", false},
		{"too short password", "12345", "12345", true},
		{"empty password", "", "", true},
		{"mismatched passwords", "password123", "password456", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubPasswords(t, tt.password, tt.confirm)
			var out bytes.Buffer
			got, err := promptPassword(&out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("promptPassword() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.password {
				t.Errorf("promptPassword() = %q, want %q", got, tt.password)
			}
			if !strings.Contains(out.String(), "Confirm password: ") {
				t.Errorf("prompt output = %q", out.String())
			}
		})
	}
}

func TestPromptPasswordMismatch(t *testing.T) {
	stubPasswords(t, "password123", "password456")
	if _, err := promptPassword(&bytes.Buffer{}); !errors.Is(err, errPasswordMismatch) {
		t.Errorf("error = %v, want errPasswordMismatch", err)
	}
}

func TestPromptPasswordReadError(t *testing.T) {
	stubPasswords(t)
	if _, err := promptPassword(&bytes.Buffer{}); err == nil {
		t.Error("expected read error")
	}
}
