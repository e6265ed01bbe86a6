package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
	if config.VolumeResolver != nil {
		t.Error("VolumeResolver should be nil by default")
	}
}

func TestIsNFSStaleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"ESTALE error", syscall.ESTALE, true},
		{"wrapped ESTALE", &os.PathError{Op: "stat", Path: "/x", Err: syscall.ESTALE}, true},
		{"ENOENT error", syscall.ENOENT, false},
		{"generic error", os.ErrNotExist, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNFSStaleError(tt.err); got != tt.want {
				t.Errorf("isNFSStaleError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVolumeResolver_Resolve(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"media":    "/media",
		"cache":    "/media/cache",
		"database": "/database",
	}, "library")

	tests := []struct {
		path string
		want string
	}{
		{"/media", "media"},
		{"/media/photos/2023/a.jpg", "media"},
		{"/media/cache/thumb.jpg", "cache"},
		{"/database/catalog.db", "database"},
		{"/mediafoo/x.jpg", "library"},
		{"/other", "library"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := vr.Resolve(tt.path); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestVolumeResolver_Nil(t *testing.T) {
	var vr *VolumeResolver
	if got := vr.Resolve("/media"); got != "unknown" {
		t.Errorf("nil resolver Resolve() = %q, want unknown", got)
	}
}

// recordEvents installs an observer for the duration of the test.
func recordEvents(t *testing.T) *[]Event {
	t.Helper()
	var (
		mu     sync.Mutex
		events []Event
	)
	SetObserver(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	t.Cleanup(func() { SetObserver(nil) })
	return &events
}

func fastConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestWithRetry_SucceedsAfterStale(t *testing.T) {
	events := recordEvents(t)

	calls := 0
	got, err := withRetry(context.Background(), "stat", "/x", fastConfig(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, syscall.ESTALE
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("withRetry() error = %v", err)
	}
	if got != 42 {
		t.Errorf("withRetry() = %d, want 42", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(*events) != 1 {
		t.Fatalf("got %d events, want 1", len(*events))
	}
	ev := (*events)[0]
	if ev.Op != "stat" || ev.Calls != 3 || ev.Stale != 2 || ev.Err != nil || !ev.Retried() {
		t.Errorf("event = %+v, want stat with 3 calls and 2 stale handles", ev)
	}
}

func TestWithRetry_GivesUp(t *testing.T) {
	events := recordEvents(t)

	calls := 0
	_, err := withRetry(context.Background(), "open", "/x", fastConfig(), func() (int, error) {
		calls++
		return 0, syscall.ESTALE
	})
	if !errors.Is(err, syscall.ESTALE) {
		t.Errorf("withRetry() error = %v, want ESTALE", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	if len(*events) != 1 || (*events)[0].Stale != 4 || !errors.Is((*events)[0].Err, syscall.ESTALE) {
		t.Errorf("events = %+v, want one failed call with 4 stale handles", *events)
	}
}

func TestWithRetry_NonStaleNotRetried(t *testing.T) {
	events := recordEvents(t)
	calls := 0
	_, err := withRetry(context.Background(), "stat", "/x", fastConfig(), func() (int, error) {
		calls++
		return 0, os.ErrPermission
	})
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("withRetry() error = %v, want permission error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(*events) != 1 || (*events)[0].Retried() {
		t.Errorf("events = %+v, want one call without retries", *events)
	}
}

func TestWithRetry_UsesConfiguredResolver(t *testing.T) {
	events := recordEvents(t)
	config := fastConfig()
	config.VolumeResolver = NewVolumeResolver(map[string]string{"cache": "/cache"}, "library")

	_, _ = withRetry(context.Background(), "stat", "/cache/thumbs/a.jpg", config, func() (int, error) {
		return 1, nil
	})
	_, _ = withRetry(context.Background(), "stat", "/photos/a.jpg", config, func() (int, error) {
		return 1, nil
	})

	if len(*events) != 2 || (*events)[0].Volume != "cache" || (*events)[1].Volume != "library" {
		t.Errorf("events = %+v, want cache then library", *events)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	config := RetryConfig{MaxRetries: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
	_, err := withRetry(ctx, "stat", "/x", config, func() (int, error) {
		return 0, syscall.ESTALE
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("withRetry() error = %v, want context.Canceled", err)
	}
}

func TestRetryHelpers_RealFiles(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "b.jpg")
	if err := os.WriteFile(file, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	info, err := StatWithRetry(ctx, file, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("StatWithRetry() error = %v", err)
	}
	if info.Size() != 4 {
		t.Errorf("Size() = %d, want 4", info.Size())
	}

	f, err := OpenWithRetry(ctx, file, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("OpenWithRetry() error = %v", err)
	}
	f.Close()

	entries, err := ReadDirWithRetry(ctx, dir, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("ReadDirWithRetry() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Name() != "a.jpg" {
		t.Errorf("ReadDirWithRetry() entries not sorted: %v", entries)
	}

	data, err := ReadFileWithRetry(ctx, file, DefaultRetryConfig())
	if err != nil || string(data) != "data" {
		t.Errorf("ReadFileWithRetry() = %q, %v", data, err)
	}

	if _, err := StatWithRetry(ctx, filepath.Join(dir, "missing"), DefaultRetryConfig()); !os.IsNotExist(err) {
		t.Errorf("StatWithRetry(missing) error = %v, want not-exist", err)
	}
}
