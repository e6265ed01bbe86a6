// Package filesystem wraps the file operations the scanner performs on the
// library roots with retries for stale NFS file handles.
package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"photo-library/internal/logging"
)

// VolumeResolver labels paths with the name of the volume they live on,
// using the longest matching directory prefix.
type VolumeResolver struct {
	// longest path first
	mounts   []volumeMount
	fallback string
}

type volumeMount struct {
	dir  string // absolute, with trailing separator
	name string
}

// NewVolumeResolver creates a resolver from volume names to directories.
// Paths outside every directory resolve to fallback.
//
//	NewVolumeResolver(map[string]string{
//	    "cache":    "/var/cache/photo-library",
//	    "database": "/var/lib/photo-library",
//	}, "library")
func NewVolumeResolver(volumes map[string]string, fallback string) *VolumeResolver {
	vr := &VolumeResolver{fallback: fallback}
	for name, dir := range volumes {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		vr.mounts = append(vr.mounts, volumeMount{dir: withSeparator(dir), name: name})
	}
	sort.Slice(vr.mounts, func(i, j int) bool {
		return len(vr.mounts[i].dir) > len(vr.mounts[j].dir)
	})
	return vr
}

func withSeparator(dir string) string {
	if strings.HasSuffix(dir, string(filepath.Separator)) {
		return dir
	}
	return dir + string(filepath.Separator)
}

// Resolve returns the volume of path. A nil resolver returns "unknown".
func (vr *VolumeResolver) Resolve(path string) string {
	if vr == nil {
		return "unknown"
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	path = withSeparator(path)
	for _, m := range vr.mounts {
		if strings.HasPrefix(path, m.dir) {
			return m.name
		}
	}
	return vr.fallback
}

var defaultResolver atomic.Pointer[VolumeResolver]

// SetDefaultVolumeResolver sets the resolver used when a RetryConfig has
// none.
func SetDefaultVolumeResolver(vr *VolumeResolver) {
	defaultResolver.Store(vr)
}

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// VolumeResolver overrides the package-level resolver when set.
	VolumeResolver *VolumeResolver
}

// DefaultRetryConfig returns the defaults used for library roots.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c *RetryConfig) resolveVolume(path string) string {
	if c.VolumeResolver != nil {
		return c.VolumeResolver.Resolve(path)
	}
	return defaultResolver.Load().Resolve(path)
}

// isNFSStaleError reports whether err is ESTALE.
func isNFSStaleError(err error) bool {
	if err == nil {
		return false
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}
	return false
}

// withRetry runs fn until it succeeds, fails with something other than
// ESTALE, the retries run out or ctx is done. One Event is reported per
// call.
func withRetry[T any](ctx context.Context, op, path string, config RetryConfig, fn func() (T, error)) (v T, err error) {
	ev := Event{Op: op, Volume: config.resolveVolume(path)}
	start := time.Now()
	defer func() {
		ev.Duration = time.Since(start)
		ev.Err = err
		report(ev)
	}()

	backoff := config.InitialBackoff
	for {
		ev.Calls++
		v, err = fn()
		if err == nil {
			if ev.Stale > 0 {
				logging.Info("NFS %s of %s recovered after %d stale handles", op, path, ev.Stale)
			}
			return v, nil
		}
		if !isNFSStaleError(err) {
			return v, err
		}
		ev.Stale++
		if ev.Calls > config.MaxRetries {
			logging.Warn("NFS %s failed after %d retries for %s: %v", op, config.MaxRetries, path, err)
			return v, err
		}

		logging.Debug("NFS %s stale file handle for %s, retrying in %v (attempt %d/%d)",
			op, path, backoff, ev.Calls, config.MaxRetries)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, config.MaxBackoff)
	}
}

// StatWithRetry performs os.Stat, retrying stale file handle errors.
func StatWithRetry(ctx context.Context, path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry(ctx, "stat", path, config, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// OpenWithRetry performs os.Open, retrying stale file handle errors.
func OpenWithRetry(ctx context.Context, path string, config RetryConfig) (*os.File, error) {
	return withRetry(ctx, "open", path, config, func() (*os.File, error) {
		return os.Open(path)
	})
}

// ReadDirWithRetry performs os.ReadDir, retrying stale file handle errors.
// Entries are returned sorted by name.
func ReadDirWithRetry(ctx context.Context, path string, config RetryConfig) ([]os.DirEntry, error) {
	return withRetry(ctx, "readdir", path, config, func() ([]os.DirEntry, error) {
		return os.ReadDir(path)
	})
}

// ReadFileWithRetry performs os.ReadFile, retrying stale file handle errors.
func ReadFileWithRetry(ctx context.Context, path string, config RetryConfig) ([]byte, error) {
	return withRetry(ctx, "read", path, config, func() ([]byte, error) {
		return os.ReadFile(path)
	})
}
