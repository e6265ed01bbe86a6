package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"photo-library/internal/apperr"
	"photo-library/internal/logging"
)

// LocalDir stores assets below a root directory.
type LocalDir struct {
	root string
	mode os.FileMode
}

// NewLocalDir creates the root directory if needed.
func NewLocalDir(root string) (*LocalDir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	logging.Debug("Local asset storage at %s", root)
	return &LocalDir{root: root, mode: 0o644}, nil
}

// Type implements Store.
func (l *LocalDir) Type() string {
	return TypeLocalDir
}

func (l *LocalDir) path(key string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(key)), nil
}

// Put implements Store. The asset is written to a temporary file and renamed
// into place so readers never observe a partial file.
func (l *LocalDir) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (ObjectInfo, error) {
	dst, err := l.path(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ObjectInfo{}, fmt.Errorf("failed to create asset directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("failed to create temporary asset: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	written, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("failed to write asset %s: %w", key, err)
	}
	if size >= 0 && written != size {
		err = fmt.Errorf("short write for asset %s: wrote %d of %d bytes", key, written, size)
		return ObjectInfo{}, err
	}
	if err = os.Chmod(tmpName, l.mode); err != nil {
		return ObjectInfo{}, err
	}
	if err = os.Rename(tmpName, dst); err != nil {
		return ObjectInfo{}, fmt.Errorf("failed to move asset into place: %w", err)
	}

	return ObjectInfo{Key: key, Size: written, ContentType: contentType}, nil
}

// Get implements Store.
func (l *LocalDir) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	info, err := l.Stat(ctx, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	p, _ := l.path(key)
	f, err := os.Open(p)
	if err != nil {
		return nil, ObjectInfo{}, notExist(err, key)
	}
	return f, info, nil
}

// Stat implements Store.
func (l *LocalDir) Stat(_ context.Context, key string) (ObjectInfo, error) {
	p, err := l.path(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return ObjectInfo{}, notExist(err, key)
	}
	return ObjectInfo{Key: key, Size: fi.Size(), ContentType: mime.TypeByExtension(filepath.Ext(p))}, nil
}

// Delete implements Store.
func (l *LocalDir) Delete(_ context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete asset %s: %w", key, err)
	}
	return nil
}

func notExist(err error, key string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("asset %s: %w", key, apperr.ErrNotFound)
	}
	return err
}
