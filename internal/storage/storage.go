// Package storage keeps derived assets (thumbnails, high resolution
// previews, web video renditions) in a local directory or an S3 compatible
// bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"photo-library/internal/apperr"
	"photo-library/internal/startup"
)

const (
	TypeLocalDir = "local"
	TypeS3       = "s3"
)

// ObjectInfo describes a stored asset.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// Store persists derived assets by key. Writing an existing key replaces it.
type Store interface {
	// Type returns the backend name.
	Type() string
	// Put stores size bytes from r under key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (ObjectInfo, error)
	// Get opens the asset under key. Missing keys yield apperr.ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Stat describes the asset under key. Missing keys yield apperr.ErrNotFound.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Delete removes the asset under key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// cleanKey validates a slash separated relative key.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("invalid storage key %q: %w", key, apperr.ErrInvalidArgument)
	}
	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", fmt.Errorf("invalid storage key %q: %w", key, apperr.ErrInvalidArgument)
	}
	return cleaned, nil
}

// DeleteAll removes every key, returning the first error after trying all.
func DeleteAll(ctx context.Context, s Store, keys []string) error {
	var first error
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// New opens the backend selected by cfg. Local assets live below localRoot.
func New(ctx context.Context, cfg startup.StorageConfig, localRoot string) (Store, error) {
	switch cfg.Type {
	case "", TypeLocalDir:
		return NewLocalDir(localRoot)
	case TypeS3:
		return NewS3(ctx, cfg.S3, 10)
	default:
		return nil, fmt.Errorf("unknown storage type %q: %w", cfg.Type, apperr.ErrInvalidArgument)
	}
}
