package scanner

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"photo-library/internal/filesystem"
)

// Fingerprint is the change signature of a file: its size and modification
// time in nanoseconds, plus a BLAKE3 hash of the content when contentHash
// is set.
func Fingerprint(ctx context.Context, path string, info os.FileInfo, contentHash bool, cfg filesystem.RetryConfig) (string, error) {
	fp := fmt.Sprintf("%d-%d", info.Size(), info.ModTime().UnixNano())
	if !contentHash {
		return fp, nil
	}

	f, err := filesystem.OpenWithRetry(ctx, path, cfg)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return fp + "-" + hex.EncodeToString(h.Sum(nil)), nil
}
