// Package archive ships finished evidence images to long-term storage and
// returns a receipt carrying the image's SHA-256.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Receipt describes one archived image.
type Receipt struct {
	Key    string `json:"key"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`

	// Location is where the copy now lives: a file path or an s3:// URL.
	Location string `json:"location"`
}

// Store archives an image file under a key.
type Store interface {
	Put(ctx context.Context, key, path string) (Receipt, error)
}

// hashFile returns the size and hex SHA-256 of the file at path.
func hashFile(ctx context.Context, path string) (int64, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", fmt.Errorf("failed to hash image: %w", err)
	}

	return n, hex.EncodeToString(h.Sum(nil)), nil
}
