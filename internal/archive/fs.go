package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FSStore copies images into a directory.
type FSStore struct {
	basePath string
}

// NewFSStore creates basePath if it does not exist.
func NewFSStore(ctx context.Context, basePath string) (*FSStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &FSStore{basePath: basePath}, nil
}

// Put copies path to <basePath>/<key>, hashing the bytes as they are written.
// An existing archive under the same key is never overwritten.
func (s *FSStore) Put(ctx context.Context, key, path string) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	if key == "" || strings.Contains(key, "..") {
		return Receipt{}, fmt.Errorf("invalid archive key %q", key)
	}

	dst := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Receipt{}, fmt.Errorf("failed to create archive directory: %w", err)
	}

	src, err := os.Open(path)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to create archive file: %w", err)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, h), src)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return Receipt{}, fmt.Errorf("failed to copy image: %w", err)
	}

	if err := out.Close(); err != nil {
		return Receipt{}, fmt.Errorf("failed to close archive file: %w", err)
	}

	return Receipt{
		Key:      key,
		Size:     n,
		SHA256:   hex.EncodeToString(h.Sum(nil)),
		Location: dst,
	}, nil
}
