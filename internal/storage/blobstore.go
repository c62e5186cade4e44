package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BlobStore persists uploaded image payloads. Deleting a ProductImage row
// must go through Delete as well, so the backing blob does not leak.
type BlobStore interface {
	Save(name string, r io.Reader) (path string, err error)
	Delete(path string) error
}

// DiskStore keeps blobs under a media directory, one file per image.
type DiskStore struct {
	Dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "products"), 0o755); err != nil {
		return nil, fmt.Errorf("storage: create media dir: %w", err)
	}
	return &DiskStore{Dir: dir}, nil
}

func (s *DiskStore) Save(name string, r io.Reader) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("storage: invalid file name %q", name)
	}
	rel := filepath.Join("products", fmt.Sprintf("%d_%s", time.Now().UnixNano(), base))

	f, err := os.Create(filepath.Join(s.Dir, rel))
	if err != nil {
		return "", fmt.Errorf("storage: create blob: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("storage: write blob: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

func (s *DiskStore) Delete(path string) error {
	rel := filepath.FromSlash(strings.TrimPrefix(path, "/"))
	if strings.Contains(rel, "..") {
		return fmt.Errorf("storage: invalid blob path %q", path)
	}
	if err := os.Remove(filepath.Join(s.Dir, rel)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: delete blob: %w", err)
	}
	return nil
}
