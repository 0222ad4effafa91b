package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"nrelay/internal/relay"
)

// FileSystemStore stores blobs as files named by their checksum under a
// single root directory. Writes go through a temp file and rename so a
// crash never leaves a partial blob under its final name.
type FileSystemStore struct {
	root string
}

// NewFileSystemStore creates a filesystem blob store rooted at the given path.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

func (s *FileSystemStore) path(checksum string) string {
	return filepath.Join(s.root, checksum)
}

func (s *FileSystemStore) Put(_ context.Context, checksum string, r io.Reader, size int64) error {
	destPath := s.path(checksum)

	// If the blob already exists, skip (idempotent)
	if _, err := os.Stat(destPath); err == nil {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != size {
		os.Remove(tmpPath)
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize blob: %w", err)
	}
	return nil
}

func (s *FileSystemStore) Get(_ context.Context, checksum string, w io.Writer) error {
	f, err := os.Open(s.path(checksum))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("blob not found: %s", checksum)
		}
		return fmt.Errorf("failed to open blob: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}
	return nil
}

func (s *FileSystemStore) Exists(_ context.Context, checksum string) (bool, error) {
	_, err := os.Stat(s.path(checksum))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat blob: %w", err)
}

func (s *FileSystemStore) Delete(_ context.Context, checksum string) error {
	if err := os.Remove(s.path(checksum)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the blob root is an accessible directory.
func (s *FileSystemStore) ValidateSetup(context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("blob root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("blob root is not a directory: %s", s.root)
	}
	return nil
}

var _ relay.BlobStore = (*FileSystemStore)(nil)
