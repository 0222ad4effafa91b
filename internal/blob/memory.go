// Package blob provides BlobStore implementations for media attachments:
// an in-memory store for tests, a filesystem store for single-node
// deployments and an S3 store for anything shared.
package blob

import (
	"context"
	"fmt"
	"io"
	"sync"

	"nrelay/internal/relay"
)

// MemoryStore is an in-memory implementation of the BlobStore interface.
// It is safe for concurrent use and useful primarily for testing.
type MemoryStore struct {
	mu      sync.RWMutex
	content map[string][]byte // checksum -> content
}

// NewMemoryStore creates a new in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{content: make(map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, checksum string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotent: storing the same checksum multiple times is safe
	m.content[checksum] = data
	return nil
}

func (m *MemoryStore) Get(_ context.Context, checksum string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.content[checksum]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("blob not found: %s", checksum)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, checksum string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.content[checksum]
	return ok, nil
}

func (m *MemoryStore) Delete(_ context.Context, checksum string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.content, checksum)
	return nil
}

func (m *MemoryStore) ValidateSetup(context.Context) error { return nil }

var _ relay.BlobStore = (*MemoryStore)(nil)
