// Package memory stores blob content in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// BlobStore stores payloads in-memory and returns pseudo URIs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// PutObject copies the payload and returns a memory:// URI.
func (s *BlobStore) PutObject(_ context.Context, objectPath string, _ string, r io.Reader) (string, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read payload: %w", err)
	}

	s.mu.Lock()
	s.data[objectPath] = append([]byte(nil), payload...)
	s.mu.Unlock()
	return fmt.Sprintf("memory://%s", objectPath), nil
}

// Object returns the stored payload for a path.
func (s *BlobStore) Object(objectPath string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.data[objectPath]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), payload...), true
}

// Paths returns the stored object paths in sorted order.
func (s *BlobStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.data))
	for p := range s.data {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
