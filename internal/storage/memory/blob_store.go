// Package memory keeps artifacts and job records in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/entity-harvester/internal/storage"
)

// BlobStore stores objects in-memory and returns pseudo URIs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ storage.Backend = (*BlobStore)(nil)

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// Create stores a copy of data unless key is already present.
func (s *BlobStore) Create(_ context.Context, key string, _ string, data []byte) (string, error) {
	cleaned, err := storage.CleanKey(key)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[cleaned]; exists {
		return "", fmt.Errorf("create %s: %w", cleaned, storage.ErrExists)
	}
	s.data[cleaned] = append([]byte(nil), data...)
	return "memory://" + cleaned, nil
}

// Read returns a copy of the object stored under key.
func (s *BlobStore) Read(_ context.Context, key string) ([]byte, error) {
	cleaned, err := storage.CleanKey(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[cleaned]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", cleaned, storage.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// List returns the sorted names of objects directly under dir.
func (s *BlobStore) List(_ context.Context, dir string) ([]string, error) {
	cleaned, err := storage.CleanDir(dir)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for key := range s.data {
		parent, name := path.Split(key)
		if strings.TrimSuffix(parent, "/") != cleaned {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Len reports how many objects are stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
