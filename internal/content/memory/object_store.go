// Package memory stores object content in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// ObjectStore stores objects in-memory.
type ObjectStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	writes int
}

// New creates a new in-memory object store.
func New() *ObjectStore {
	return &ObjectStore{data: make(map[string][]byte)}
}

// Exists reports whether an object is present at the given path.
func (s *ObjectStore) Exists(_ context.Context, objectPath string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[objectPath]
	return ok, nil
}

// Write persists the content.
func (s *ObjectStore) Write(_ context.Context, objectPath, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[objectPath] = append([]byte(nil), data...)
	s.writes++
	return nil
}

// Read returns the content stored at the given path.
func (s *ObjectStore) Read(_ context.Context, objectPath string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[objectPath]
	if !ok {
		return nil, fmt.Errorf("object %s does not exist", objectPath)
	}
	return append([]byte(nil), data...), nil
}

// Writes returns how many physical writes were performed.
func (s *ObjectStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Len returns the number of stored objects.
func (s *ObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
