package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps blobs in process memory. Used by tests and by
// runs that explicitly opt out of persistence.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]string)}
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = value
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.blobs[key]
	return v, ok, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
