package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory PersistenceStore for tests and single-process
// deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Make sure we conform to the interface
var _ PersistenceStore = (*MemoryStore)(nil)

// Load returns a copy of the payload stored under key.
func (s *MemoryStore) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("key %s: %w", key, ErrNotFound)
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// Save stores a copy of the payload under key.
func (s *MemoryStore) Save(ctx context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]byte, len(payload))
	copy(copied, payload)
	s.data[key] = copied
	return nil
}
