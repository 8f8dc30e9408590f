package inventory

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and persistence-less setups.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]map[string]int
	saves int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]int)}
}

// Load returns a copy of the stored counts.
func (s *MemoryStore) Load(_ context.Context) (map[string]map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]int, len(s.data))
	for user, items := range s.data {
		out[user] = copyCounts(items)
	}
	return out, nil
}

// Save replaces the stored counts.
func (s *MemoryStore) Save(_ context.Context, all map[string]map[string]int) error {
	data := make(map[string]map[string]int, len(all))
	for user, items := range all {
		if p := positive(items); len(p) > 0 {
			data[user] = p
		}
	}

	s.mu.Lock()
	s.data = data
	s.saves++
	s.mu.Unlock()
	return nil
}

// Saves returns how many times Save was called. For testing.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
