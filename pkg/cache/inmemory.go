package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryStore is a generic, thread-safe, in-memory Store.
// It is primarily intended for local development and testing.
type InMemoryStore[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]Record[V]
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore[K comparable, V any]() *InMemoryStore[K, V] {
	return &InMemoryStore[K, V]{
		data: make(map[K]Record[V]),
	}
}

// Get retrieves the record for key.
func (s *InMemoryStore[K, V]) Get(_ context.Context, key K) (Record[V], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[key]
	if !ok {
		return Record[V]{}, fmt.Errorf("key '%v': %w", key, ErrNotFound)
	}
	return rec, nil
}

// Put replaces the record for key.
func (s *InMemoryStore[K, V]) Put(_ context.Context, key K, value V, fetchedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = Record[V]{Payload: value, FetchedAt: fetchedAt}
	return nil
}

// Len returns the number of records held.
func (s *InMemoryStore[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore[K, V]) Close() error {
	return nil
}
