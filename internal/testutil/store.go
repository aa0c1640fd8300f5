// Package testutil provides in-memory Repository implementations for
// every domain aggregate, grounded on the teacher's generic
// InMemoryStore[T] (internal/testutil/inmemory_price_store.go and
// friends), so service-level tests can exercise real composition/
// finalize/lifecycle logic against something richer than a single-test
// fake without touching Postgres.
package testutil

import (
	"sync"

	ierr "github.com/ledgerbase/billing/internal/errors"
)

// InMemoryStore is a tenant-naive, mutex-guarded map keyed by aggregate
// ID. Each repository wrapper below adds the filtering its domain
// interface needs on top.
type InMemoryStore[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewInMemoryStore[T any]() *InMemoryStore[T] {
	return &InMemoryStore[T]{items: make(map[string]T)}
}

func (s *InMemoryStore[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[id]
	return v, ok
}

func (s *InMemoryStore[T]) Put(id string, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = v
}

func (s *InMemoryStore[T]) All() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.items))
	for _, v := range s.items {
		out = append(out, v)
	}
	return out
}

func notFound(entity, id string) error {
	return ierr.NewError(entity + " not found").
		WithHintf("no %s with id %s", entity, id).
		Mark(ierr.ErrNotFound).Err()
}
