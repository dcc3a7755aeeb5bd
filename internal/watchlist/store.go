package watchlist

import (
	"context"
	"sync"
)

// Store is the authoritative backing copy of a watchlist.
// Mutations return the full list after the change.
type Store interface {
	List(ctx context.Context, id string) ([]string, error)
	Add(ctx context.Context, id, symbol string) ([]string, error)
	Remove(ctx context.Context, id, symbol string) ([]string, error)
}

// MemoryStore keeps watchlists in process memory
type MemoryStore struct {
	mu    sync.Mutex
	lists map[string][]string
}

// NewMemoryStore creates an empty in-memory store, optionally seeded
func NewMemoryStore(seed map[string][]string) *MemoryStore {
	s := &MemoryStore{lists: make(map[string][]string)}
	for id, syms := range seed {
		s.lists[id] = append([]string(nil), syms...)
	}
	return s
}

func (s *MemoryStore) List(_ context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lists[id]...), nil
}

func (s *MemoryStore) Add(_ context.Context, id, symbol string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.lists[id] {
		if existing == symbol {
			return append([]string(nil), s.lists[id]...), nil
		}
	}
	s.lists[id] = append(s.lists[id], symbol)
	return append([]string(nil), s.lists[id]...), nil
}

func (s *MemoryStore) Remove(_ context.Context, id, symbol string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[id]
	out := make([]string, 0, len(list))
	for _, existing := range list {
		if existing != symbol {
			out = append(out, existing)
		}
	}
	s.lists[id] = out
	return append([]string(nil), out...), nil
}
