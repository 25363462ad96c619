package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/formbridge/pkg/domain"
)

// Store implements ports.DraftStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Draft
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Draft),
	}
}

// Save persists a copy of the draft in memory.
func (s *Store) Save(ctx context.Context, draft *domain.Draft) error {
	copied := draft.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[draft.ID] = copied
	return nil
}

// Load retrieves a copy of the draft, so callers cannot mutate the stored one.
func (s *Store) Load(ctx context.Context, id string) (*domain.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draft, ok := s.data[id]
	if !ok {
		return nil, domain.ErrDraftNotFound
	}
	return draft.Clone(), nil
}

// Delete removes the draft.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns the stored draft IDs in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
