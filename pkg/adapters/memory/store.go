package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/botasky11/totml/pkg/domain"
)

// Store implements ports.ExperimentStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Experiment
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Experiment),
	}
}

// Save keeps a copy of the experiment.
func (s *Store) Save(ctx context.Context, exp *domain.Experiment) error {
	copied := exp.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[exp.ID] = copied
	return nil
}

// Load returns a copy so callers can't mutate the stored record by pointer.
func (s *Store) Load(ctx context.Context, id string) (*domain.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.data[id]
	if !ok {
		return nil, domain.ErrExperimentNotFound
	}
	return exp.Clone(), nil
}

// Delete removes the experiment.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns the stored experiment IDs in lexical order.
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
