package story

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu      sync.RWMutex
	stories map[uuid.UUID]*Story
}

func NewMemoryStore() Store {
	return &memoryStore{stories: make(map[uuid.UUID]*Story)}
}

func (s *memoryStore) Create(_ context.Context, st *Story) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.Version = 1
	s.stories[st.ID] = st.Clone()
	return nil
}

func (s *memoryStore) FindByID(_ context.Context, id uuid.UUID) (*Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.stories[id]; ok {
		return st.Clone(), nil
	}
	return nil, ErrNotFound
}

func (s *memoryStore) Save(_ context.Context, st *Story) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.stories[st.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != st.Version {
		return ErrConcurrencyConflict
	}
	st.Version++
	s.stories[st.ID] = st.Clone()
	return nil
}
