package user

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*User
	now   func() time.Time
}

// MemoryOption configures the store returned by NewMemoryStore.
type MemoryOption func(*memoryStore)

// WithMemoryClock sets the clock that stamps UpdatedAt on save.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *memoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore returns a process-local Store. Records are copied on the
// way in and out so callers never share state with the store.
func NewMemoryStore(opts ...MemoryOption) Store {
	s := &memoryStore{users: make(map[uuid.UUID]*User), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *memoryStore) FindByID(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return u.Clone(), nil
	}
	return nil, ErrNotFound
}

func (s *memoryStore) FindByEmail(_ context.Context, email string) (*User, error) {
	return s.find(func(u *User) bool { return u.Email == email })
}

func (s *memoryStore) FindByGoogleID(_ context.Context, googleID string) (*User, error) {
	if googleID == "" {
		return nil, ErrNotFound
	}
	return s.find(func(u *User) bool { return u.GoogleID == googleID })
}

func (s *memoryStore) FindBySubscriptionRef(_ context.Context, ref string) (*User, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	return s.find(func(u *User) bool { return u.ExternalSubscriptionRef == ref })
}

func (s *memoryStore) FindByCustomerRef(_ context.Context, ref string) (*User, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	return s.find(func(u *User) bool { return u.ExternalCustomerRef == ref })
}

func (s *memoryStore) find(match func(*User) bool) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			return u.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	u.Version = 1
	s.users[u.ID] = u.Clone()
	return nil
}

func (s *memoryStore) Save(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != u.Version {
		return ErrConcurrencyConflict
	}
	u.Version++
	u.UpdatedAt = s.now().UTC()
	s.users[u.ID] = u.Clone()
	return nil
}
