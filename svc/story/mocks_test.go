package story_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/talewise/storyteller/pkg/billing"
	"github.com/talewise/storyteller/svc/story"
	"github.com/talewise/storyteller/svc/user"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string, opts story.GenerateOptions) (string, error) {
	args := m.Called(ctx, prompt, opts)
	return args.String(0), args.Error(1)
}

// racingStore makes the next n saves lose a version race.
type racingStore struct {
	user.Store
	mu    sync.Mutex
	races int
}

func (s *racingStore) Save(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	race := s.races > 0
	if race {
		s.races--
	}
	s.mu.Unlock()

	if race {
		other, err := s.Store.FindByID(ctx, u.ID)
		if err != nil {
			return err
		}
		if err := s.Store.Save(ctx, other); err != nil {
			return err
		}
	}
	return s.Store.Save(ctx, u)
}

// webhookOnlyProvider satisfies billing.Provider for a reconciler that is fed
// decoded events directly.
type webhookOnlyProvider struct {
	billing.Provider
}

func (webhookOnlyProvider) Name() string { return "test" }
