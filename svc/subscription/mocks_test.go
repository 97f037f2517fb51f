package subscription_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/talewise/storyteller/pkg/billing"
	"github.com/talewise/storyteller/svc/user"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) SignatureHeader() string { return "X-Mock-Signature" }

func (m *mockProvider) CreateCheckout(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, req)
	sess, _ := args.Get(0).(*billing.CheckoutSession)
	return sess, args.Error(1)
}

func (m *mockProvider) RetrieveCheckout(ctx context.Context, sessionID string) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	sess, _ := args.Get(0).(*billing.CheckoutSession)
	return sess, args.Error(1)
}

func (m *mockProvider) CancelSubscription(ctx context.Context, ref string) error {
	return m.Called(ctx, ref).Error(0)
}

func (m *mockProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (billing.Event, error) {
	args := m.Called(ctx, payload, signature)
	ev, _ := args.Get(0).(billing.Event)
	return ev, args.Error(1)
}

// racingStore makes the next n saves lose a version race.
type racingStore struct {
	user.Store
	mu    sync.Mutex
	races int
	saves int
}

func (s *racingStore) Save(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	s.saves++
	race := s.races > 0
	if race {
		s.races--
	}
	s.mu.Unlock()

	if race {
		// a concurrent writer bumps the stored version first
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

// forgetfulDedup never remembers, so redelivery reaches the transitions.
type forgetfulDedup struct{}

func (forgetfulDedup) Seen(context.Context, string) (bool, error) { return false, nil }
func (forgetfulDedup) Mark(context.Context, string) error         { return nil }
