// Package subscription drives the free/active/cancelled lifecycle of a user
// record. Checkout creation, the checkout success page, user cancellation
// and provider webhooks all go through one transition table, so every path
// yields the same record for the same provider facts.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talewise/storyteller/pkg/billing"
	"github.com/talewise/storyteller/pkg/logger"
	"github.com/talewise/storyteller/svc/user"
)

type Config struct {
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
}

type Service struct {
	provider   billing.Provider
	users      user.Store
	log        *slog.Logger
	now        func() time.Time
	successURL string
	cancelURL  string
}

type ServiceOption func(*Service)

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService panics when provider or users is nil.
func NewService(provider billing.Provider, users user.Store, cfg Config, opts ...ServiceOption) *Service {
	if provider == nil {
		panic("subscription: billing provider is required")
	}
	if users == nil {
		panic("subscription: user store is required")
	}
	base := strings.TrimRight(cfg.FrontendURL, "/")
	s := &Service{
		provider:   provider,
		users:      users,
		log:        logger.Discard(),
		now:        time.Now,
		successURL: base + "/success?session_id={CHECKOUT_SESSION_ID}",
		cancelURL:  base + "/subscribe",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("subscription"), logger.Provider(provider.Name()))
	return s
}

// CreateCheckout opens a hosted subscription checkout for email, creating a
// free-tier record first when the address is new. The user id travels as
// the correlation id of the completion event.
func (s *Service) CreateCheckout(ctx context.Context, email string) (*billing.CheckoutSession, error) {
	email, err := user.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	u, err := user.FindOrCreate(ctx, s.users, email, s.now())
	if err != nil {
		return nil, fmt.Errorf("find or create user: %w", err)
	}

	sess, err := s.provider.CreateCheckout(ctx, billing.CheckoutRequest{
		UserID:     u.ID.String(),
		Email:      u.Email,
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to create checkout", logger.UserID(u.ID), logger.Error(err))
		return nil, errors.Join(ErrUpstreamFailure, err)
	}
	s.log.InfoContext(ctx, "checkout created", logger.UserID(u.ID), slog.String("session_id", sess.ID))
	return sess, nil
}

// ConfirmCheckout activates the subscription of a paid checkout session.
// It is safe to call after, before or alongside the completion webhook. A
// session whose subscription the provider no longer reports as active or
// trialing returns ErrSubscriptionInactive and leaves the record untouched.
func (s *Service) ConfirmCheckout(ctx context.Context, sessionID string) (*user.User, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrMissingSession
	}
	sess, err := s.provider.RetrieveCheckout(ctx, sessionID)
	if err != nil {
		return nil, errors.Join(ErrUpstreamFailure, err)
	}
	if !sess.Paid {
		return nil, ErrPaymentIncomplete
	}
	if !sess.Entitled() {
		s.log.InfoContext(ctx, "checkout subscription no longer entitled",
			slog.String("session_id", sess.ID),
			slog.String("subscription_status", sess.SubscriptionStatus))
		return nil, ErrSubscriptionInactive
	}
	id, err := uuid.Parse(sess.CorrelationID)
	if err != nil {
		return nil, user.ErrNotFound
	}

	u, err := mutate(ctx, s.users,
		func(ctx context.Context) (*user.User, error) { return s.users.FindByID(ctx, id) },
		func(u *user.User) (bool, error) {
			return Transition(ctx, TriggerCheckoutCompleted, &Change{
				User:            u,
				CustomerRef:     sess.CustomerRef,
				SubscriptionRef: sess.SubscriptionRef,
				PeriodEnd:       sess.PeriodEnd,
				Now:             s.now(),
			})
		},
	)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "subscription activated from checkout", logger.UserID(u.ID), slog.String("session_id", sess.ID))
	return u, nil
}

// Cancel ends the user's subscription at the provider, then releases it locally.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.ExternalSubscriptionRef == "" || !Allowed(ctx, TriggerCancelRequested, &Change{User: u}) {
		return nil, ErrNoActiveSubscription
	}
	if err := s.provider.CancelSubscription(ctx, u.ExternalSubscriptionRef); err != nil {
		s.log.ErrorContext(ctx, "provider refused cancellation", logger.UserID(u.ID), logger.Error(err))
		return nil, errors.Join(ErrUpstreamFailure, err)
	}

	first := u
	u, err = mutate(ctx, s.users,
		func(ctx context.Context) (*user.User, error) {
			if first != nil {
				cur := first
				first = nil
				return cur, nil
			}
			return s.users.FindByID(ctx, userID)
		},
		func(u *user.User) (bool, error) {
			return Transition(ctx, TriggerCancelRequested, &Change{User: u, Now: s.now()})
		},
	)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "subscription cancelled", logger.UserID(u.ID))
	return u, nil
}
