package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/talewise/storyteller/pkg/jwt"
	"github.com/talewise/storyteller/pkg/logger"
	"github.com/talewise/storyteller/svc/user"
)

const (
	stateSubject        = "oauth_state"
	maxLinkSaveAttempts = 2
)

// OAuth runs the redirect flow of one provider. States are JWTs signed by a
// dedicated token service and are accepted once.
type OAuth struct {
	adapter      ProviderAdapter
	states       *jwt.Service
	stateTTL     time.Duration
	consumed     *cache.Cache
	sessions     *Service
	verifiedOnly bool
	log          *slog.Logger
}

type OAuthOption func(*OAuth)

func WithOAuthLogger(l *slog.Logger) OAuthOption {
	return func(o *OAuth) {
		if l != nil {
			o.log = l
		}
	}
}

func WithStateTTL(ttl time.Duration) OAuthOption {
	return func(o *OAuth) {
		if ttl > 0 {
			o.stateTTL = ttl
		}
	}
}

func WithVerifiedOnly(v bool) OAuthOption {
	return func(o *OAuth) { o.verifiedOnly = v }
}

// NewOAuth wires adapter to sessions. states must not share an issuer with
// the access token service, so a state can never pass as an access token.
func NewOAuth(adapter ProviderAdapter, states *jwt.Service, sessions *Service, opts ...OAuthOption) *OAuth {
	if adapter == nil || states == nil || sessions == nil {
		panic("auth: oauth adapter, state signer and session service are required")
	}
	o := &OAuth{
		adapter:      adapter,
		states:       states,
		stateTTL:     10 * time.Minute,
		sessions:     sessions,
		verifiedOnly: true,
		log:          logger.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.consumed = cache.New(o.stateTTL+time.Minute, o.stateTTL)
	o.log = o.log.With(logger.Component("oauth"), logger.Provider(adapter.ProviderID()))
	return o
}

func (o *OAuth) AuthURL(_ context.Context) (string, error) {
	state, _, err := o.states.IssueFor(stateSubject, "", o.stateTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	url, err := o.adapter.AuthURL(state)
	if err != nil {
		return "", fmt.Errorf("failed to build auth url: %w", err)
	}
	return url, nil
}

// Callback validates state, resolves the provider profile and signs the
// matching account in. An account is matched by provider id first, then by
// email, and created on the free tier when neither exists.
func (o *OAuth) Callback(ctx context.Context, code, state string) (*Session, error) {
	if err := o.consumeState(state); err != nil {
		return nil, err
	}
	if code == "" {
		return nil, ErrInvalidCode
	}

	profile, err := o.adapter.ResolveProfile(ctx, code)
	if err != nil {
		return nil, err
	}
	if o.verifiedOnly && !profile.EmailVerified {
		return nil, ErrUnverifiedEmail
	}
	email, err := user.NormalizeEmail(profile.Email)
	if err != nil {
		return nil, ErrNoPrimaryEmail
	}

	u, err := o.link(ctx, profile.ProviderUserID, email)
	if err != nil {
		return nil, err
	}
	o.log.InfoContext(ctx, "oauth sign-in", logger.UserID(u.ID))
	return o.sessions.issue(u)
}

func (o *OAuth) consumeState(state string) error {
	claims, err := o.states.Parse(state)
	if err != nil || claims.Subject != stateSubject || claims.ID == "" {
		return ErrInvalidState
	}
	if err := o.consumed.Add(claims.ID, struct{}{}, cache.DefaultExpiration); err != nil {
		return ErrInvalidState
	}
	return nil
}

func (o *OAuth) link(ctx context.Context, googleID, email string) (*user.User, error) {
	users := o.sessions.users
	if googleID != "" {
		u, err := users.FindByGoogleID(ctx, googleID)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, user.ErrNotFound) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
	}

	for attempt := 1; ; attempt++ {
		u, err := users.FindByEmail(ctx, email)
		if errors.Is(err, user.ErrNotFound) {
			u = user.New(email, o.sessions.now())
			u.GoogleID = googleID
			err = users.Create(ctx, u)
			if err == nil {
				return u, nil
			}
			if errors.Is(err, user.ErrEmailTaken) && attempt < maxLinkSaveAttempts {
				continue
			}
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}

		switch {
		case u.GoogleID == googleID:
			return u, nil
		case u.GoogleID != "":
			return nil, ErrProviderLinked
		}
		u.GoogleID = googleID
		u.UpdatedAt = o.sessions.now().UTC()
		err = users.Save(ctx, u)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, user.ErrConcurrencyConflict) || attempt >= maxLinkSaveAttempts {
			return nil, fmt.Errorf("failed to link provider: %w", err)
		}
	}
}
