package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/talewise/storyteller/pkg/jwt"
	"github.com/talewise/storyteller/pkg/logger"
	"github.com/talewise/storyteller/pkg/validator"
	"github.com/talewise/storyteller/svc/user"
)

const DefaultBcryptCost = 10

type Service struct {
	users      user.Store
	tokens     *jwt.Service
	log        *slog.Logger
	now        func() time.Time
	bcryptCost int
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBcryptCost is meant for tests; production keeps DefaultBcryptCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

// NewService panics when users or tokens is nil.
func NewService(users user.Store, tokens *jwt.Service, opts ...Option) *Service {
	if users == nil {
		panic("auth: user store is required")
	}
	if tokens == nil {
		panic("auth: token service is required")
	}
	s := &Service{
		users:      users,
		tokens:     tokens,
		log:        logger.Discard(),
		now:        time.Now,
		bcryptCost: DefaultBcryptCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("auth"))
	return s
}

// Register creates a password account on the free tier.
func (s *Service) Register(ctx context.Context, email, password string) (*Session, error) {
	if err := credentialsPresent(email, password); err != nil {
		return nil, err
	}
	email, err := user.NormalizeEmail(email)
	if err != nil {
		return nil, invalidEmail()
	}

	_, err = s.users.FindByEmail(ctx, email)
	if err == nil {
		return nil, ErrEmailAlreadyExists
	}
	if !errors.Is(err, user.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := user.New(email, s.now())
	u.PasswordHash = string(hash)
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.log.InfoContext(ctx, "user registered", logger.UserID(u.ID))
	return s.issue(u)
}

// Login checks a password. Unknown emails, accounts without a password and
// wrong passwords all return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	if err := credentialsPresent(email, password); err != nil {
		return nil, err
	}
	email, err := user.NormalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.log.InfoContext(ctx, "login rejected", logger.UserID(u.ID))
		return nil, ErrInvalidCredentials
	}
	return s.issue(u)
}

// Refresh reissues a token for the account registered under email.
func (s *Service) Refresh(ctx context.Context, email string) (*Session, error) {
	if err := validator.Apply(validator.Required("email", email)); err != nil {
		return nil, err
	}
	email, err := user.NormalizeEmail(email)
	if err != nil {
		return nil, invalidEmail()
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

// Now is the clock the service judges premium status with.
func (s *Service) Now() time.Time { return s.now() }

func (s *Service) issue(u *user.User) (*Session, error) {
	token, exp, err := s.tokens.Issue(u.ID.String(), u.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

func credentialsPresent(email, password string) error {
	return validator.Apply(
		validator.Required("email", email),
		validator.Required("password", password),
	)
}

func invalidEmail() error {
	return validator.Apply(validator.ValidEmail("email", ""))
}
