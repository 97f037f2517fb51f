package jwt

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultLeeway = 30 * time.Second

type Config struct {
	Secret    string        `env:"JWT_SECRET,required"`
	ExpiresIn time.Duration `env:"JWT_EXPIRES_IN" envDefault:"24h"`
	Issuer    string        `env:"JWT_ISSUER" envDefault:"storyteller"`
}

// Claims are the registered claims plus the account email.
type Claims struct {
	gojwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

type Service struct {
	key    []byte
	ttl    time.Duration
	issuer string
	parser *gojwt.Parser
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces the issuing and validation clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(cfg Config, opts ...Option) (*Service, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSigningKey
	}
	if cfg.ExpiresIn <= 0 {
		cfg.ExpiresIn = 24 * time.Hour
	}
	s := &Service{
		key:    []byte(cfg.Secret),
		ttl:    cfg.ExpiresIn,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	parserOpts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Name}),
		gojwt.WithLeeway(defaultLeeway),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(func() time.Time { return s.now() }),
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, gojwt.WithIssuer(cfg.Issuer))
	}
	s.parser = gojwt.NewParser(parserOpts...)
	return s, nil
}

// Issue signs an access token for subject. It returns the token and its expiry.
func (s *Service) Issue(subject, email string) (string, time.Time, error) {
	return s.IssueFor(subject, email, s.ttl)
}

// IssueFor signs a token with a custom lifetime.
func (s *Service) IssueFor(subject, email string, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, ErrMissingSubject
	}
	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(exp),
		},
		Email: email,
	}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign token: %w", err)
	}
	return token, exp, nil
}

// Parse verifies token and returns its claims. Expired tokens return
// ErrExpiredToken, anything else that fails verification ErrInvalidToken.
func (s *Service) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	var claims Claims
	_, err := s.parser.ParseWithClaims(token, &claims, func(*gojwt.Token) (any, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, gojwt.ErrTokenExpired):
		return nil, errors.Join(ErrExpiredToken, err)
	case err != nil:
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return &claims, nil
}
