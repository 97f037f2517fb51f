// Package user owns the per-user usage and subscription record and its
// persistence. Every store saves with compare-and-swap on Version.
package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusFree      Status = "free"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusFree, StatusActive, StatusCancelled:
		return true
	}
	return false
}

var (
	ErrNotFound            = errors.New("user not found")
	ErrEmailTaken          = errors.New("user email already registered")
	ErrConcurrencyConflict = errors.New("user record was modified concurrently")
	ErrInvalidEmail        = errors.New("invalid email")
)

type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	GoogleID     string

	StoriesGeneratedLifetime  int
	StoriesGeneratedThisMonth int
	LastMonthlyReset          time.Time

	SubscriptionStatus      Status
	SubscriptionEndDate     *time.Time
	ExternalCustomerRef     string
	ExternalSubscriptionRef string
	LastBillingEventAt      *time.Time

	// Version is the compare-and-swap token. Stores bump it on every save.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New returns a free-tier record for email. The email must already be normalized.
func New(email string, now time.Time) *User {
	now = now.UTC()
	return &User{
		ID:                 uuid.New(),
		Email:              email,
		LastMonthlyReset:   now,
		SubscriptionStatus: StatusFree,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// NormalizeEmail trims and lower-cases an address, rejecting obviously invalid input.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.IndexByte(email, '@')
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Lapsed reports an active subscription whose end date has passed.
func (u *User) Lapsed(now time.Time) bool {
	return u.SubscriptionStatus == StatusActive &&
		u.SubscriptionEndDate != nil && u.SubscriptionEndDate.Before(now)
}

// Premium reports an active, non-lapsed subscription.
func (u *User) Premium(now time.Time) bool {
	return u.SubscriptionStatus == StatusActive && !u.Lapsed(now)
}

func (u *User) Clone() *User {
	c := *u
	if u.SubscriptionEndDate != nil {
		t := *u.SubscriptionEndDate
		c.SubscriptionEndDate = &t
	}
	if u.LastBillingEventAt != nil {
		t := *u.LastBillingEventAt
		c.LastBillingEventAt = &t
	}
	return &c
}

type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByGoogleID(ctx context.Context, googleID string) (*User, error)
	FindBySubscriptionRef(ctx context.Context, ref string) (*User, error)
	FindByCustomerRef(ctx context.Context, ref string) (*User, error)
	// Create inserts u and sets u.Version to 1.
	Create(ctx context.Context, u *User) error
	// Save persists u only if the stored version equals u.Version. On
	// success u.Version is incremented; otherwise ErrConcurrencyConflict.
	Save(ctx context.Context, u *User) error
}

// FindOrCreate returns the record for email, creating a free-tier one when none exists.
// A concurrent creation of the same email resolves to the winner's record.
func FindOrCreate(ctx context.Context, s Store, email string, now time.Time) (*User, error) {
	u, err := s.FindByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	u = New(email, now)
	if err := s.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return s.FindByEmail(ctx, email)
		}
		return nil, err
	}
	return u, nil
}
