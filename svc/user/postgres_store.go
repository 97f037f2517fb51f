package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/talewise/storyteller/pkg/pg"
)

const userColumns = `id, email, password_hash, google_id,
	stories_generated_lifetime, stories_generated_this_month, last_monthly_reset,
	subscription_status, subscription_end_date, external_customer_ref, external_subscription_ref,
	last_billing_event_at, version, created_at, updated_at`

type postgresStore struct {
	db pg.DB
}

func NewPostgresStore(db pg.DB) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.findOne(ctx, "id = $1", id)
}

func (s *postgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, "email = $1", email)
}

func (s *postgresStore) FindByGoogleID(ctx context.Context, googleID string) (*User, error) {
	if googleID == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, "google_id = $1", googleID)
}

func (s *postgresStore) FindBySubscriptionRef(ctx context.Context, ref string) (*User, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, "external_subscription_ref = $1", ref)
}

func (s *postgresStore) FindByCustomerRef(ctx context.Context, ref string) (*User, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, "external_customer_ref = $1", ref)
}

func (s *postgresStore) findOne(ctx context.Context, where string, arg any) (*User, error) {
	row := s.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", arg)
	u, err := scanUser(row)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

func (s *postgresStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $14)`,
		u.ID, u.Email, u.PasswordHash, nullString(u.GoogleID),
		u.StoriesGeneratedLifetime, u.StoriesGeneratedThisMonth, u.LastMonthlyReset,
		string(u.SubscriptionStatus), u.SubscriptionEndDate, u.ExternalCustomerRef, u.ExternalSubscriptionRef,
		u.LastBillingEventAt, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKey(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	u.Version = 1
	return nil
}

func (s *postgresStore) Save(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `UPDATE users SET
		password_hash = $3, google_id = $4,
		stories_generated_lifetime = $5, stories_generated_this_month = $6, last_monthly_reset = $7,
		subscription_status = $8, subscription_end_date = $9,
		external_customer_ref = $10, external_subscription_ref = $11,
		last_billing_event_at = $12, updated_at = $13, version = version + 1
		WHERE id = $1 AND version = $2`,
		u.ID, u.Version, u.PasswordHash, nullString(u.GoogleID),
		u.StoriesGeneratedLifetime, u.StoriesGeneratedThisMonth, u.LastMonthlyReset,
		string(u.SubscriptionStatus), u.SubscriptionEndDate,
		u.ExternalCustomerRef, u.ExternalSubscriptionRef,
		u.LastBillingEventAt, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// distinguish a stale version from a missing row
		var exists bool
		if err := s.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)", u.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check user: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConcurrencyConflict
	}
	u.Version++
	u.UpdatedAt = now
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u        User
		googleID *string
		status   string
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &googleID,
		&u.StoriesGeneratedLifetime, &u.StoriesGeneratedThisMonth, &u.LastMonthlyReset,
		&status, &u.SubscriptionEndDate, &u.ExternalCustomerRef, &u.ExternalSubscriptionRef,
		&u.LastBillingEventAt, &u.Version, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if googleID != nil {
		u.GoogleID = *googleID
	}
	u.SubscriptionStatus = Status(status)
	if !u.SubscriptionStatus.Valid() {
		return nil, errors.New("unknown subscription status " + status)
	}
	return &u, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
