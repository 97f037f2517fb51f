package user_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talewise/storyteller/svc/user"
)

var columns = []string{
	"id", "email", "password_hash", "google_id",
	"stories_generated_lifetime", "stories_generated_this_month", "last_monthly_reset",
	"subscription_status", "subscription_end_date", "external_customer_ref", "external_subscription_ref",
	"last_billing_event_at", "version", "created_at", "updated_at",
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

// anyArgs matches n bind parameters of any value.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresStore_FindBySubscriptionRef(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	s := user.NewPostgresStore(mock)

	id := uuid.New()
	end := now.AddDate(0, 1, 0)
	google := "g-7"
	mock.ExpectQuery(`SELECT .+ FROM users WHERE external_subscription_ref = \$1`).
		WithArgs("sub_9").
		WillReturnRows(pgxmock.NewRows(columns).AddRow(
			id, "p@example.com", "", &google,
			12, 4, now,
			"active", &end, "cus_9", "sub_9",
			(*time.Time)(nil), int64(3), now, now,
		))

	u, err := s.FindBySubscriptionRef(context.Background(), "sub_9")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "g-7", u.GoogleID)
	assert.Equal(t, user.StatusActive, u.SubscriptionStatus)
	assert.Equal(t, 4, u.StoriesGeneratedThisMonth)
	require.NotNil(t, u.SubscriptionEndDate)
	assert.True(t, end.Equal(*u.SubscriptionEndDate))
	assert.Nil(t, u.LastBillingEventAt)
	assert.Equal(t, int64(3), u.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByEmail_NotFound(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	s := user.NewPostgresStore(mock)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("none@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.FindByEmail(context.Background(), "none@example.com")
	assert.ErrorIs(t, err, user.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Create(t *testing.T) {
	t.Parallel()

	t.Run("inserts with version one", func(t *testing.T) {
		mock := newMock(t)
		s := user.NewPostgresStore(mock)
		u := user.New("c@example.com", now)

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(u.ID, u.Email, "", pgxmock.AnyArg(), 0, 0, now,
				"free", pgxmock.AnyArg(), "", "", pgxmock.AnyArg(), now, now).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.Create(context.Background(), u))
		assert.Equal(t, int64(1), u.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		mock := newMock(t)
		s := user.NewPostgresStore(mock)

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(anyArgs(14)...).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		assert.ErrorIs(t, s.Create(context.Background(), user.New("c@example.com", now)), user.ErrEmailTaken)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_Save(t *testing.T) {
	t.Parallel()

	t.Run("bumps version on success", func(t *testing.T) {
		mock := newMock(t)
		s := user.NewPostgresStore(mock)
		u := user.New("s@example.com", now)
		u.Version = 4

		mock.ExpectExec(`UPDATE users SET .+ WHERE id = \$1 AND version = \$2`).
			WithArgs(u.ID, int64(4), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, s.Save(context.Background(), u))
		assert.Equal(t, int64(5), u.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version is a conflict", func(t *testing.T) {
		mock := newMock(t)
		s := user.NewPostgresStore(mock)
		u := user.New("s@example.com", now)
		u.Version = 2

		mock.ExpectExec(`UPDATE users SET`).WithArgs(anyArgs(13)...).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs(u.ID).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		assert.ErrorIs(t, s.Save(context.Background(), u), user.ErrConcurrencyConflict)
		assert.Equal(t, int64(2), u.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		mock := newMock(t)
		s := user.NewPostgresStore(mock)
		u := user.New("s@example.com", now)

		mock.ExpectExec(`UPDATE users SET`).WithArgs(anyArgs(13)...).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs(u.ID).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		assert.ErrorIs(t, s.Save(context.Background(), u), user.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver error is wrapped", func(t *testing.T) {
		mock := newMock(t)
		s := user.NewPostgresStore(mock)
		boom := errors.New("connection reset")

		mock.ExpectExec(`UPDATE users SET`).WithArgs(anyArgs(13)...).WillReturnError(boom)

		err := s.Save(context.Background(), user.New("s@example.com", now))
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
