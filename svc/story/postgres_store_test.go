package story_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talewise/storyteller/svc/story"
)

var storyColumns = []string{"id", "user_id", "title", "content", "parameters", "audio_generations", "version", "created_at"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestPostgresStore_Create(t *testing.T) {
	t.Parallel()
	mock := newMock(t)
	s := story.NewPostgresStore(mock)
	st := &story.Story{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		Title:      "T",
		Content:    "C",
		Parameters: story.Params{Topic: "dragons", Language: "en"},
		CreatedAt:  t0,
	}

	mock.ExpectExec(`INSERT INTO stories`).
		WithArgs(st.ID, st.UserID, "T", "C", pgxmock.AnyArg(), 0, t0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Create(context.Background(), st))
	assert.Equal(t, int64(1), st.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByID(t *testing.T) {
	t.Parallel()

	t.Run("decodes parameters", func(t *testing.T) {
		mock := newMock(t)
		s := story.NewPostgresStore(mock)
		id, owner := uuid.New(), uuid.New()

		mock.ExpectQuery(`SELECT .+ FROM stories WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows(storyColumns).AddRow(
				id, owner, "T", "C", []byte(`{"topic":"dragons","language":"en","ageGroup":"3-6"}`), 1, int64(2), t0,
			))

		st, err := s.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, owner, st.UserID)
		assert.Equal(t, "dragons", st.Parameters.Topic)
		assert.Equal(t, "3-6", st.Parameters.AgeGroup)
		assert.Equal(t, 1, st.AudioGenerations)
		assert.Equal(t, int64(2), st.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMock(t)
		s := story.NewPostgresStore(mock)
		id := uuid.New()
		mock.ExpectQuery(`SELECT .+ FROM stories`).WithArgs(id).WillReturnError(pgx.ErrNoRows)

		_, err := s.FindByID(context.Background(), id)
		assert.ErrorIs(t, err, story.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_Save(t *testing.T) {
	t.Parallel()

	t.Run("bumps version", func(t *testing.T) {
		mock := newMock(t)
		s := story.NewPostgresStore(mock)
		st := &story.Story{ID: uuid.New(), AudioGenerations: 1, Version: 3}

		mock.ExpectExec(`UPDATE stories SET audio_generations = \$3, version = version \+ 1`).
			WithArgs(st.ID, int64(3), 1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, s.Save(context.Background(), st))
		assert.Equal(t, int64(4), st.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version", func(t *testing.T) {
		mock := newMock(t)
		s := story.NewPostgresStore(mock)
		st := &story.Story{ID: uuid.New(), AudioGenerations: 1, Version: 3}

		mock.ExpectExec(`UPDATE stories`).WithArgs(st.ID, int64(3), 1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs(st.ID).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		assert.ErrorIs(t, s.Save(context.Background(), st), story.ErrConcurrencyConflict)
		assert.Equal(t, int64(3), st.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		mock := newMock(t)
		s := story.NewPostgresStore(mock)
		st := &story.Story{ID: uuid.New(), Version: 1}

		mock.ExpectExec(`UPDATE stories`).WithArgs(st.ID, int64(1), 0).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs(st.ID).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		assert.ErrorIs(t, s.Save(context.Background(), st), story.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
