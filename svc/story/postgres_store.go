package story

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/talewise/storyteller/pkg/pg"
)

const storyColumns = `id, user_id, title, content, parameters, audio_generations, version, created_at`

type postgresStore struct {
	db pg.DB
}

func NewPostgresStore(db pg.DB) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) Create(ctx context.Context, st *Story) error {
	params, err := json.Marshal(st.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode story parameters: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO stories (`+storyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7)`,
		st.ID, st.UserID, st.Title, st.Content, params, st.AudioGenerations, st.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert story: %w", err)
	}
	st.Version = 1
	return nil
}

func (s *postgresStore) FindByID(ctx context.Context, id uuid.UUID) (*Story, error) {
	var (
		st     Story
		params []byte
	)
	err := s.db.QueryRow(ctx, "SELECT "+storyColumns+" FROM stories WHERE id = $1", id).Scan(
		&st.ID, &st.UserID, &st.Title, &st.Content, &params, &st.AudioGenerations, &st.Version, &st.CreatedAt,
	)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query story: %w", err)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &st.Parameters); err != nil {
			return nil, fmt.Errorf("failed to decode story parameters: %w", err)
		}
	}
	return &st, nil
}

// Save only writes the mutable counters; title and content never change.
func (s *postgresStore) Save(ctx context.Context, st *Story) error {
	tag, err := s.db.Exec(ctx, `UPDATE stories SET audio_generations = $3, version = version + 1
		WHERE id = $1 AND version = $2`,
		st.ID, st.Version, st.AudioGenerations,
	)
	if err != nil {
		return fmt.Errorf("failed to update story: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM stories WHERE id = $1)", st.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check story: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConcurrencyConflict
	}
	st.Version++
	return nil
}
