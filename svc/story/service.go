package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talewise/storyteller/pkg/file"
	"github.com/talewise/storyteller/pkg/logger"
	"github.com/talewise/storyteller/pkg/metrics"
	"github.com/talewise/storyteller/pkg/validator"
	"github.com/talewise/storyteller/svc/quota"
	"github.com/talewise/storyteller/svc/user"
)

const maxCommitAttempts = 2

// Result is a generated story and the allowance left after it.
type Result struct {
	Story            *Story
	StoriesRemaining int
}

type Service struct {
	users     user.Store
	stories   Store
	generator TextGenerator
	archive   file.Storage
	metrics   *metrics.Metrics
	log       *slog.Logger
	now       func() time.Time
	locks     *keyedMutex
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithArchive copies every generated story into storage as JSON.
func WithArchive(storage file.Storage) Option {
	return func(s *Service) { s.archive = storage }
}

// NewService panics when a required dependency is nil.
func NewService(users user.Store, stories Store, generator TextGenerator, opts ...Option) *Service {
	if users == nil || stories == nil || generator == nil {
		panic("story: user store, story store and text generator are required")
	}
	s := &Service{
		users:     users,
		stories:   stories,
		generator: generator,
		log:       logger.Discard(),
		now:       time.Now,
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("story"))
	return s
}

// Generate produces a story for email. The quota is checked before the text
// provider is called and charged only after it succeeded; a refusal returns
// a *quota.ExceededError and a provider failure ErrUpstreamFailure.
func (s *Service) Generate(ctx context.Context, email string, p Params) (*Result, error) {
	p = p.Normalize()
	if err := validateRequest(email, p); err != nil {
		return nil, err
	}
	email, err := user.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(email)
	defer unlock()

	u, err := user.FindOrCreate(ctx, s.users, email, s.now())
	if err != nil {
		return nil, fmt.Errorf("find or create user: %w", err)
	}
	log := s.log.With(logger.UserID(u.ID))

	if d := quota.CanGenerate(*u, s.now()); !d.Allowed {
		s.deny(ctx, log, d)
		return nil, d.Err()
	}

	started := time.Now()
	text, err := s.generator.Generate(ctx, BuildPrompt(p), GenerateOptions{Temperature: Temperature(p.CreativityLevel)})
	if err != nil {
		log.ErrorContext(ctx, "text generation failed", logger.Error(err), logger.Duration(time.Since(started)))
		s.metrics.Generation("failed")
		return nil, errors.Join(ErrUpstreamFailure, err)
	}
	title, content := ExtractTitle(text, p.Topic, ParseLanguage(p.Language))

	u, err = s.commit(ctx, log, u.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	st := &Story{
		ID:         uuid.New(),
		UserID:     u.ID,
		Title:      title,
		Content:    content,
		Parameters: p,
		CreatedAt:  now,
	}
	if err := s.stories.Create(ctx, st); err != nil {
		// the generation is already charged; the caller still gets the text
		log.ErrorContext(ctx, "failed to persist story", logger.StoryID(st.ID), logger.Error(err))
	}
	s.archiveStory(ctx, log, st)

	s.metrics.Generation("success")
	log.InfoContext(ctx, "story generated",
		logger.StoryID(st.ID),
		logger.Duration(time.Since(started)),
		slog.Int("lifetime", u.StoriesGeneratedLifetime),
		slog.Int("this_month", u.StoriesGeneratedThisMonth))

	return &Result{Story: st, StoriesRemaining: quota.Remaining(*u, now)}, nil
}

// commit charges one generation with a conditional save. The quota is
// evaluated again on the fresh record, so a concurrent request that took
// the last slot turns this one into a refusal.
func (s *Service) commit(ctx context.Context, log *slog.Logger, id uuid.UUID) (*user.User, error) {
	for attempt := 1; ; attempt++ {
		u, err := s.users.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reload user: %w", err)
		}
		now := s.now()
		quota.ApplyRollover(u, now)
		if d := quota.CanGenerate(*u, now); !d.Allowed {
			s.deny(ctx, log, d)
			return nil, d.Err()
		}
		quota.RecordGeneration(u)
		u.UpdatedAt = now.UTC()

		err = s.users.Save(ctx, u)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, user.ErrConcurrencyConflict) {
			return nil, fmt.Errorf("save user: %w", err)
		}
		log.WarnContext(ctx, "usage commit lost a version race", logger.Attempt(attempt))
		if attempt >= maxCommitAttempts {
			s.metrics.Generation("failed")
			return nil, errors.Join(ErrUpstreamFailure, err)
		}
	}
}

func (s *Service) deny(ctx context.Context, log *slog.Logger, d quota.Decision) {
	s.metrics.QuotaDenied(string(d.Reason))
	s.metrics.Generation("denied")
	log.InfoContext(ctx, "story generation denied", slog.String("reason", string(d.Reason)))
}

// Get returns a stored story.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Story, error) {
	return s.stories.FindByID(ctx, id)
}

// RecordAudio consumes the audio allowance of a story owned by email.
func (s *Service) RecordAudio(ctx context.Context, id uuid.UUID, email string) (*Story, error) {
	email, err := user.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	owner, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		st, err := s.stories.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if st.UserID != owner.ID {
			return nil, ErrForbidden
		}
		if !st.CanGenerateAudio() {
			return nil, ErrAudioLimit
		}
		st.AudioGenerations++

		err = s.stories.Save(ctx, st)
		if err == nil {
			s.log.InfoContext(ctx, "story audio recorded", logger.StoryID(st.ID), logger.UserID(owner.ID))
			return st, nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) || attempt >= maxCommitAttempts {
			return nil, fmt.Errorf("save story: %w", err)
		}
	}
}

func validateRequest(email string, p Params) error {
	var errs validator.ValidationErrors
	if err := validator.Apply(
		validator.Required("email", email),
		validator.ValidEmail("email", email),
	); err != nil {
		errs = append(errs, validator.ExtractValidationErrors(err)...)
	}
	if err := validator.Struct(p); err != nil {
		ve := validator.ExtractValidationErrors(err)
		if ve == nil {
			return err
		}
		errs = append(errs, ve...)
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
