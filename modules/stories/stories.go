// Package stories serves /api/stories: generation under the usage quota,
// retrieval and the per-story audio allowance.
package stories

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/talewise/storyteller/handler"
	"github.com/talewise/storyteller/pkg/binder"
	"github.com/talewise/storyteller/pkg/clientip"
	"github.com/talewise/storyteller/pkg/i18n"
	"github.com/talewise/storyteller/pkg/ratelimiter"
	"github.com/talewise/storyteller/pkg/validator"
	"github.com/talewise/storyteller/svc/quota"
	"github.com/talewise/storyteller/svc/story"
	"github.com/talewise/storyteller/svc/user"
)

// Service is the part of story.Service the routes use.
type Service interface {
	Generate(ctx context.Context, email string, p story.Params) (*story.Result, error)
	Get(ctx context.Context, id uuid.UUID) (*story.Story, error)
	RecordAudio(ctx context.Context, id uuid.UUID, email string) (*story.Story, error)
}

type Module struct {
	stories Service
	tr      *i18n.Translator
	eh      handler.ErrorHandler[handler.Context]
	limiter *ratelimiter.Limiter
}

type Option func(*Module)

// WithRateLimiter throttles every story route per client IP.
func WithRateLimiter(l *ratelimiter.Limiter) Option {
	return func(m *Module) { m.limiter = l }
}

func New(stories Service, tr *i18n.Translator, eh handler.ErrorHandler[handler.Context], opts ...Option) *Module {
	m := &Module{stories: stories, tr: tr, eh: eh}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) Handle() http.Handler {
	r := chi.NewRouter()
	if m.limiter != nil {
		r.Use(ratelimiter.Middleware(m.limiter, clientKey, m.tooManyRequests))
	}
	r.Post("/generate", handler.Handle(m.generate, m.eh, binder.JSON(binder.WithUnknownFields())))
	r.Get("/{id}", handler.Handle(m.get, m.eh, binder.Path(chi.URLParam)))
	r.Post("/{id}/audio", handler.Handle(m.audio, m.eh, binder.Path(chi.URLParam), binder.JSON(binder.WithEmptyBody(), binder.WithUnknownFields())))
	return r
}

func clientKey(r *http.Request) string {
	if ip := clientip.FromContext(r.Context()); ip != "" {
		return ip
	}
	return clientip.FromRequest(r)
}

func (m *Module) tooManyRequests(w http.ResponseWriter, r *http.Request) {
	m.eh(handler.NewContext(w, r), handler.ErrTooManyRequests)
}

type generateRequest struct {
	Email string `json:"email"`
	story.Params
}

type storyResponse struct {
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	Content          string       `json:"content"`
	Parameters       story.Params `json:"parameters"`
	Timestamp        time.Time    `json:"timestamp"`
	StoriesRemaining *int         `json:"storiesRemaining,omitempty"`
	AudioGenerations *int         `json:"audioGenerations,omitempty"`
}

func newStoryResponse(st *story.Story) storyResponse {
	return storyResponse{
		ID:         st.ID.String(),
		Title:      st.Title,
		Content:    st.Content,
		Parameters: st.Parameters,
		Timestamp:  st.CreatedAt.UTC(),
	}
}

func (m *Module) generate(ctx handler.Context, req generateRequest) handler.Response {
	lang := string(story.ParseLanguage(req.Language))
	res, err := m.stories.Generate(ctx, req.Email, req.Params)
	if err != nil {
		return handler.Error(storyError(err, lang, "story.errors.generation_failed"))
	}
	body := newStoryResponse(res.Story)
	body.StoriesRemaining = &res.StoriesRemaining
	return handler.JSON(body)
}

type storyRequest struct {
	ID string `path:"id"`
}

func (m *Module) get(ctx handler.Context, req storyRequest) handler.Response {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return handler.Error(storyError(story.ErrNotFound, "", ""))
	}
	st, err := m.stories.Get(ctx, id)
	if err != nil {
		return handler.Error(storyError(err, "", "errors.internal"))
	}
	body := newStoryResponse(st)
	body.AudioGenerations = &st.AudioGenerations
	return handler.JSON(body)
}

type audioRequest struct {
	ID    string `path:"id" json:"-"`
	Email string `json:"email"`
}

type audioResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	AudioGenerations int    `json:"audioGenerations"`
}

func (m *Module) audio(ctx handler.Context, req audioRequest) handler.Response {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return handler.Error(storyError(story.ErrNotFound, "", ""))
	}
	if req.Email == "" {
		return handler.Error(handler.NewHTTPError(http.StatusBadRequest, "validation.required", "field", "email"))
	}
	st, err := m.stories.RecordAudio(ctx, id, req.Email)
	if err != nil {
		return handler.Error(storyError(err, "", "errors.internal"))
	}
	return handler.JSON(audioResponse{
		Success:          true,
		Message:          m.tr.Tc(ctx, "story.audio_registered"),
		AudioGenerations: st.AudioGenerations,
	})
}

// storyError maps story and quota failures to responses. lang, when set,
// is the language the story was requested in; fallback is the message key
// of unexpected failures.
func storyError(err error, lang, fallback string) error {
	if ex, ok := quota.AsExceeded(err); ok {
		key, args := "story.errors.monthly_limit", []string{"limit", strconv.Itoa(ex.Limit)}
		if ex.Reason == quota.ReasonFreeTierExhausted {
			key, args = "story.errors.free_limit", nil
		}
		return handler.NewHTTPError(http.StatusForbidden, key, args...).
			With("subscriptionRequired", ex.SubscriptionRequired()).
			With("storiesRemaining", 0).
			In(lang)
	}

	var e handler.HTTPError
	switch {
	case validator.IsValidationError(err):
		return err
	case errors.Is(err, user.ErrInvalidEmail):
		return handler.NewHTTPError(http.StatusBadRequest, "validation.email", "field", "email").In(lang)
	case errors.Is(err, story.ErrNotFound):
		e = handler.NewHTTPError(http.StatusNotFound, "story.errors.not_found")
	case errors.Is(err, user.ErrNotFound):
		e = handler.NewHTTPError(http.StatusNotFound, "auth.user_not_found")
	case errors.Is(err, story.ErrForbidden):
		e = handler.NewHTTPError(http.StatusForbidden, "story.errors.forbidden")
	case errors.Is(err, story.ErrAudioLimit):
		e = handler.NewHTTPError(http.StatusForbidden, "story.errors.audio_limit")
	default:
		e = handler.NewHTTPError(http.StatusInternalServerError, fallback)
	}
	return errors.Join(err, e.In(lang))
}
