// Package auth serves /api/auth: email and password accounts, token
// refresh and Google sign-in.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/talewise/storyteller/handler"
	"github.com/talewise/storyteller/pkg/binder"
	"github.com/talewise/storyteller/pkg/i18n"
	"github.com/talewise/storyteller/pkg/logger"
	"github.com/talewise/storyteller/pkg/validator"
	authsvc "github.com/talewise/storyteller/svc/auth"
	"github.com/talewise/storyteller/svc/user"
)

type Sessions interface {
	Register(ctx context.Context, email, password string) (*authsvc.Session, error)
	Login(ctx context.Context, email, password string) (*authsvc.Session, error)
	Refresh(ctx context.Context, email string) (*authsvc.Session, error)
	Now() time.Time
}

type OAuth interface {
	AuthURL(ctx context.Context) (string, error)
	Callback(ctx context.Context, code, state string) (*authsvc.Session, error)
}

type Config struct {
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
}

type Module struct {
	sessions    Sessions
	google      OAuth
	requireUser func(http.Handler) http.Handler
	tr          *i18n.Translator
	eh          handler.ErrorHandler[handler.Context]
	frontend    string
	log         *slog.Logger
}

type Option func(*Module)

func WithLogger(l *slog.Logger) Option {
	return func(m *Module) {
		if l != nil {
			m.log = l
		}
	}
}

// WithGoogle enables /google and /google/callback.
func WithGoogle(o OAuth) Option {
	return func(m *Module) { m.google = o }
}

// New panics when requireUser is nil; /me and /logout need it.
func New(
	sessions Sessions,
	requireUser func(http.Handler) http.Handler,
	tr *i18n.Translator,
	eh handler.ErrorHandler[handler.Context],
	cfg Config,
	opts ...Option,
) *Module {
	if requireUser == nil {
		panic("auth: requireUser middleware is required")
	}
	m := &Module{
		sessions:    sessions,
		requireUser: requireUser,
		tr:          tr,
		eh:          eh,
		frontend:    strings.TrimRight(cfg.FrontendURL, "/"),
		log:         logger.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.Component("auth_routes"))
	return m
}

func (m *Module) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/register", handler.Handle(m.register, m.eh, binder.JSON(binder.WithUnknownFields())))
	r.Post("/login", handler.Handle(m.login, m.eh, binder.JSON(binder.WithUnknownFields())))
	refresh := handler.Handle(m.refresh, m.eh, binder.JSON(binder.WithUnknownFields()))
	r.Post("/refresh-token", refresh)
	r.Post("/refresh", refresh)

	r.Group(func(r chi.Router) {
		r.Use(m.requireUser)
		me := handler.Handle(m.me, m.eh)
		r.Get("/me", me)
		r.Get("/current-user", me)
		r.Post("/logout", handler.Handle(m.logout, m.eh))
	})

	if m.google != nil {
		r.Get("/google", handler.Handle(m.googleRedirect, m.eh))
		r.Get("/google/callback", handler.Handle(m.googleCallback, m.eh, binder.Query()))
	}
	return r
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string           `json:"token"`
	User  authsvc.UserView `json:"user"`
}

func (m *Module) session(s *authsvc.Session) sessionResponse {
	return sessionResponse{Token: s.Token, User: authsvc.NewUserView(s.User, m.sessions.Now())}
}

func (m *Module) register(ctx handler.Context, req credentials) handler.Response {
	s, err := m.sessions.Register(ctx, req.Email, req.Password)
	if err != nil {
		return handler.Error(authError(err))
	}
	return handler.JSON(m.session(s), handler.WithJSONStatus(http.StatusCreated))
}

func (m *Module) login(ctx handler.Context, req credentials) handler.Response {
	s, err := m.sessions.Login(ctx, req.Email, req.Password)
	if err != nil {
		return handler.Error(authError(err))
	}
	return handler.JSON(m.session(s))
}

type refreshRequest struct {
	Email string `json:"email"`
}

func (m *Module) refresh(ctx handler.Context, req refreshRequest) handler.Response {
	s, err := m.sessions.Refresh(ctx, req.Email)
	if err != nil {
		return handler.Error(authError(err))
	}
	return handler.JSON(m.session(s))
}

func (m *Module) me(ctx handler.Context, _ struct{}) handler.Response {
	u := authsvc.GetUserFromContext(ctx)
	if u == nil {
		return handler.Error(handler.ErrUnauthorized)
	}
	return handler.JSON(authsvc.NewUserView(u, m.sessions.Now()))
}

// logout has nothing to revoke: tokens are stateless and expire on their own.
func (m *Module) logout(ctx handler.Context, _ struct{}) handler.Response {
	return handler.JSON(map[string]any{"success": true, "message": m.tr.Tc(ctx, "auth.logged_out")})
}

func (m *Module) googleRedirect(ctx handler.Context, _ struct{}) handler.Response {
	u, err := m.google.AuthURL(ctx)
	if err != nil {
		return handler.Error(errors.Join(err, handler.ErrInternal))
	}
	return handler.Redirect(u)
}

type callbackRequest struct {
	Code  string `query:"code"`
	State string `query:"state"`
	Error string `query:"error"`
}

// googleCallback always ends on the frontend: with the token on success,
// on the login page with error=auth_failed otherwise.
func (m *Module) googleCallback(ctx handler.Context, req callbackRequest) handler.Response {
	if req.Error != "" {
		m.log.InfoContext(ctx, "google sign-in cancelled", slog.String("reason", req.Error))
		return handler.Redirect(m.frontend + "/login?error=auth_failed")
	}
	s, err := m.google.Callback(ctx, req.Code, req.State)
	if err != nil {
		m.log.WarnContext(ctx, "google sign-in failed", logger.Error(err))
		return handler.Redirect(m.frontend + "/login?error=auth_failed")
	}
	return handler.Redirect(m.frontend + "/auth/google/callback?token=" + url.QueryEscape(s.Token))
}

func authError(err error) error {
	var e handler.HTTPError
	switch {
	case validator.IsValidationError(err):
		return err
	case errors.Is(err, authsvc.ErrInvalidCredentials):
		e = handler.NewHTTPError(http.StatusUnauthorized, "auth.invalid_credentials")
	case errors.Is(err, authsvc.ErrEmailAlreadyExists):
		e = handler.NewHTTPError(http.StatusBadRequest, "auth.email_taken")
	case errors.Is(err, user.ErrNotFound):
		e = handler.NewHTTPError(http.StatusNotFound, "auth.user_not_found")
	case errors.Is(err, user.ErrInvalidEmail):
		e = handler.NewHTTPError(http.StatusBadRequest, "validation.email", "field", "email")
	default:
		e = handler.ErrInternal
	}
	return errors.Join(err, e)
}
