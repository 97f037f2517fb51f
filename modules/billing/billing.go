// Package billing serves the payment routes: hosted checkout under
// /api/stripe, provider webhooks and subscription cancellation.
package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/talewise/storyteller/handler"
	"github.com/talewise/storyteller/pkg/binder"
	pkgbilling "github.com/talewise/storyteller/pkg/billing"
	"github.com/talewise/storyteller/pkg/i18n"
	"github.com/talewise/storyteller/pkg/logger"
	"github.com/talewise/storyteller/pkg/validator"
	authsvc "github.com/talewise/storyteller/svc/auth"
	"github.com/talewise/storyteller/svc/quota"
	"github.com/talewise/storyteller/svc/subscription"
	"github.com/talewise/storyteller/svc/user"
)

// MaxWebhookBytes limits webhook bodies; provider events are a few KiB.
const MaxWebhookBytes = 64 << 10

type Subscriptions interface {
	CreateCheckout(ctx context.Context, email string) (*pkgbilling.CheckoutSession, error)
	ConfirmCheckout(ctx context.Context, sessionID string) (*user.User, error)
	Cancel(ctx context.Context, userID uuid.UUID) (*user.User, error)
}

type Reconciler interface {
	Apply(ctx context.Context, payload []byte, signature string) (subscription.Result, error)
	SignatureHeader() string
}

type Module struct {
	subs        Subscriptions
	reconciler  Reconciler
	requireUser func(http.Handler) http.Handler
	tr          *i18n.Translator
	eh          handler.ErrorHandler[handler.Context]
	log         *slog.Logger
	now         func() time.Time
}

type Option func(*Module)

func WithLogger(l *slog.Logger) Option {
	return func(m *Module) {
		if l != nil {
			m.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Module) {
		if now != nil {
			m.now = now
		}
	}
}

// New panics when requireUser is nil; cancellation needs it.
func New(
	subs Subscriptions,
	reconciler Reconciler,
	requireUser func(http.Handler) http.Handler,
	tr *i18n.Translator,
	eh handler.ErrorHandler[handler.Context],
	opts ...Option,
) *Module {
	if requireUser == nil {
		panic("billing: requireUser middleware is required")
	}
	m := &Module{
		subs:        subs,
		reconciler:  reconciler,
		requireUser: requireUser,
		tr:          tr,
		eh:          eh,
		log:         logger.Discard(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.Component("billing_routes"))
	return m
}

// Handle serves the /api/stripe routes.
func (m *Module) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/create-checkout-session", handler.Handle(m.createCheckout, m.eh, binder.JSON(binder.WithUnknownFields())))
	r.Get("/success", handler.Handle(m.success, m.eh, binder.Query()))
	r.Method(http.MethodPost, "/webhook", m.Webhook())
	return r
}

// Webhook receives provider events. It is also mounted on the
// provider-neutral /api/billing/webhook path.
func (m *Module) Webhook() http.Handler {
	return handler.Handle(m.webhook, m.eh)
}

// Subscription serves the /api/subscription routes.
func (m *Module) Subscription() *SubscriptionRoutes {
	return &SubscriptionRoutes{m: m}
}

type SubscriptionRoutes struct{ m *Module }

func (s *SubscriptionRoutes) Handle() http.Handler {
	r := chi.NewRouter()
	r.With(s.m.requireUser).Post("/cancel", handler.Handle(s.m.cancel, s.m.eh))
	return r
}

type checkoutRequest struct {
	Email string `json:"email"`
}

type checkoutResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (m *Module) createCheckout(ctx handler.Context, req checkoutRequest) handler.Response {
	if req.Email == "" {
		return handler.Error(handler.NewHTTPError(http.StatusBadRequest, "billing.email_required"))
	}
	sess, err := m.subs.CreateCheckout(ctx, req.Email)
	if err != nil {
		return handler.Error(billingError(err))
	}
	return handler.JSON(checkoutResponse{ID: sess.ID, URL: sess.URL})
}

type successRequest struct {
	SessionID string `query:"session_id"`
}

type activatedUser struct {
	ID                 string      `json:"id"`
	Email              string      `json:"email"`
	SubscriptionStatus user.Status `json:"subscriptionStatus"`
	StoriesRemaining   int         `json:"storiesRemaining"`
}

func (m *Module) success(ctx handler.Context, req successRequest) handler.Response {
	u, err := m.subs.ConfirmCheckout(ctx, req.SessionID)
	if err != nil {
		return handler.Error(billingError(err))
	}
	return handler.JSON(map[string]any{
		"success": true,
		"message": m.tr.Tc(ctx, "billing.activated"),
		"user": activatedUser{
			ID:                 u.ID.String(),
			Email:              u.Email,
			SubscriptionStatus: u.SubscriptionStatus,
			StoriesRemaining:   quota.Remaining(*u, m.now()),
		},
	})
}

func (m *Module) cancel(ctx handler.Context, _ struct{}) handler.Response {
	current := authsvc.GetUserFromContext(ctx)
	if current == nil {
		return handler.Error(handler.ErrUnauthorized)
	}
	u, err := m.subs.Cancel(ctx, current.ID)
	if err != nil {
		return handler.Error(billingError(err))
	}
	return handler.JSON(map[string]any{
		"success":            true,
		"message":            m.tr.Tc(ctx, "subscription.cancelled"),
		"subscriptionStatus": u.SubscriptionStatus,
	})
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// webhook acknowledges every verified event with 200, including ignored and
// duplicate ones. Only bad signatures, unreadable bodies and internal
// failures get an error status, the last so that the provider retries.
func (m *Module) webhook(ctx handler.Context, _ struct{}) handler.Response {
	r := ctx.Request()
	signature := r.Header.Get(m.reconciler.SignatureHeader())
	if signature == "" {
		return handler.Error(handler.NewHTTPError(http.StatusBadRequest, "billing.signature_missing"))
	}

	payload, err := io.ReadAll(http.MaxBytesReader(ctx.ResponseWriter(), r.Body, MaxWebhookBytes))
	if err != nil {
		return handler.Error(err)
	}

	res, err := m.reconciler.Apply(ctx, payload, signature)
	if err != nil {
		return handler.Error(billingError(err))
	}
	m.log.DebugContext(ctx, "webhook acknowledged",
		logger.EventID(res.EventID), slog.String("outcome", string(res.Outcome)))
	return handler.JSON(webhookResponse{Received: true, Outcome: string(res.Outcome)})
}

func billingError(err error) error {
	var e handler.HTTPError
	switch {
	case validator.IsValidationError(err):
		return err
	case errors.Is(err, user.ErrInvalidEmail):
		e = handler.NewHTTPError(http.StatusBadRequest, "validation.email", "field", "email")
	case errors.Is(err, subscription.ErrMissingSession):
		e = handler.NewHTTPError(http.StatusBadRequest, "billing.session_required")
	case errors.Is(err, subscription.ErrPaymentIncomplete):
		e = handler.NewHTTPError(http.StatusBadRequest, "billing.payment_incomplete")
	case errors.Is(err, subscription.ErrSubscriptionInactive):
		e = handler.NewHTTPError(http.StatusBadRequest, "billing.subscription_inactive")
	case errors.Is(err, subscription.ErrNoActiveSubscription):
		e = handler.NewHTTPError(http.StatusBadRequest, "subscription.none_active")
	case errors.Is(err, user.ErrNotFound):
		e = handler.NewHTTPError(http.StatusNotFound, "billing.user_not_found")
	case errors.Is(err, subscription.ErrInvalidSignature):
		e = handler.NewHTTPError(http.StatusBadRequest, "billing.signature_invalid")
	case errors.Is(err, subscription.ErrMalformedEvent):
		e = handler.ErrBadRequest
	case errors.Is(err, subscription.ErrUpstreamFailure):
		e = handler.ErrBadGateway
	default:
		e = handler.ErrInternal
	}
	return errors.Join(err, e)
}
