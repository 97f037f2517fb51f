package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
	PriceID       string `env:"STRIPE_PRICE_ID,required"`
}

type StripeProvider struct {
	api    *client.API
	config StripeConfig
}

type StripeOption func(*stripeOptions)

type stripeOptions struct {
	backends *stripe.Backends
}

// WithStripeBackends points the client at custom backends, e.g. a test server.
func WithStripeBackends(b *stripe.Backends) StripeOption {
	return func(o *stripeOptions) { o.backends = b }
}

func NewStripeProvider(cfg StripeConfig, opts ...StripeOption) (*StripeProvider, error) {
	if cfg.SecretKey == "" || cfg.WebhookSecret == "" || cfg.PriceID == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("stripe secret key, webhook secret and price id are required"))
	}
	var o stripeOptions
	for _, opt := range opts {
		opt(&o)
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, o.backends)
	return &StripeProvider{api: api, config: cfg}, nil
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) SignatureHeader() string { return "Stripe-Signature" }

func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(p.config.PriceID),
			Quantity: stripe.Int64(1),
		}},
		ClientReferenceID: stripe.String(req.UserID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.AddMetadata("userId", req.UserID)
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, errors.Join(ErrProvider, fmt.Errorf("create checkout session: %w", err))
	}
	if sess.URL == "" {
		return nil, ErrNoCheckoutURL
	}
	return stripeSession(sess), nil
}

func (p *StripeProvider) RetrieveCheckout(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if sessionID == "" {
		return nil, errors.Join(ErrInvalidRequest, errors.New("session id is required"))
	}
	params := &stripe.CheckoutSessionParams{}
	params.AddExpand("subscription")
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, errors.Join(ErrProvider, fmt.Errorf("retrieve checkout session: %w", err))
	}
	return stripeSession(sess), nil
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionRef string) error {
	if subscriptionRef == "" {
		return errors.Join(ErrInvalidRequest, errors.New("subscription ref is required"))
	}
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := p.api.Subscriptions.Cancel(subscriptionRef, params); err != nil {
		return errors.Join(ErrProvider, fmt.Errorf("cancel subscription: %w", err))
	}
	return nil
}

func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}

	meta := Meta{
		ID:         ev.ID,
		Provider:   p.Name(),
		Kind:       KindUnknown,
		Type:       string(ev.Type),
		OccurredAt: time.Unix(ev.Created, 0).UTC(),
	}
	if ev.Data == nil {
		return Unknown{Meta: meta}, nil
	}

	switch ev.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
		meta.Kind = KindCheckoutCompleted
		cs := stripeSession(&sess)
		return CheckoutCompleted{
			Meta:            meta,
			CorrelationID:   cs.CorrelationID,
			CustomerRef:     cs.CustomerRef,
			SubscriptionRef: cs.SubscriptionRef,
			PeriodEnd:       cs.PeriodEnd,
		}, nil

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
		meta.Kind = KindSubscriptionUpdated
		return SubscriptionUpdated{
			Meta:            meta,
			CustomerRef:     stripeCustomerID(sub.Customer),
			SubscriptionRef: sub.ID,
			Status:          string(sub.Status),
			PeriodEnd:       unixPtr(sub.CurrentPeriodEnd),
		}, nil

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
		meta.Kind = KindSubscriptionDeleted
		return SubscriptionDeleted{
			Meta:            meta,
			CustomerRef:     stripeCustomerID(sub.Customer),
			SubscriptionRef: sub.ID,
		}, nil
	}
	return Unknown{Meta: meta}, nil
}

func stripeSession(s *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		Paid:          s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		CorrelationID: s.ClientReferenceID,
		CustomerRef:   stripeCustomerID(s.Customer),
	}
	if out.CorrelationID == "" && s.Metadata != nil {
		out.CorrelationID = s.Metadata["userId"]
	}
	if s.Subscription != nil {
		out.SubscriptionRef = s.Subscription.ID
		out.SubscriptionStatus = string(s.Subscription.Status)
		out.PeriodEnd = unixPtr(s.Subscription.CurrentPeriodEnd)
	}
	return out
}

func stripeCustomerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
