// Package billing integrates hosted-checkout payment providers. Providers
// create subscription checkouts, retrieve their outcome, cancel
// subscriptions and turn signed webhook payloads into the closed Event
// variant consumed by the subscription reconciler.
package billing

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidSignature = errors.New("billing: webhook signature verification failed")
	ErrMalformedPayload = errors.New("billing: malformed webhook payload")
	ErrInvalidConfig    = errors.New("billing: invalid provider configuration")
	ErrInvalidRequest   = errors.New("billing: invalid request")
	ErrNoCheckoutURL    = errors.New("billing: provider returned no checkout url")
	ErrProvider         = errors.New("billing: provider request failed")
)

// Provider is implemented by Stripe and Paddle.
type Provider interface {
	Name() string
	// SignatureHeader names the HTTP header that carries the webhook signature.
	SignatureHeader() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	RetrieveCheckout(ctx context.Context, sessionID string) (*CheckoutSession, error)
	CancelSubscription(ctx context.Context, subscriptionRef string) error
	// ParseWebhook verifies signature over the raw payload before decoding.
	// Verification failures wrap ErrInvalidSignature.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (Event, error)
}

type CheckoutRequest struct {
	// UserID is echoed back as the correlation id of the completion event.
	UserID     string
	Email      string
	SuccessURL string
	CancelURL  string
}

func (r CheckoutRequest) validate() error {
	if r.UserID == "" {
		return errors.Join(ErrInvalidRequest, errors.New("user id is required"))
	}
	if r.SuccessURL == "" {
		return errors.Join(ErrInvalidRequest, errors.New("success url is required"))
	}
	return nil
}

type CheckoutSession struct {
	ID                 string
	URL                string
	Paid               bool
	CorrelationID      string
	CustomerRef        string
	SubscriptionRef    string
	// SubscriptionStatus is the provider's current status of SubscriptionRef.
	SubscriptionStatus string
	PeriodEnd          *time.Time
}

// Entitled reports whether the session's subscription is still live.
func (s CheckoutSession) Entitled() bool {
	return s.SubscriptionRef != "" && entitledStatus(s.SubscriptionStatus)
}

func entitledStatus(status string) bool {
	return status == "active" || status == "trialing"
}
