package billing_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/talewise/storyteller/pkg/billing"
)

const stripeWebhookSecret = "whsec_test_secret"

func stripeConfig() billing.StripeConfig {
	return billing.StripeConfig{SecretKey: "sk_test_123", WebhookSecret: stripeWebhookSecret, PriceID: "price_monthly"}
}

func newStripe(t *testing.T, handler http.HandlerFunc) *billing.StripeProvider {
	t.Helper()
	var opts []billing.StripeOption
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(srv.URL),
			HTTPClient:        srv.Client(),
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		})
		opts = append(opts, billing.WithStripeBackends(&stripe.Backends{API: backend, Connect: backend, Uploads: backend}))
	}
	p, err := billing.NewStripeProvider(stripeConfig(), opts...)
	require.NoError(t, err)
	return p
}

func signStripe(t *testing.T, payload string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    stripeWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func stripeEvent(id, kind string, created int64, object string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"created":%d,"api_version":"2024-06-20","data":{"object":%s}}`,
		id, kind, created, object)
}

func TestNewStripeProvider_RequiresConfig(t *testing.T) {
	t.Parallel()
	_, err := billing.NewStripeProvider(billing.StripeConfig{SecretKey: "sk"})
	assert.ErrorIs(t, err, billing.ErrInvalidConfig)
}

func TestStripe_ParseWebhook(t *testing.T) {
	t.Parallel()
	p := newStripe(t, nil)
	ctx := context.Background()

	t.Run("checkout completed", func(t *testing.T) {
		payload := stripeEvent("evt_1", "checkout.session.completed", 1778000000,
			`{"id":"cs_1","object":"checkout.session","client_reference_id":"user-1","customer":"cus_1","subscription":"sub_1","payment_status":"paid"}`)
		ev, err := p.ParseWebhook(ctx, []byte(payload), signStripe(t, payload))
		require.NoError(t, err)

		cc, ok := ev.(billing.CheckoutCompleted)
		require.True(t, ok, "got %T", ev)
		assert.Equal(t, "evt_1", cc.ID)
		assert.Equal(t, "stripe", cc.Provider)
		assert.Equal(t, billing.KindCheckoutCompleted, cc.Kind)
		assert.Equal(t, time.Unix(1778000000, 0).UTC(), cc.OccurredAt)
		assert.Equal(t, "user-1", cc.CorrelationID)
		assert.Equal(t, "cus_1", cc.CustomerRef)
		assert.Equal(t, "sub_1", cc.SubscriptionRef)
	})

	t.Run("checkout falls back to metadata user id", func(t *testing.T) {
		payload := stripeEvent("evt_2", "checkout.session.completed", 1778000000,
			`{"id":"cs_2","object":"checkout.session","metadata":{"userId":"user-2"},"customer":"cus_2","subscription":"sub_2"}`)
		ev, err := p.ParseWebhook(ctx, []byte(payload), signStripe(t, payload))
		require.NoError(t, err)
		assert.Equal(t, "user-2", ev.(billing.CheckoutCompleted).CorrelationID)
	})

	for _, kind := range []string{"customer.subscription.created", "customer.subscription.updated"} {
		t.Run(kind, func(t *testing.T) {
			payload := stripeEvent("evt_3", kind, 1778000100,
				`{"id":"sub_1","object":"subscription","customer":"cus_1","status":"trialing","current_period_end":1780000000}`)
			ev, err := p.ParseWebhook(ctx, []byte(payload), signStripe(t, payload))
			require.NoError(t, err)

			su, ok := ev.(billing.SubscriptionUpdated)
			require.True(t, ok, "got %T", ev)
			assert.Equal(t, "sub_1", su.SubscriptionRef)
			assert.Equal(t, "cus_1", su.CustomerRef)
			assert.True(t, su.Active())
			require.NotNil(t, su.PeriodEnd)
			assert.Equal(t, int64(1780000000), su.PeriodEnd.Unix())
		})
	}

	t.Run("subscription deleted", func(t *testing.T) {
		payload := stripeEvent("evt_4", "customer.subscription.deleted", 1778000200,
			`{"id":"sub_1","object":"subscription","customer":"cus_1","status":"canceled"}`)
		ev, err := p.ParseWebhook(ctx, []byte(payload), signStripe(t, payload))
		require.NoError(t, err)
		sd, ok := ev.(billing.SubscriptionDeleted)
		require.True(t, ok, "got %T", ev)
		assert.Equal(t, "sub_1", sd.SubscriptionRef)
	})

	t.Run("unknown kind", func(t *testing.T) {
		payload := stripeEvent("evt_5", "invoice.paid", 1778000300, `{"id":"in_1","object":"invoice"}`)
		ev, err := p.ParseWebhook(ctx, []byte(payload), signStripe(t, payload))
		require.NoError(t, err)
		u, ok := ev.(billing.Unknown)
		require.True(t, ok, "got %T", ev)
		assert.Equal(t, "invoice.paid", u.Type)
		assert.Equal(t, billing.KindUnknown, u.Kind)
	})

	t.Run("bad signature", func(t *testing.T) {
		payload := stripeEvent("evt_6", "checkout.session.completed", 1778000000, `{"id":"cs_1"}`)
		_, err := p.ParseWebhook(ctx, []byte(payload), "t=1,v1=deadbeef")
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)
	})

	t.Run("tampered payload", func(t *testing.T) {
		payload := stripeEvent("evt_7", "checkout.session.completed", 1778000000, `{"id":"cs_1"}`)
		sig := signStripe(t, payload)
		tampered := stripeEvent("evt_7", "checkout.session.completed", 1778000000, `{"id":"cs_2"}`)
		_, err := p.ParseWebhook(ctx, []byte(tampered), sig)
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)
	})
}

func TestStripe_CreateCheckout(t *testing.T) {
	t.Parallel()

	p := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "subscription", r.PostForm.Get("mode"))
		assert.Equal(t, "user-1", r.PostForm.Get("client_reference_id"))
		assert.Equal(t, "user-1", r.PostForm.Get("metadata[userId]"))
		assert.Equal(t, "kid@example.com", r.PostForm.Get("customer_email"))
		assert.Equal(t, "price_monthly", r.PostForm.Get("line_items[0][price]"))
		assert.Equal(t, "https://app.test/success?session_id={CHECKOUT_SESSION_ID}", r.PostForm.Get("success_url"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "cs_test_1", "object": "checkout.session", "url": "https://checkout.stripe.com/c/pay/cs_test_1",
		})
	})

	sess, err := p.CreateCheckout(context.Background(), billing.CheckoutRequest{
		UserID:     "user-1",
		Email:      "kid@example.com",
		SuccessURL: "https://app.test/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "https://app.test/subscribe",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", sess.URL)
}

func TestStripe_CreateCheckout_Validation(t *testing.T) {
	t.Parallel()
	p := newStripe(t, nil)
	_, err := p.CreateCheckout(context.Background(), billing.CheckoutRequest{SuccessURL: "x"})
	assert.ErrorIs(t, err, billing.ErrInvalidRequest)
}

func TestStripe_CreateCheckout_ProviderError(t *testing.T) {
	t.Parallel()

	p := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such price"}}`))
	})
	_, err := p.CreateCheckout(context.Background(), billing.CheckoutRequest{UserID: "u", SuccessURL: "https://app.test/s"})
	assert.ErrorIs(t, err, billing.ErrProvider)
}

func TestStripe_RetrieveCheckout(t *testing.T) {
	t.Parallel()

	p := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/checkout/sessions/cs_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_1","object":"checkout.session","payment_status":"paid",
			"client_reference_id":"user-1","customer":"cus_1",
			"subscription":{"id":"sub_1","object":"subscription","status":"active","current_period_end":1780000000}}`))
	})

	sess, err := p.RetrieveCheckout(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.True(t, sess.Paid)
	assert.Equal(t, "user-1", sess.CorrelationID)
	assert.Equal(t, "cus_1", sess.CustomerRef)
	assert.Equal(t, "sub_1", sess.SubscriptionRef)
	assert.Equal(t, "active", sess.SubscriptionStatus)
	assert.True(t, sess.Entitled())
	require.NotNil(t, sess.PeriodEnd)
	assert.Equal(t, int64(1780000000), sess.PeriodEnd.Unix())
}

func TestStripe_CancelSubscription(t *testing.T) {
	t.Parallel()

	var called bool
	p := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/subscriptions/sub_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"sub_1","object":"subscription","status":"canceled"}`))
	})

	require.NoError(t, p.CancelSubscription(context.Background(), "sub_1"))
	assert.True(t, called)
	assert.ErrorIs(t, p.CancelSubscription(context.Background(), ""), billing.ErrInvalidRequest)
}
