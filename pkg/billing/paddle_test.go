package billing_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talewise/storyteller/pkg/billing"
)

const paddleWebhookSecret = "pdl_ntfset_test_secret"

func newPaddle(t *testing.T) *billing.PaddleProvider {
	t.Helper()
	p, err := billing.NewPaddleProvider(billing.PaddleConfig{
		APIKey:        "pdl_sdbx_apikey_test",
		WebhookSecret: paddleWebhookSecret,
		PriceID:       "pri_monthly",
		Environment:   "sandbox",
	})
	require.NoError(t, err)
	return p
}

func signPaddle(payload string) string {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(paddleWebhookSecret))
	mac.Write([]byte(ts + ":" + payload))
	return fmt.Sprintf("ts=%s;h1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestNewPaddleProvider_Config(t *testing.T) {
	t.Parallel()

	_, err := billing.NewPaddleProvider(billing.PaddleConfig{APIKey: "k"})
	assert.ErrorIs(t, err, billing.ErrInvalidConfig)

	_, err = billing.NewPaddleProvider(billing.PaddleConfig{APIKey: "k", WebhookSecret: "s", PriceID: "p", Environment: "moon"})
	assert.ErrorIs(t, err, billing.ErrInvalidConfig)
}

func TestPaddle_ParseWebhook(t *testing.T) {
	t.Parallel()
	p := newPaddle(t)
	ctx := context.Background()

	t.Run("transaction completed", func(t *testing.T) {
		payload := `{"event_id":"evt_01","event_type":"transaction.completed","occurred_at":"2026-05-10T09:30:00.000000Z",
			"data":{"id":"txn_1","status":"completed","customer_id":"ctm_1","subscription_id":"sub_01",
			"custom_data":{"user_id":"user-1"},"billing_period":{"starts_at":"2026-05-10T09:30:00Z","ends_at":"2026-06-10T09:30:00Z"}}}`
		ev, err := p.ParseWebhook(ctx, []byte(payload), signPaddle(payload))
		require.NoError(t, err)

		cc, ok := ev.(billing.CheckoutCompleted)
		require.True(t, ok, "got %T", ev)
		assert.Equal(t, "evt_01", cc.ID)
		assert.Equal(t, "paddle", cc.Provider)
		assert.Equal(t, time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC), cc.OccurredAt)
		assert.Equal(t, "user-1", cc.CorrelationID)
		assert.Equal(t, "ctm_1", cc.CustomerRef)
		assert.Equal(t, "sub_01", cc.SubscriptionRef)
		require.NotNil(t, cc.PeriodEnd)
		assert.Equal(t, time.Date(2026, 6, 10, 9, 30, 0, 0, time.UTC), *cc.PeriodEnd)
	})

	t.Run("transaction without subscription is unknown", func(t *testing.T) {
		payload := `{"event_id":"evt_02","event_type":"transaction.completed","occurred_at":"2026-05-10T09:30:00Z","data":{"id":"txn_2"}}`
		ev, err := p.ParseWebhook(ctx, []byte(payload), signPaddle(payload))
		require.NoError(t, err)
		assert.IsType(t, billing.Unknown{}, ev)
	})

	t.Run("subscription updated", func(t *testing.T) {
		payload := `{"event_id":"evt_03","event_type":"subscription.updated","occurred_at":"2026-05-11T00:00:00Z",
			"data":{"id":"sub_01","status":"past_due","customer_id":"ctm_1","current_billing_period":{"ends_at":"2026-06-11T00:00:00Z"}}}`
		ev, err := p.ParseWebhook(ctx, []byte(payload), signPaddle(payload))
		require.NoError(t, err)
		su, ok := ev.(billing.SubscriptionUpdated)
		require.True(t, ok, "got %T", ev)
		assert.Equal(t, "sub_01", su.SubscriptionRef)
		assert.False(t, su.Active())
		require.NotNil(t, su.PeriodEnd)
	})

	t.Run("subscription canceled", func(t *testing.T) {
		payload := `{"event_id":"evt_04","event_type":"subscription.canceled","occurred_at":"2026-05-12T00:00:00Z",
			"data":{"id":"sub_01","status":"canceled","customer_id":"ctm_1"}}`
		ev, err := p.ParseWebhook(ctx, []byte(payload), signPaddle(payload))
		require.NoError(t, err)
		sd, ok := ev.(billing.SubscriptionDeleted)
		require.True(t, ok, "got %T", ev)
		assert.Equal(t, "ctm_1", sd.CustomerRef)
	})

	t.Run("invalid signature", func(t *testing.T) {
		payload := `{"event_id":"evt_05","event_type":"subscription.canceled","data":{}}`
		_, err := p.ParseWebhook(ctx, []byte(payload), "ts=1;h1=00ff")
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)

		_, err = p.ParseWebhook(ctx, []byte(payload), "")
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)
	})

	t.Run("malformed body with valid signature", func(t *testing.T) {
		payload := `{"event_id":`
		_, err := p.ParseWebhook(ctx, []byte(payload), signPaddle(payload))
		assert.ErrorIs(t, err, billing.ErrMalformedPayload)
	})
}
