package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	PriceID       string `env:"PADDLE_PRICE_ID,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	config   PaddleConfig
}

func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.APIKey == "" || cfg.WebhookSecret == "" || cfg.PriceID == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("paddle api key, webhook secret and price id are required"))
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, errors.Join(ErrInvalidConfig, fmt.Errorf("unknown paddle environment %q", cfg.Environment))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
		config:   cfg,
	}, nil
}

func (p *PaddleProvider) Name() string { return "paddle" }

func (p *PaddleProvider) SignatureHeader() string { return "Paddle-Signature" }

func (p *PaddleProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  p.config.PriceID,
		Quantity: 1,
	})
	txReq := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{"user_id": req.UserID},
		Checkout:   &paddle.TransactionCheckout{URL: paddle.PtrTo(req.SuccessURL)},
	}
	if req.Email != "" {
		txReq.CustomData["email"] = req.Email
	}

	tx, err := p.client.TransactionsClient.CreateTransaction(ctx, txReq)
	if err != nil {
		return nil, errors.Join(ErrProvider, fmt.Errorf("create transaction: %w", err))
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil || *tx.Checkout.URL == "" {
		return nil, ErrNoCheckoutURL
	}
	return &CheckoutSession{ID: tx.ID, URL: *tx.Checkout.URL, CorrelationID: req.UserID}, nil
}

func (p *PaddleProvider) RetrieveCheckout(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if sessionID == "" {
		return nil, errors.Join(ErrInvalidRequest, errors.New("session id is required"))
	}
	tx, err := p.client.TransactionsClient.GetTransaction(ctx, &paddle.GetTransactionRequest{TransactionID: sessionID})
	if err != nil {
		return nil, errors.Join(ErrProvider, fmt.Errorf("get transaction: %w", err))
	}
	out := &CheckoutSession{
		ID:   tx.ID,
		Paid: tx.Status == paddle.TransactionStatusPaid || tx.Status == paddle.TransactionStatusCompleted,
	}
	if v, ok := tx.CustomData["user_id"].(string); ok {
		out.CorrelationID = v
	}
	if tx.CustomerID != nil {
		out.CustomerRef = *tx.CustomerID
	}
	if tx.SubscriptionID != nil {
		out.SubscriptionRef = *tx.SubscriptionID
		sub, err := p.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{SubscriptionID: out.SubscriptionRef})
		if err != nil {
			return nil, errors.Join(ErrProvider, fmt.Errorf("get subscription: %w", err))
		}
		if sub != nil {
			out.SubscriptionStatus = string(sub.Status)
		}
	}
	if tx.BillingPeriod != nil {
		out.PeriodEnd = parseRFC3339(tx.BillingPeriod.EndsAt)
	}
	return out, nil
}

func (p *PaddleProvider) CancelSubscription(ctx context.Context, subscriptionRef string) error {
	if subscriptionRef == "" {
		return errors.Join(ErrInvalidRequest, errors.New("subscription ref is required"))
	}
	_, err := p.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: subscriptionRef,
		EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromImmediately),
	})
	if err != nil {
		return errors.Join(ErrProvider, fmt.Errorf("cancel subscription: %w", err))
	}
	return nil
}

type paddleNotification struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt string          `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type paddlePeriod struct {
	EndsAt string `json:"ends_at"`
}

type paddleEntity struct {
	ID                   string         `json:"id"`
	Status               string         `json:"status"`
	CustomerID           string         `json:"customer_id"`
	SubscriptionID       string         `json:"subscription_id"`
	CustomData           map[string]any `json:"custom_data"`
	BillingPeriod        *paddlePeriod  `json:"billing_period"`
	CurrentBillingPeriod *paddlePeriod  `json:"current_billing_period"`
}

func (e paddleEntity) userID() string {
	v, _ := e.CustomData["user_id"].(string)
	return v
}

func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build verification request: %w", err)
	}
	req.Header.Set(p.SignatureHeader(), signature)
	ok, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	if !ok {
		return nil, ErrInvalidSignature
	}

	var n paddleNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}
	meta := Meta{ID: n.EventID, Provider: p.Name(), Kind: KindUnknown, Type: n.EventType}
	if at := parseRFC3339(n.OccurredAt); at != nil {
		meta.OccurredAt = *at
	}

	var data paddleEntity
	if len(n.Data) > 0 {
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
	}

	switch n.EventType {
	case "transaction.completed":
		if data.SubscriptionID == "" {
			// one-off payments carry no subscription
			return Unknown{Meta: meta}, nil
		}
		meta.Kind = KindCheckoutCompleted
		ev := CheckoutCompleted{
			Meta:            meta,
			CorrelationID:   data.userID(),
			CustomerRef:     data.CustomerID,
			SubscriptionRef: data.SubscriptionID,
		}
		if data.BillingPeriod != nil {
			ev.PeriodEnd = parseRFC3339(data.BillingPeriod.EndsAt)
		}
		return ev, nil

	case "subscription.created", "subscription.updated", "subscription.activated", "subscription.resumed":
		meta.Kind = KindSubscriptionUpdated
		ev := SubscriptionUpdated{
			Meta:            meta,
			CustomerRef:     data.CustomerID,
			SubscriptionRef: data.ID,
			Status:          data.Status,
		}
		if data.CurrentBillingPeriod != nil {
			ev.PeriodEnd = parseRFC3339(data.CurrentBillingPeriod.EndsAt)
		}
		return ev, nil

	case "subscription.canceled":
		meta.Kind = KindSubscriptionDeleted
		return SubscriptionDeleted{Meta: meta, CustomerRef: data.CustomerID, SubscriptionRef: data.ID}, nil
	}
	return Unknown{Meta: meta}, nil
}

func parseRFC3339(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
