package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talewise/storyteller/pkg/billing"
	"github.com/talewise/storyteller/pkg/logger"
	"github.com/talewise/storyteller/pkg/metrics"
	"github.com/talewise/storyteller/svc/user"
)

type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeIgnoredUnknown   Outcome = "ignored_unknown"
	OutcomeIgnoredUnmatched Outcome = "ignored_unmatched"
	OutcomeIgnoredStale     Outcome = "ignored_stale"
	OutcomeNoop             Outcome = "noop"
)

// Result describes what happened to one webhook event. Every outcome is an
// acknowledgement: the provider must not redeliver.
type Result struct {
	Outcome Outcome
	EventID string
	Kind    billing.Kind
	UserID  uuid.UUID
}

// Changed reports whether the event mutated a user record.
func (r Result) Changed() bool { return r.Outcome == OutcomeApplied }

// Reconciler applies verified billing events to user records.
type Reconciler struct {
	provider billing.Provider
	users    user.Store
	dedup    Deduplicator
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

type ReconcilerOption func(*Reconciler)

func WithDeduplicator(d Deduplicator) ReconcilerOption {
	return func(r *Reconciler) {
		if d != nil {
			r.dedup = d
		}
	}
}

func WithReconcilerLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

func WithReconcilerMetrics(m *metrics.Metrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler panics when provider or users is nil.
func NewReconciler(provider billing.Provider, users user.Store, opts ...ReconcilerOption) *Reconciler {
	if provider == nil {
		panic("subscription: billing provider is required")
	}
	if users == nil {
		panic("subscription: user store is required")
	}
	r := &Reconciler{
		provider: provider,
		users:    users,
		dedup:    NewMemoryDeduplicator(DefaultDedupTTL),
		log:      logger.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.Component("reconciler"), logger.Provider(provider.Name()))
	return r
}

// SignatureHeader is the request header the provider signs webhooks in.
func (r *Reconciler) SignatureHeader() string { return r.provider.SignatureHeader() }

// Apply verifies payload against signature and applies the event it carries.
// A bad signature returns ErrInvalidSignature and touches nothing.
func (r *Reconciler) Apply(ctx context.Context, payload []byte, signature string) (Result, error) {
	ev, err := r.provider.ParseWebhook(ctx, payload, signature)
	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		r.log.WarnContext(ctx, "webhook signature rejected", logger.Error(err))
		r.metrics.BillingEvent(r.provider.Name(), "unverified", "rejected")
		return Result{}, errors.Join(ErrInvalidSignature, err)
	case errors.Is(err, billing.ErrMalformedPayload):
		r.log.WarnContext(ctx, "webhook payload malformed", logger.Error(err))
		r.metrics.BillingEvent(r.provider.Name(), "malformed", "rejected")
		return Result{}, errors.Join(ErrMalformedEvent, err)
	case err != nil:
		return Result{}, fmt.Errorf("parse webhook: %w", err)
	}
	return r.ApplyEvent(ctx, ev)
}

// ApplyEvent applies an already verified event.
func (r *Reconciler) ApplyEvent(ctx context.Context, ev billing.Event) (Result, error) {
	res, err := r.applyEvent(ctx, ev)
	outcome := string(res.Outcome)
	if err != nil {
		outcome = "error"
	}
	r.metrics.BillingEvent(r.provider.Name(), string(res.Kind), outcome)
	return res, err
}

func (r *Reconciler) applyEvent(ctx context.Context, ev billing.Event) (Result, error) {
	meta := ev.EventMeta()
	res := Result{EventID: meta.ID, Kind: meta.Kind}
	log := r.log.With(logger.EventID(meta.ID), logger.EventType(meta.Type))

	trigger, ok := triggerFor(ev)
	if !ok {
		log.DebugContext(ctx, "ignoring unhandled billing event")
		res.Outcome = OutcomeIgnoredUnknown
		return res, nil
	}

	if meta.ID != "" {
		seen, err := r.dedup.Seen(ctx, meta.ID)
		if err != nil {
			return res, errors.Join(ErrUpstreamFailure, err)
		}
		if seen {
			log.InfoContext(ctx, "duplicate billing event")
			res.Outcome = OutcomeDuplicate
			return res, nil
		}
	}

	var outcome Outcome
	u, err := mutate(ctx, r.users,
		func(ctx context.Context) (*user.User, error) { return r.correlate(ctx, ev) },
		func(u *user.User) (bool, error) {
			outcome = OutcomeNoop
			at := meta.OccurredAt.UTC()
			if !meta.OccurredAt.IsZero() && u.LastBillingEventAt != nil && at.Before(*u.LastBillingEventAt) {
				outcome = OutcomeIgnoredStale
				return false, nil
			}

			c := changeFor(ev, u, r.now())
			changed, err := Transition(ctx, trigger, c)
			if errors.Is(err, ErrTransitionNotAllowed) {
				log.InfoContext(ctx, "billing event does not apply to current status",
					logger.UserID(u.ID), slog.String("status", string(u.SubscriptionStatus)))
				return false, nil
			}
			if err != nil {
				return false, err
			}
			if !meta.OccurredAt.IsZero() && (u.LastBillingEventAt == nil || at.After(*u.LastBillingEventAt)) {
				u.LastBillingEventAt = &at
				changed = true
			}
			if changed {
				outcome = OutcomeApplied
			}
			return changed, nil
		},
	)
	if errors.Is(err, user.ErrNotFound) {
		log.WarnContext(ctx, "billing event matches no user", logger.Error(err))
		res.Outcome = OutcomeIgnoredUnmatched
		return res, nil
	}
	if err != nil {
		log.ErrorContext(ctx, "failed to apply billing event", logger.Error(err))
		return res, err
	}

	res.UserID = u.ID
	res.Outcome = outcome
	if meta.ID != "" {
		if err := r.dedup.Mark(ctx, meta.ID); err != nil {
			log.WarnContext(ctx, "failed to remember billing event", logger.Error(err))
		}
	}
	log.InfoContext(ctx, "billing event reconciled",
		logger.UserID(u.ID),
		slog.String("outcome", string(outcome)),
		slog.String("status", string(u.SubscriptionStatus)))
	return res, nil
}

func (r *Reconciler) correlate(ctx context.Context, ev billing.Event) (*user.User, error) {
	switch e := ev.(type) {
	case billing.CheckoutCompleted:
		id, err := uuid.Parse(e.CorrelationID)
		if err != nil {
			return nil, errors.Join(user.ErrNotFound, fmt.Errorf("correlation id %q: %w", e.CorrelationID, err))
		}
		return r.users.FindByID(ctx, id)
	case billing.SubscriptionUpdated:
		return r.findByRefs(ctx, e.SubscriptionRef, e.CustomerRef)
	case billing.SubscriptionDeleted:
		return r.findByRefs(ctx, e.SubscriptionRef, e.CustomerRef)
	}
	return nil, user.ErrNotFound
}

func (r *Reconciler) findByRefs(ctx context.Context, subscriptionRef, customerRef string) (*user.User, error) {
	if subscriptionRef != "" {
		u, err := r.users.FindBySubscriptionRef(ctx, subscriptionRef)
		if err == nil || !errors.Is(err, user.ErrNotFound) {
			return u, err
		}
	}
	if customerRef != "" {
		return r.users.FindByCustomerRef(ctx, customerRef)
	}
	return nil, user.ErrNotFound
}

func triggerFor(ev billing.Event) (Trigger, bool) {
	switch ev.(type) {
	case billing.CheckoutCompleted:
		return TriggerCheckoutCompleted, true
	case billing.SubscriptionUpdated:
		return TriggerSubscriptionUpdated, true
	case billing.SubscriptionDeleted:
		return TriggerSubscriptionDeleted, true
	}
	return "", false
}

func changeFor(ev billing.Event, u *user.User, now time.Time) *Change {
	c := &Change{User: u, Now: now}
	switch e := ev.(type) {
	case billing.CheckoutCompleted:
		c.CustomerRef, c.SubscriptionRef, c.PeriodEnd = e.CustomerRef, e.SubscriptionRef, e.PeriodEnd
	case billing.SubscriptionUpdated:
		c.CustomerRef, c.SubscriptionRef, c.PeriodEnd = e.CustomerRef, e.SubscriptionRef, e.PeriodEnd
		c.Entitled = e.Active()
	case billing.SubscriptionDeleted:
		c.CustomerRef, c.SubscriptionRef = e.CustomerRef, e.SubscriptionRef
	}
	return c
}

const maxSaveAttempts = 2

// mutate runs load, fn and a conditional save, repeating once when the save
// loses a version race. A second conflict is reported as ErrUpstreamFailure.
// The store stamps UpdatedAt.
func mutate(
	ctx context.Context,
	store user.Store,
	load func(context.Context) (*user.User, error),
	fn func(*user.User) (bool, error),
) (*user.User, error) {
	for attempt := 1; ; attempt++ {
		u, err := load(ctx)
		if err != nil {
			return nil, err
		}
		changed, err := fn(u)
		if err != nil || !changed {
			return u, err
		}
		err = store.Save(ctx, u)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, user.ErrConcurrencyConflict) {
			return nil, fmt.Errorf("save user: %w", err)
		}
		if attempt >= maxSaveAttempts {
			return nil, errors.Join(ErrUpstreamFailure, err)
		}
	}
}
