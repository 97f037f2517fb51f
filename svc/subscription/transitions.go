package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/talewise/storyteller/pkg/statemachine"
	"github.com/talewise/storyteller/svc/user"
)

type Trigger string

const (
	TriggerCheckoutCompleted   Trigger = "checkout_completed"
	TriggerSubscriptionUpdated Trigger = "subscription_updated"
	TriggerSubscriptionDeleted Trigger = "subscription_deleted"
	TriggerCancelRequested     Trigger = "cancel_requested"
)

// Change is the input of one trigger: the record it applies to and the
// provider data that came with it.
type Change struct {
	User            *user.User
	CustomerRef     string
	SubscriptionRef string
	PeriodEnd       *time.Time
	// Entitled is the provider's view of an updated subscription (active or trialing).
	Entitled bool
	Now      time.Time

	changed bool
}

var (
	withGuard  = statemachine.WithGuard[user.Status, Trigger, *Change]
	withAction = statemachine.WithAction[user.Status, Trigger, *Change]
)

var machine = statemachine.MustNew(
	statemachine.WithTransitionFrom(
		[]user.Status{user.StatusFree, user.StatusCancelled, user.StatusActive},
		user.StatusActive, TriggerCheckoutCompleted,
		withAction(activate),
	),
	statemachine.WithTransition(user.StatusActive, user.StatusActive, TriggerSubscriptionUpdated,
		withGuard(entitled),
		withGuard(sameSubscription),
		withAction(confirm),
	),
	statemachine.WithTransitionFrom(
		[]user.Status{user.StatusActive, user.StatusCancelled},
		user.StatusCancelled, TriggerSubscriptionDeleted,
		withGuard(sameSubscription),
		withAction(release),
	),
	statemachine.WithTransitionFrom(
		[]user.Status{user.StatusActive, user.StatusCancelled},
		user.StatusCancelled, TriggerCancelRequested,
		withAction(release),
	),
)

// Transition applies trigger to c.User. It reports whether the record changed
// and must be saved. A trigger with no transition from the current status, or
// one rejected by a guard, returns an error matching ErrTransitionNotAllowed
// and leaves the record untouched.
func Transition(ctx context.Context, trigger Trigger, c *Change) (bool, error) {
	if c == nil || c.User == nil {
		return false, ErrNilRecord
	}
	if c.Now.IsZero() {
		c.Now = time.Now()
	}
	c.Now = c.Now.UTC()
	c.changed = false

	before := c.User.Clone()
	from := c.User.SubscriptionStatus
	to, err := machine.Fire(ctx, from, trigger, c)
	if err != nil {
		*c.User = *before
		if statemachine.IsNoTransition(err) || statemachine.IsRejected(err) {
			return false, errors.Join(ErrTransitionNotAllowed, err)
		}
		return false, err
	}
	if to != from {
		c.User.SubscriptionStatus = to
		c.changed = true
	}
	return c.changed, nil
}

// Allowed reports whether trigger has a transition from u's status for c.
func Allowed(ctx context.Context, trigger Trigger, c *Change) bool {
	if c == nil || c.User == nil {
		return false
	}
	return machine.CanFire(ctx, c.User.SubscriptionStatus, trigger, c)
}

func entitled(_ context.Context, _ user.Status, _ Trigger, c *Change) bool {
	return c.Entitled
}

// sameSubscription rejects events naming a subscription other than the stored one.
func sameSubscription(_ context.Context, _ user.Status, _ Trigger, c *Change) bool {
	stored := c.User.ExternalSubscriptionRef
	return stored == "" || c.SubscriptionRef == "" || stored == c.SubscriptionRef
}

func activate(_ context.Context, from, _ user.Status, _ Trigger, c *Change) error {
	u := c.User
	if from == user.StatusActive && u.ExternalSubscriptionRef == c.SubscriptionRef &&
		(c.CustomerRef == "" || c.CustomerRef == u.ExternalCustomerRef) {
		// redelivery of the activation that is already in place
		if c.PeriodEnd != nil && !sameTime(u.SubscriptionEndDate, c.PeriodEnd) {
			u.SubscriptionEndDate = copyTime(c.PeriodEnd)
			c.changed = true
		}
		return nil
	}

	if c.CustomerRef != "" {
		u.ExternalCustomerRef = c.CustomerRef
	}
	u.ExternalSubscriptionRef = c.SubscriptionRef
	u.SubscriptionEndDate = copyTime(c.PeriodEnd)
	u.StoriesGeneratedThisMonth = 0
	u.LastMonthlyReset = c.Now
	c.changed = true
	return nil
}

func confirm(_ context.Context, _, _ user.Status, _ Trigger, c *Change) error {
	u := c.User
	if c.PeriodEnd != nil && !sameTime(u.SubscriptionEndDate, c.PeriodEnd) {
		u.SubscriptionEndDate = copyTime(c.PeriodEnd)
		c.changed = true
	}
	if u.ExternalCustomerRef == "" && c.CustomerRef != "" {
		u.ExternalCustomerRef = c.CustomerRef
		c.changed = true
	}
	if u.ExternalSubscriptionRef == "" && c.SubscriptionRef != "" {
		u.ExternalSubscriptionRef = c.SubscriptionRef
		c.changed = true
	}
	return nil
}

// release drops the subscription link. The customer ref stays for re-subscription.
func release(_ context.Context, _, _ user.Status, _ Trigger, c *Change) error {
	if c.User.ExternalSubscriptionRef != "" {
		c.User.ExternalSubscriptionRef = ""
		c.changed = true
	}
	return nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
