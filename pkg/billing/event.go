package billing

import "time"

type Kind string

const (
	KindCheckoutCompleted   Kind = "checkout_completed"
	KindSubscriptionUpdated Kind = "subscription_updated"
	KindSubscriptionDeleted Kind = "subscription_deleted"
	KindUnknown             Kind = "unknown"
)

// Meta is shared by every event variant.
type Meta struct {
	ID         string
	Provider   string
	Kind       Kind
	Type       string // provider's own event name
	OccurredAt time.Time
}

// Event is one of CheckoutCompleted, SubscriptionUpdated,
// SubscriptionDeleted or Unknown.
type Event interface {
	EventMeta() Meta
	isEvent()
}

type CheckoutCompleted struct {
	Meta
	CorrelationID   string
	CustomerRef     string
	SubscriptionRef string
	PeriodEnd       *time.Time
}

type SubscriptionUpdated struct {
	Meta
	CustomerRef     string
	SubscriptionRef string
	Status          string
	PeriodEnd       *time.Time
}

// Active reports a provider status that keeps the subscription entitled.
func (e SubscriptionUpdated) Active() bool {
	return entitledStatus(e.Status)
}

type SubscriptionDeleted struct {
	Meta
	CustomerRef     string
	SubscriptionRef string
}

type Unknown struct {
	Meta
}

func (e CheckoutCompleted) EventMeta() Meta   { return e.Meta }
func (e SubscriptionUpdated) EventMeta() Meta { return e.Meta }
func (e SubscriptionDeleted) EventMeta() Meta { return e.Meta }
func (e Unknown) EventMeta() Meta             { return e.Meta }

func (CheckoutCompleted) isEvent()   {}
func (SubscriptionUpdated) isEvent() {}
func (SubscriptionDeleted) isEvent() {}
func (Unknown) isEvent()             {}
