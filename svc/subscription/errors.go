package subscription

import "errors"

var (
	ErrNilRecord            = errors.New("subscription: nil user record")
	ErrTransitionNotAllowed = errors.New("subscription: transition not allowed from current status")
	ErrInvalidSignature     = errors.New("subscription: invalid webhook signature")
	ErrMalformedEvent       = errors.New("subscription: malformed webhook payload")
	ErrUpstreamFailure      = errors.New("subscription: upstream failure")
	ErrNoActiveSubscription = errors.New("no active subscription found")
	ErrPaymentIncomplete    = errors.New("subscription: checkout payment not completed")
	ErrMissingSession       = errors.New("subscription: checkout session id is required")
	ErrSubscriptionInactive = errors.New("subscription: checkout subscription is no longer active")
)
