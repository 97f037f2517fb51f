// Package quota decides whether a user may generate another story and
// keeps the usage counters in step with each successful generation.
//
// Free and cancelled users are limited by their lifetime count. Active
// subscribers are limited by a calendar-month count that resets whenever
// the month of the decision differs from the month of the last reset. An
// active record whose subscription end date has passed is treated as free.
package quota

import (
	"errors"
	"fmt"
	"time"

	"github.com/talewise/storyteller/svc/user"
)

const (
	// FreeLimit is the lifetime allowance of free and cancelled users.
	FreeLimit = 3
	// MonthlyLimit is the per-calendar-month allowance of active subscribers.
	MonthlyLimit = 30
)

// Tier names the allowance a decision was measured against.
type Tier string

const (
	TierFree    Tier = "free"
	TierMonthly Tier = "monthly"
)

// Reason says why a generation was refused. It is empty when allowed.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonFreeTierExhausted Reason = "free_tier_exhausted"
	ReasonMonthlyLimit      Reason = "monthly_limit_reached"
)

// ErrQuotaExceeded matches every *ExceededError under errors.Is.
var ErrQuotaExceeded = errors.New("story quota exceeded")

// ExceededError is returned when a generation is refused.
type ExceededError struct {
	Reason Reason
	Limit  int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("story quota exceeded: %s (limit %d)", e.Reason, e.Limit)
}

func (e *ExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// SubscriptionRequired is true when subscribing would lift the limit.
func (e *ExceededError) SubscriptionRequired() bool { return e.Reason == ReasonFreeTierExhausted }

// AsExceeded unwraps an ExceededError from err.
func AsExceeded(err error) (*ExceededError, bool) {
	var e *ExceededError
	ok := errors.As(err, &e)
	return e, ok
}

// Decision is the outcome of CanGenerate for one user at one instant.
type Decision struct {
	Allowed   bool
	Remaining int
	Tier      Tier
	Reason    Reason
}

// Err converts a refusal into an *ExceededError; it is nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	limit := FreeLimit
	if d.Tier == TierMonthly {
		limit = MonthlyLimit
	}
	return &ExceededError{Reason: d.Reason, Limit: limit}
}

// ApplyRollover zeroes the monthly counter when now falls in a later
// calendar month (UTC) than the last reset. It reports whether u changed.
func ApplyRollover(u *user.User, now time.Time) bool {
	now = now.UTC()
	last := u.LastMonthlyReset.UTC()
	if now.Year() == last.Year() && now.Month() == last.Month() {
		return false
	}
	u.StoriesGeneratedThisMonth = 0
	u.LastMonthlyReset = now
	return true
}

// CanGenerate evaluates u at now. u is not modified.
func CanGenerate(u user.User, now time.Time) Decision {
	ApplyRollover(&u, now)

	if u.Premium(now) {
		remaining := max(0, MonthlyLimit-u.StoriesGeneratedThisMonth)
		d := Decision{Allowed: u.StoriesGeneratedThisMonth < MonthlyLimit, Remaining: remaining, Tier: TierMonthly}
		if !d.Allowed {
			d.Reason = ReasonMonthlyLimit
		}
		return d
	}

	remaining := max(0, FreeLimit-u.StoriesGeneratedLifetime)
	d := Decision{Allowed: u.StoriesGeneratedLifetime < FreeLimit, Remaining: remaining, Tier: TierFree}
	if !d.Allowed {
		d.Reason = ReasonFreeTierExhausted
	}
	return d
}

// Remaining is the number of stories u may still generate at now.
func Remaining(u user.User, now time.Time) int {
	return CanGenerate(u, now).Remaining
}

// RecordGeneration accounts for one successful generation. The monthly
// counter only moves for active subscriptions.
func RecordGeneration(u *user.User) {
	u.StoriesGeneratedLifetime++
	if u.SubscriptionStatus == user.StatusActive {
		u.StoriesGeneratedThisMonth++
	}
}
