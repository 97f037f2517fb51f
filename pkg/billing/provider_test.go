package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talewise/storyteller/pkg/billing"
)

func TestCheckoutSession_Entitled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sess billing.CheckoutSession
		want bool
	}{
		{"active", billing.CheckoutSession{SubscriptionRef: "sub_1", SubscriptionStatus: "active"}, true},
		{"trialing", billing.CheckoutSession{SubscriptionRef: "sub_1", SubscriptionStatus: "trialing"}, true},
		{"canceled", billing.CheckoutSession{SubscriptionRef: "sub_1", SubscriptionStatus: "canceled"}, false},
		{"past due", billing.CheckoutSession{SubscriptionRef: "sub_1", SubscriptionStatus: "past_due"}, false},
		{"unknown status", billing.CheckoutSession{SubscriptionRef: "sub_1"}, false},
		{"no subscription", billing.CheckoutSession{SubscriptionStatus: "active"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.sess.Entitled())
		})
	}
}
