package common

import (
	"testing"

	"booth/src/types"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v82"
)

func TestMapCheckoutStatus(t *testing.T) {
	tests := []struct {
		name     string
		session  stripe.CheckoutSession
		expected types.PaymentStatus
	}{
		{
			name:     "paid payment status",
			session:  stripe.CheckoutSession{PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid},
			expected: types.PAYMENT_PAID,
		},
		{
			name:     "complete session",
			session:  stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusComplete},
			expected: types.PAYMENT_PAID,
		},
		{
			name:     "expired session",
			session:  stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusExpired},
			expected: types.PAYMENT_EXPIRED,
		},
		{
			name:     "open session still pending",
			session:  stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusOpen},
			expected: types.PAYMENT_PENDING,
		},
		{
			name:     "unknown status maps to pending",
			session:  stripe.CheckoutSession{Status: stripe.CheckoutSessionStatus("some_new_status")},
			expected: types.PAYMENT_PENDING,
		},
		{
			name:     "zero value maps to pending",
			session:  stripe.CheckoutSession{},
			expected: types.PAYMENT_PENDING,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, mapCheckoutStatus(&tt.session))
		})
	}
}

func TestVerifyCallbackRejectsBadSignature(t *testing.T) {
	g := NewStripeGateway()
	event, err := g.VerifyCallback([]byte(`{"type":"checkout.session.completed"}`), "bogus")
	assert.Error(t, err)
	assert.Nil(t, event)
}
