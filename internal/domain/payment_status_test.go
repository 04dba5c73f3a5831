package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from PaymentStatus
		to   PaymentStatus
		want bool
	}{
		{"pending to paid", PaymentStatusPending, PaymentStatusPaid, true},
		{"pending to canceled", PaymentStatusPending, PaymentStatusCanceled, true},
		{"pending to pending", PaymentStatusPending, PaymentStatusPending, false},
		{"paid to canceled", PaymentStatusPaid, PaymentStatusCanceled, false},
		{"paid to pending", PaymentStatusPaid, PaymentStatusPending, false},
		{"canceled to paid", PaymentStatusCanceled, PaymentStatusPaid, false},
		{"unknown to paid", PaymentStatus("refunded"), PaymentStatusPaid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransitionTo(tt.from, tt.to))
		})
	}
}

func TestPaymentStatus_IsTerminal(t *testing.T) {
	assert.False(t, PaymentStatusPending.IsTerminal())
	assert.True(t, PaymentStatusPaid.IsTerminal())
	assert.True(t, PaymentStatusCanceled.IsTerminal())
}

func TestPaymentStatus_IsValid(t *testing.T) {
	for _, s := range []PaymentStatus{PaymentStatusPending, PaymentStatusPaid, PaymentStatusCanceled} {
		assert.True(t, s.IsValid(), s)
	}
	for _, s := range []PaymentStatus{"", "refunded", "PAID"} {
		assert.False(t, s.IsValid(), s)
	}
}

func TestOrder_HasPaymentSession(t *testing.T) {
	empty := ""
	id := "cs_test_1"

	assert.False(t, (&Order{}).HasPaymentSession())
	assert.False(t, (&Order{StripeSessionID: &empty}).HasPaymentSession())
	assert.True(t, (&Order{StripeSessionID: &id}).HasPaymentSession())
}
