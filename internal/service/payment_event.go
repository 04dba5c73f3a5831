package service

import (
	"errors"

	"github.com/fjod/tavros-checkout/internal/domain"
)

var ErrInvalidPaymentEvent = errors.New("invalid payment event")

const (
	EventSessionCompleted             = "checkout.session.completed"
	EventSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventSessionAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventSessionExpired               = "checkout.session.expired"
)

// PaymentEvent is the part of a verified provider webhook the service acts on.
type PaymentEvent struct {
	ID            string
	Type          string
	SessionID     string
	PaymentStatus string
}

// TargetStatus maps the event to the order status it should produce. ok is
// false for events that do not change an order.
func (e PaymentEvent) TargetStatus() (domain.PaymentStatus, bool) {
	switch e.Type {
	case EventSessionCompleted:
		// card payments are paid on completion, delayed methods follow up
		// with async_payment_succeeded
		if e.PaymentStatus == "paid" || e.PaymentStatus == "no_payment_required" {
			return domain.PaymentStatusPaid, true
		}
		return "", false
	case EventSessionAsyncPaymentSucceeded:
		return domain.PaymentStatusPaid, true
	case EventSessionExpired, EventSessionAsyncPaymentFailed:
		return domain.PaymentStatusCanceled, true
	default:
		return "", false
	}
}
