// Package payment talks to the hosted checkout provider (Stripe Checkout).
package payment

import (
	"context"
	"errors"
)

type SessionStatus string

const (
	SessionStatusOpen     SessionStatus = "open"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusExpired  SessionStatus = "expired"
)

type SessionPaymentStatus string

const (
	SessionPaymentStatusPaid              SessionPaymentStatus = "paid"
	SessionPaymentStatusUnpaid            SessionPaymentStatus = "unpaid"
	SessionPaymentStatusNoPaymentRequired SessionPaymentStatus = "no_payment_required"
)

var ErrProviderUnavailable = errors.New("payment provider unavailable")

// Session is the read-only view of a provider checkout session.
type Session struct {
	ID            string
	Status        SessionStatus
	PaymentStatus SessionPaymentStatus
	URL           string
	Metadata      map[string]string
}

type LineItem struct {
	Name string
	// UnitAmount is in the currency's minor unit.
	UnitAmount int64
	Quantity   int64
}

type CreateSessionParams struct {
	OrderID       string
	OrderNumber   string
	CheckoutKey   string
	CustomerEmail string
	Currency      string
	LineItems     []LineItem
	SuccessURL    string
	CancelURL     string
}

type SessionProvider interface {
	CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
}
