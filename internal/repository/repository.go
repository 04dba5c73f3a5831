package repository

import (
	"context"
	"errors"

	"github.com/fjod/tavros-checkout/internal/domain"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateCheckout = errors.New("order for this checkout already exists")
	ErrStatusConflict    = errors.New("order payment status does not allow this transition")
)

// OrderCounterName is the counter record behind order numbers.
const OrderCounterName = "order"

// OrderFinder looks orders up on behalf of a user. An order owned by someone
// else is reported as ErrOrderNotFound.
type OrderFinder interface {
	GetOrderForUser(ctx context.Context, orderID, userID string) (*domain.Order, error)
}

type OrderRepository interface {
	OrderFinder
	// FindByCheckoutKey returns the pending order for checkoutKey. Paid and
	// canceled orders are not returned.
	FindByCheckoutKey(ctx context.Context, checkoutKey string) (*domain.Order, error)
	// CreateOrder returns ErrDuplicateCheckout when a pending order with the
	// same checkout key already exists. Other unique conflicts are plain errors.
	CreateOrder(ctx context.Context, order *domain.Order) error
	// UpdatePaymentStatus moves the order attached to sessionID from one status
	// to another in a single conditional write. ErrStatusConflict means the
	// order exists but is no longer in status from.
	UpdatePaymentStatus(ctx context.Context, sessionID string, from, to domain.PaymentStatus) (*domain.Order, error)
}

// CounterStore increments a named counter and returns the new value in one
// atomic operation. There is no Get/Set pair.
type CounterStore interface {
	Increment(ctx context.Context, name string) (int64, error)
}

// Store is what a backend (mongo or postgres) provides to the service.
type Store interface {
	OrderRepository
	CounterStore
	// Setup creates indexes or runs migrations.
	Setup(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
