package cache

import (
	"context"
	"errors"
)

// CheckoutCache maps a checkout fingerprint to the id of the order it created.
type CheckoutCache interface {
	Get(ctx context.Context, checkoutKey string) (string, error)
	Set(ctx context.Context, checkoutKey, orderID string) error
	Delete(ctx context.Context, checkoutKey string) error
}

var ErrCacheMiss = errors.New("cache miss")
