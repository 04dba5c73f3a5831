// Package ordernumber hands out human readable order numbers (TVR-000042)
// backed by an atomically incremented counter in the store.
package ordernumber

import (
	"context"
	"fmt"

	"github.com/fjod/tavros-checkout/internal/repository"
)

const (
	Prefix = "TVR-"
	Width  = 6
)

type Allocator struct {
	counters repository.CounterStore
	name     string
}

func NewAllocator(counters repository.CounterStore) *Allocator {
	return &Allocator{
		counters: counters,
		name:     repository.OrderCounterName,
	}
}

// Next allocates the next order number. The only store call is the atomic
// increment; if it fails the error is returned and no number is made up.
// Calling Next twice for one order wastes a value but never repeats one.
func (a *Allocator) Next(ctx context.Context) (string, error) {
	seq, err := a.counters.Increment(ctx, a.name)
	if err != nil {
		return "", fmt.Errorf("allocate order number: %w", err)
	}
	if seq < 1 {
		return "", fmt.Errorf("allocate order number: counter %q returned %d", a.name, seq)
	}
	return Format(seq), nil
}

// Format renders seq as TVR-NNNNNN. Values wider than six digits are kept whole.
func Format(seq int64) string {
	return fmt.Sprintf("%s%0*d", Prefix, Width, seq)
}
