package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerSettings struct {
	Name string
	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is how many trial requests are let through while half-open.
	HalfOpenRequests uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:                "stripe",
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
	}
}

// BreakerProvider fails fast with ErrProviderUnavailable once the wrapped
// provider keeps failing, instead of piling requests onto a dead upstream.
type BreakerProvider struct {
	next SessionProvider
	cb   *gobreaker.CircuitBreaker[*Session]
}

func NewBreakerProvider(next SessionProvider, st BreakerSettings, logger *zap.Logger) *BreakerProvider {
	settings := gobreaker.Settings{
		Name:        st.Name,
		MaxRequests: st.HalfOpenRequests,
		Timeout:     st.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// context cancellation is the caller giving up, not the provider failing
			return err == nil || IsClientError(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("payment provider circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &BreakerProvider{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[*Session](settings),
	}
}

func (b *BreakerProvider) CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error) {
	s, err := b.cb.Execute(func() (*Session, error) {
		return b.next.CreateSession(ctx, params)
	})
	return s, translateBreakerError(err)
}

func (b *BreakerProvider) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	s, err := b.cb.Execute(func() (*Session, error) {
		return b.next.GetSession(ctx, sessionID)
	})
	return s, translateBreakerError(err)
}

func (b *BreakerProvider) State() gobreaker.State {
	return b.cb.State()
}

func translateBreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return err
}
