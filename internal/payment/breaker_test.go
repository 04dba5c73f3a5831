package payment

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

type fakeProvider struct {
	session *Session
	err     error
	calls   int
}

func (f *fakeProvider) CreateSession(context.Context, CreateSessionParams) (*Session, error) {
	f.calls++
	return f.session, f.err
}

func (f *fakeProvider) GetSession(context.Context, string) (*Session, error) {
	f.calls++
	return f.session, f.err
}

func testSettings() BreakerSettings {
	return BreakerSettings{
		Name:                "test",
		ConsecutiveFailures: 2,
		OpenTimeout:         time.Minute,
		HalfOpenRequests:    1,
	}
}

func TestBreakerProvider_PassesThrough(t *testing.T) {
	fake := &fakeProvider{session: &Session{ID: "cs_1", Status: SessionStatusOpen}}
	sut := NewBreakerProvider(fake, testSettings(), zap.NewNop())

	s, err := sut.GetSession(context.Background(), "cs_1")

	require.NoError(t, err)
	assert.Equal(t, "cs_1", s.ID)
	assert.Equal(t, gobreaker.StateClosed, sut.State())
}

func TestBreakerProvider_OpensAfterConsecutiveFailures(t *testing.T) {
	fake := &fakeProvider{err: errors.New("connection refused")}
	sut := NewBreakerProvider(fake, testSettings(), zap.NewNop())
	ctx := context.Background()

	_, err := sut.GetSession(ctx, "cs_1")
	assert.NotErrorIs(t, err, ErrProviderUnavailable)
	_, err = sut.GetSession(ctx, "cs_1")
	assert.NotErrorIs(t, err, ErrProviderUnavailable)

	_, err = sut.CreateSession(ctx, CreateSessionParams{})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 2, fake.calls, "open breaker must not reach the provider")
	assert.Equal(t, gobreaker.StateOpen, sut.State())
}

func TestBreakerProvider_ClientErrorsDoNotTrip(t *testing.T) {
	notFound := &stripe.Error{HTTPStatusCode: http.StatusNotFound, Code: stripe.ErrorCodeResourceMissing}
	fake := &fakeProvider{err: notFound}
	sut := NewBreakerProvider(fake, testSettings(), zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := sut.GetSession(context.Background(), "cs_missing")
		assert.ErrorIs(t, err, notFound)
	}
	assert.Equal(t, 5, fake.calls)
	assert.Equal(t, gobreaker.StateClosed, sut.State())
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(&stripe.Error{HTTPStatusCode: http.StatusBadRequest}))
	assert.False(t, IsClientError(&stripe.Error{HTTPStatusCode: http.StatusTooManyRequests}))
	assert.False(t, IsClientError(&stripe.Error{HTTPStatusCode: http.StatusBadGateway}))
	assert.False(t, IsClientError(errors.New("dial tcp: timeout")))
}
