package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/fjod/tavros-checkout/internal/domain"
	"github.com/fjod/tavros-checkout/internal/reconcile"
	"github.com/fjod/tavros-checkout/internal/repository"
	"github.com/fjod/tavros-checkout/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type mockPlacer struct {
	result *service.PlaceOrderResult
	err    error

	gotUserID string
	gotReq    service.CheckoutRequest
}

func (m *mockPlacer) PlaceOrder(_ context.Context, userID string, req service.CheckoutRequest) (*service.PlaceOrderResult, error) {
	m.gotUserID = userID
	m.gotReq = req
	return m.result, m.err
}

type mockResumer struct {
	result reconcile.Result
	err    error

	gotOrderID string
	gotUserID  string
}

func (m *mockResumer) ResumePayment(_ context.Context, orderID, userID string) (reconcile.Result, error) {
	m.gotOrderID = orderID
	m.gotUserID = userID
	return m.result, m.err
}

type mockFinder struct {
	orders map[string]*domain.Order
	err    error
}

func (m *mockFinder) GetOrderForUser(_ context.Context, orderID, userID string) (*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	o, ok := m.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	return o, nil
}

type mockApplier struct {
	events []service.PaymentEvent
	err    error
}

func (m *mockApplier) ApplyPaymentEvent(_ context.Context, e service.PaymentEvent) error {
	m.events = append(m.events, e)
	return m.err
}

// --- helper ---

func withUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(withUserID(r.Context(), userID))
}

func withOrderID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("order_id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func signToken(t *testing.T, claims jwt.Claims, method jwt.SigningMethod, key any) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func userToken(t *testing.T, sub string) string {
	return signToken(t, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, jwt.SigningMethodHS256, testSecret)
}
