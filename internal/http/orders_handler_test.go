package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/tavros-checkout/internal/domain"
	"github.com/fjod/tavros-checkout/internal/payment"
	"github.com/fjod/tavros-checkout/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ordersFixture() *mockFinder {
	return &mockFinder{orders: map[string]*domain.Order{
		"O1": {
			ID:            "O1",
			UserID:        "U1",
			OrderNumber:   "TVR-000007",
			PaymentStatus: domain.PaymentStatusPending,
			Email:         "jan@example.com",
			Currency:      "pln",
			Items: []domain.OrderItem{
				{ProductID: "p1", Name: "Hoodie", Price: 199.99, Qty: 1, Size: "M"},
			},
			TotalAmount: 199.99,
			CreatedAt:   time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC),
		},
	}}
}

// --- GetOrder tests ---

func TestGetOrder_Success(t *testing.T) {
	handler := NewOrdersHandler(ordersFixture(), &mockResumer{}, 5*time.Second, zap.NewNop())
	recorder := httptest.NewRecorder()
	request := withUser(withOrderID(httptest.NewRequest("GET", "/api/v1/orders/O1", nil), "O1"), "U1")

	handler.GetOrder(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	var resp OrderResponseDTO
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
	assert.Equal(t, "O1", resp.ID)
	assert.Equal(t, "TVR-000007", resp.OrderNumber)
	assert.Equal(t, "pending", resp.PaymentStatus)
	assert.Equal(t, "2026-02-12T10:00:00Z", resp.CreatedAt)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Hoodie", resp.Items[0].Name)
}

func TestGetOrder_OtherUsersOrderIsNotFound(t *testing.T) {
	handler := NewOrdersHandler(ordersFixture(), &mockResumer{}, 5*time.Second, zap.NewNop())
	recorder := httptest.NewRecorder()
	request := withUser(withOrderID(httptest.NewRequest("GET", "/api/v1/orders/O1", nil), "O1"), "U2")

	handler.GetOrder(recorder, request)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestGetOrder_NoSessionDetailsLeak(t *testing.T) {
	finder := ordersFixture()
	sid := "cs_secret"
	finder.orders["O1"].StripeSessionID = &sid
	finder.orders["O1"].CheckoutKey = "abcdef"
	handler := NewOrdersHandler(finder, &mockResumer{}, 5*time.Second, zap.NewNop())
	recorder := httptest.NewRecorder()
	request := withUser(withOrderID(httptest.NewRequest("GET", "/api/v1/orders/O1", nil), "O1"), "U1")

	handler.GetOrder(recorder, request)

	assert.NotContains(t, recorder.Body.String(), "cs_secret")
	assert.NotContains(t, recorder.Body.String(), "abcdef")
}

func TestGetOrder_StoreError(t *testing.T) {
	handler := NewOrdersHandler(&mockFinder{err: errors.New("mongo down")}, &mockResumer{}, 5*time.Second, zap.NewNop())
	recorder := httptest.NewRecorder()
	request := withUser(withOrderID(httptest.NewRequest("GET", "/api/v1/orders/O1", nil), "O1"), "U1")

	handler.GetOrder(recorder, request)

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
}

func TestGetOrder_Unauthorized(t *testing.T) {
	handler := NewOrdersHandler(ordersFixture(), &mockResumer{}, 5*time.Second, zap.NewNop())
	recorder := httptest.NewRecorder()

	handler.GetOrder(recorder, withOrderID(httptest.NewRequest("GET", "/api/v1/orders/O1", nil), "O1"))

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

// --- ResumePayment tests ---

func TestResumePayment_Success(t *testing.T) {
	resumer := &mockResumer{result: reconcile.Success{URL: "https://pay/sess_1"}}
	handler := NewOrdersHandler(ordersFixture(), resumer, 5*time.Second, zap.NewNop())
	recorder := httptest.NewRecorder()
	request := withUser(withOrderID(httptest.NewRequest("POST", "/api/v1/orders/O1/pay", nil), "O1"), "U1")

	handler.ResumePayment(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	var resp PaymentURLResponseDTO
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
	assert.Equal(t, "https://pay/sess_1", resp.URL)
	assert.Equal(t, "O1", resumer.gotOrderID)
	assert.Equal(t, "U1", resumer.gotUserID)
}

func TestResumePayment_Failures(t *testing.T) {
	codes := []reconcile.FailureCode{
		reconcile.CodeOrderNotFound,
		reconcile.CodeOrderAlreadyPaid,
		reconcile.CodeOrderCanceled,
		reconcile.CodeNoStripeSession,
		reconcile.CodeStripeAlreadyPaid,
		reconcile.CodeStripeExpired,
		reconcile.CodeMissingURL,
	}
	for _, code := range codes {
		t.Run(string(code), func(t *testing.T) {
			failure := reconcile.Failure{Code: code}
			handler := NewOrdersHandler(ordersFixture(), &mockResumer{result: failure}, 5*time.Second, zap.NewNop())
			recorder := httptest.NewRecorder()
			request := withUser(withOrderID(httptest.NewRequest("POST", "/api/v1/orders/O1/pay", nil), "O1"), "U1")

			handler.ResumePayment(recorder, request)

			assert.Equal(t, failure.HTTPStatus(), recorder.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
			assert.Equal(t, string(code), resp.Code)
			assert.Equal(t, failure.Message(), resp.Error)
		})
	}
}

func TestResumePayment_InfrastructureErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"provider unavailable", payment.ErrProviderUnavailable, http.StatusServiceUnavailable},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewOrdersHandler(ordersFixture(), &mockResumer{err: tt.err}, 5*time.Second, zap.NewNop())
			recorder := httptest.NewRecorder()
			request := withUser(withOrderID(httptest.NewRequest("POST", "/api/v1/orders/O1/pay", nil), "O1"), "U1")

			handler.ResumePayment(recorder, request)

			assert.Equal(t, tt.status, recorder.Code)
		})
	}
}
