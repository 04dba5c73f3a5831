package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fjod/tavros-checkout/internal/domain"
	"github.com/fjod/tavros-checkout/internal/payment"
	"github.com/fjod/tavros-checkout/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

const checkoutBody = `{
	"email": "jan@example.com",
	"items": [{"productId": "p1", "slug": "hoodie", "price": 199.99, "qty": 1, "size": "M"}],
	"shippingMethod": "inpost",
	"shippingCost": 14.99,
	"currency": "pln"
}`

func placedOrder() *domain.Order {
	return &domain.Order{
		ID:            "order-1",
		UserID:        "user-1",
		OrderNumber:   "TVR-000001",
		PaymentStatus: domain.PaymentStatusPending,
	}
}

func TestPlaceOrder_Created(t *testing.T) {
	mock := &mockPlacer{result: &service.PlaceOrderResult{
		Order:      placedOrder(),
		PaymentURL: "https://checkout.stripe.test/cs_1",
	}}
	handler := NewCheckoutHandler(mock, 5*time.Second, zap.NewNop())
	recorder := httptest.NewRecorder()
	request := withUser(httptest.NewRequest("POST", "/api/v1/checkout", strings.NewReader(checkoutBody)), "user-1")

	handler.PlaceOrder(recorder, request)

	require.Equal(t, http.StatusCreated, recorder.Code)
	var resp CheckoutResponseDTO
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
	assert.Equal(t, CheckoutResponseDTO{
		OrderID:       "order-1",
		OrderNumber:   "TVR-000001",
		PaymentStatus: "pending",
		PaymentURL:    "https://checkout.stripe.test/cs_1",
	}, resp)

	assert.Equal(t, "user-1", mock.gotUserID)
	assert.Equal(t, "jan@example.com", mock.gotReq.Email)
	require.Len(t, mock.gotReq.Items, 1)
	assert.Equal(t, 199.99, mock.gotReq.Items[0].Price)
}

func TestPlaceOrder_DuplicateIsOK(t *testing.T) {
	mock := &mockPlacer{result: &service.PlaceOrderResult{Order: placedOrder(), Duplicate: true}}
	handler := NewCheckoutHandler(mock, 5*time.Second, zap.NewNop())
	recorder := httptest.NewRecorder()
	request := withUser(httptest.NewRequest("POST", "/api/v1/checkout", strings.NewReader(checkoutBody)), "user-1")

	handler.PlaceOrder(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
	assert.Equal(t, true, resp["duplicate"])
	assert.NotContains(t, resp, "payment_url")
}

func TestPlaceOrder_Unauthorized(t *testing.T) {
	handler := NewCheckoutHandler(&mockPlacer{}, 5*time.Second, zap.NewNop())
	recorder := httptest.NewRecorder()

	handler.PlaceOrder(recorder, httptest.NewRequest("POST", "/api/v1/checkout", strings.NewReader(checkoutBody)))

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestPlaceOrder_InvalidJSON(t *testing.T) {
	handler := NewCheckoutHandler(&mockPlacer{}, 5*time.Second, zap.NewNop())
	recorder := httptest.NewRecorder()
	request := withUser(httptest.NewRequest("POST", "/api/v1/checkout", strings.NewReader("{")), "user-1")

	handler.PlaceOrder(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
	assert.Equal(t, "invalid_request", resp.Code)
}

func TestPlaceOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", fmt.Errorf("%w: email is required", service.ErrInvalidCheckout), http.StatusBadRequest, "invalid_checkout"},
		{"provider rejected", &stripe.Error{HTTPStatusCode: http.StatusBadRequest, Msg: "bad currency"}, http.StatusBadRequest, "payment_rejected"},
		{"breaker open", fmt.Errorf("create session: %w", payment.ErrProviderUnavailable), http.StatusServiceUnavailable, "payment_provider_unavailable"},
		{"store down", errors.New("connection refused"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewCheckoutHandler(&mockPlacer{err: tt.err}, 5*time.Second, zap.NewNop())
			recorder := httptest.NewRecorder()
			request := withUser(httptest.NewRequest("POST", "/api/v1/checkout", strings.NewReader(checkoutBody)), "user-1")

			handler.PlaceOrder(recorder, request)

			assert.Equal(t, tt.status, recorder.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestPlaceOrder_ValidationDetails(t *testing.T) {
	err := fmt.Errorf("%w: items[0].qty must be a positive integer", service.ErrInvalidCheckout)
	handler := NewCheckoutHandler(&mockPlacer{err: err}, 5*time.Second, zap.NewNop())
	recorder := httptest.NewRecorder()
	request := withUser(httptest.NewRequest("POST", "/api/v1/checkout", strings.NewReader(checkoutBody)), "user-1")

	handler.PlaceOrder(recorder, request)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
	assert.Contains(t, resp.Details, "items[0].qty")
}
