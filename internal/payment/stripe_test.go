package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
)

// setupStripe points a stripe client at a local fake API.
func setupStripe(t *testing.T, handler http.HandlerFunc) *StripeProvider {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	api := &client.API{}
	api.Init("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	return newStripeProvider(api, 5*time.Second)
}

func TestStripeProvider_GetSession(t *testing.T) {
	sut := setupStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/checkout/sessions/cs_test_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cs_test_1",
			"object": "checkout.session",
			"status": "open",
			"payment_status": "unpaid",
			"url": "https://checkout.stripe.com/c/pay/cs_test_1",
			"metadata": {"order_number": "TVR-000007"}
		}`))
	})

	s, err := sut.GetSession(context.Background(), "cs_test_1")

	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", s.ID)
	assert.Equal(t, SessionStatusOpen, s.Status)
	assert.Equal(t, SessionPaymentStatusUnpaid, s.PaymentStatus)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", s.URL)
	assert.Equal(t, "TVR-000007", s.Metadata["order_number"])
}

func TestStripeProvider_GetSession_NotFound(t *testing.T) {
	sut := setupStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"type": "invalid_request_error", "code": "resource_missing",
			"message": "No such checkout.session: 'cs_missing'"}}`))
	})

	_, err := sut.GetSession(context.Background(), "cs_missing")

	require.Error(t, err)
	assert.True(t, IsClientError(err))
}

func TestStripeProvider_CreateSession(t *testing.T) {
	sut := setupStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "order-ord-1", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, r.ParseForm())

		assert.Equal(t, "payment", r.PostForm.Get("mode"))
		assert.Equal(t, "ord-1", r.PostForm.Get("client_reference_id"))
		assert.Equal(t, "jan@example.com", r.PostForm.Get("customer_email"))
		assert.Equal(t, "TVR-000001", r.PostForm.Get("metadata[order_number]"))
		assert.Equal(t, "pln", r.PostForm.Get("line_items[0][price_data][currency]"))
		assert.Equal(t, "19999", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "hoodie", r.PostForm.Get("line_items[0][price_data][product_data][name]"))
		assert.Equal(t, "2", r.PostForm.Get("line_items[0][quantity]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "cs_test_new", "object": "checkout.session", "status": "open",
			"payment_status": "unpaid", "url": "https://checkout.stripe.com/c/pay/cs_test_new"}`))
	})

	s, err := sut.CreateSession(context.Background(), CreateSessionParams{
		OrderID:       "ord-1",
		OrderNumber:   "TVR-000001",
		CheckoutKey:   "abc",
		CustomerEmail: "jan@example.com",
		Currency:      "pln",
		LineItems:     []LineItem{{Name: "hoodie", UnitAmount: 19999, Quantity: 2}},
		SuccessURL:    "https://shop.example/success",
		CancelURL:     "https://shop.example/cart",
	})

	require.NoError(t, err)
	assert.Equal(t, "cs_test_new", s.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_new", s.URL)
}

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		amount   float64
		currency string
		want     int64
	}{
		{199.99, "pln", 19999},
		{14.99, "usd", 1499},
		{0, "eur", 0},
		{0.005, "eur", 1},
		{1500, "jpy", 1500},
		{1500, " JPY ", 1500},
		{25000, "krw", 25000},
		{12.345, "kwd", 12350},
		{1.5, "bhd", 1500},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ToMinorUnits(tt.amount, tt.currency), "%v %s", tt.amount, tt.currency)
	}
}

func TestIsZeroDecimal(t *testing.T) {
	assert.True(t, IsZeroDecimal("jpy"))
	assert.True(t, IsZeroDecimal("VND"))
	assert.False(t, IsZeroDecimal("pln"))
	assert.False(t, IsZeroDecimal("kwd"))
}
