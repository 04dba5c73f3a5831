package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
)

type StripeProvider struct {
	api     *client.API
	timeout time.Duration
}

func NewStripeProvider(secretKey string, timeout time.Duration) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return newStripeProvider(api, timeout)
}

func newStripeProvider(api *client.API, timeout time.Duration) *StripeProvider {
	return &StripeProvider{
		api:     api,
		timeout: timeout,
	}
}

func (p *StripeProvider) CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	sp := buildSessionParams(params)
	sp.Context = callCtx

	s, err := p.api.CheckoutSessions.New(sp)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return fromStripeSession(s), nil
}

func (p *StripeProvider) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	sp := &stripe.CheckoutSessionParams{}
	sp.Context = callCtx

	s, err := p.api.CheckoutSessions.Get(sessionID, sp)
	if err != nil {
		return nil, fmt.Errorf("get checkout session %s: %w", sessionID, err)
	}
	return fromStripeSession(s), nil
}

func buildSessionParams(params CreateSessionParams) *stripe.CheckoutSessionParams {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(params.LineItems))
	for _, li := range params.LineItems {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(params.Currency),
				UnitAmount: stripe.Int64(li.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(li.Name),
				},
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}

	sp := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         lineItems,
		SuccessURL:        stripe.String(params.SuccessURL),
		CancelURL:         stripe.String(params.CancelURL),
		ClientReferenceID: stripe.String(params.OrderID),
	}
	if params.CustomerEmail != "" {
		sp.CustomerEmail = stripe.String(params.CustomerEmail)
	}
	sp.AddMetadata("order_id", params.OrderID)
	sp.AddMetadata("order_number", params.OrderNumber)
	sp.AddMetadata("checkout_key", params.CheckoutKey)
	// a network retry of the same create returns the same session
	sp.SetIdempotencyKey("order-" + params.OrderID)
	return sp
}

func fromStripeSession(s *stripe.CheckoutSession) *Session {
	return &Session{
		ID:            s.ID,
		Status:        SessionStatus(s.Status),
		PaymentStatus: SessionPaymentStatus(s.PaymentStatus),
		URL:           s.URL,
		Metadata:      s.Metadata,
	}
}

// IsClientError reports whether err is a 4xx from the provider. Those are
// answers, not outages, and must not trip the circuit breaker.
func IsClientError(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode >= http.StatusBadRequest &&
			stripeErr.HTTPStatusCode < http.StatusInternalServerError &&
			stripeErr.HTTPStatusCode != http.StatusTooManyRequests
	}
	return false
}
