package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/tavros-checkout/internal/logger"
	"github.com/fjod/tavros-checkout/internal/service"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"
)

const maxWebhookBodySize = 64 << 10

type PaymentEventApplier interface {
	ApplyPaymentEvent(ctx context.Context, event service.PaymentEvent) error
}

type WebhookHandler struct {
	secret  string
	events  PaymentEventApplier
	timeout time.Duration
	logger  *zap.Logger
}

func NewWebhookHandler(secret string, events PaymentEventApplier, timeout time.Duration, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret:  secret,
		events:  events,
		timeout: timeout,
		logger:  log,
	}
}

// POST /webhooks/stripe
func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	log := logger.FromContext(ctx, h.logger)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "cannot read body")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		log.Warn("stripe webhook rejected", zap.Error(err))
		respondError(w, http.StatusBadRequest, "invalid_signature", "webhook signature verification failed")
		return
	}

	pe := service.PaymentEvent{ID: event.ID, Type: string(event.Type)}
	if strings.HasPrefix(pe.Type, "checkout.session.") && event.Data != nil {
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			log.Warn("stripe webhook payload is not a checkout session", zap.String("event_id", event.ID), zap.Error(err))
			respondError(w, http.StatusBadRequest, "invalid_payload", "cannot parse checkout session")
			return
		}
		pe.SessionID = session.ID
		pe.PaymentStatus = string(session.PaymentStatus)
	}

	if err := h.events.ApplyPaymentEvent(ctx, pe); err != nil {
		if errors.Is(err, service.ErrInvalidPaymentEvent) {
			respondError(w, http.StatusBadRequest, "invalid_payload", err.Error())
			return
		}
		// non-2xx makes stripe redeliver
		respondInternalError(w, log.With(zap.String("event_id", event.ID)), err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}
