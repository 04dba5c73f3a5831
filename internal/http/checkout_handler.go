package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/tavros-checkout/internal/logger"
	"github.com/fjod/tavros-checkout/internal/payment"
	"github.com/fjod/tavros-checkout/internal/service"
	"go.uber.org/zap"
)

const maxRequestBodySize = 1 << 20 // 1MB

type CheckoutPlacer interface {
	PlaceOrder(ctx context.Context, userID string, req service.CheckoutRequest) (*service.PlaceOrderResult, error)
}

type CheckoutHandler struct {
	checkout CheckoutPlacer
	timeout  time.Duration
	logger   *zap.Logger
}

func NewCheckoutHandler(checkout CheckoutPlacer, timeout time.Duration, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		timeout:  timeout,
		logger:   log,
	}
}

type CheckoutResponseDTO struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	PaymentStatus string `json:"payment_status"`
	PaymentURL    string `json:"payment_url,omitempty"`
	Duplicate     bool   `json:"duplicate"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req service.CheckoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	res, err := h.checkout.PlaceOrder(ctx, userID, req)
	if err != nil {
		log := logger.FromContext(ctx, h.logger)
		switch {
		case errors.Is(err, service.ErrInvalidCheckout):
			respondJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "invalid checkout",
				Code:    "invalid_checkout",
				Details: err.Error(),
			})
		case payment.IsClientError(err):
			log.Warn("payment provider rejected session", zap.Error(err))
			respondError(w, http.StatusBadRequest, "payment_rejected", "payment provider rejected the checkout")
		default:
			respondInternalError(w, log, err)
		}
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	respondJSON(w, status, CheckoutResponseDTO{
		OrderID:       res.Order.ID,
		OrderNumber:   res.Order.OrderNumber,
		PaymentStatus: res.Order.PaymentStatus.String(),
		PaymentURL:    res.PaymentURL,
		Duplicate:     res.Duplicate,
	})
}
