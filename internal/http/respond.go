package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/tavros-checkout/internal/payment"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// respondInternalError maps infrastructure failures to 5xx. Details are
// logged, never returned.
func respondInternalError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, payment.ErrProviderUnavailable):
		respondError(w, http.StatusServiceUnavailable, "payment_provider_unavailable", "payment provider is temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	case errors.Is(err, context.Canceled):
		// client went away, nobody reads this
		respondError(w, http.StatusServiceUnavailable, "canceled", "request canceled")
	default:
		log.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
