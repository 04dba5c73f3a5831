package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Checkout *CheckoutHandler
	Orders   *OrdersHandler
	Webhook  *WebhookHandler
	Auth     AuthConfig
	// RateLimiter is optional, nil disables rate limiting.
	RateLimiter    *RateLimiter
	RequestTimeout time.Duration
	Logger         *zap.Logger
	// Health is optional and reports readiness of the backing store.
	Health func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r.Context()); err != nil {
				cfg.Logger.Warn("health check failed", zap.Error(err))
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// authenticated by the stripe signature, not a user token
	r.Post("/webhooks/stripe", cfg.Webhook.HandleStripe)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Auth))
		r.Use(limit(cfg.RateLimiter))

		r.Post("/checkout", cfg.Checkout.PlaceOrder)
		r.Get("/orders/{order_id}", cfg.Orders.GetOrder)
		r.Post("/orders/{order_id}/pay", cfg.Orders.ResumePayment)
	})

	return otelhttp.NewHandler(r, "tavros-checkout")
}

func limit(l *RateLimiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return l.Middleware
}
