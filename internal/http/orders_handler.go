package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/tavros-checkout/internal/domain"
	"github.com/fjod/tavros-checkout/internal/logger"
	"github.com/fjod/tavros-checkout/internal/reconcile"
	"github.com/fjod/tavros-checkout/internal/repository"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type PaymentResumer interface {
	ResumePayment(ctx context.Context, orderID, userID string) (reconcile.Result, error)
}

type OrdersHandler struct {
	orders  repository.OrderFinder
	resumer PaymentResumer
	timeout time.Duration
	logger  *zap.Logger
}

func NewOrdersHandler(orders repository.OrderFinder, resumer PaymentResumer, timeout time.Duration, log *zap.Logger) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		resumer: resumer,
		timeout: timeout,
		logger:  log,
	}
}

type OrderItemDTO struct {
	ProductID string  `json:"product_id,omitempty"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Size      string  `json:"size,omitempty"`
	Color     string  `json:"color,omitempty"`
}

type OrderResponseDTO struct {
	ID             string         `json:"id"`
	OrderNumber    string         `json:"order_number"`
	PaymentStatus  string         `json:"payment_status"`
	Email          string         `json:"email"`
	ShippingMethod string         `json:"shipping_method"`
	ShippingCost   float64        `json:"shipping_cost"`
	TotalAmount    float64        `json:"total_amount"`
	Currency       string         `json:"currency"`
	Items          []OrderItemDTO `json:"items"`
	CreatedAt      string         `json:"created_at"`
}

type PaymentURLResponseDTO struct {
	URL string `json:"url"`
}

func convertOrder(o *domain.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Qty,
			Price:     it.Price,
			Size:      it.Size,
			Color:     it.Color,
		})
	}

	return OrderResponseDTO{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		PaymentStatus:  o.PaymentStatus.String(),
		Email:          o.Email,
		ShippingMethod: o.ShippingMethod,
		ShippingCost:   o.ShippingCost,
		TotalAmount:    o.TotalAmount,
		Currency:       o.Currency,
		Items:          items,
		CreatedAt:      o.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orderID := chi.URLParam(r, "order_id")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return
	}

	order, err := h.orders.GetOrderForUser(ctx, orderID, userID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		respondError(w, http.StatusNotFound, string(reconcile.CodeOrderNotFound), "order not found")
		return
	}
	if err != nil {
		respondInternalError(w, logger.FromContext(ctx, h.logger), err)
		return
	}

	respondJSON(w, http.StatusOK, convertOrder(order))
}

// POST /api/v1/orders/{order_id}/pay
func (h *OrdersHandler) ResumePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orderID := chi.URLParam(r, "order_id")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return
	}

	res, err := h.resumer.ResumePayment(ctx, orderID, userID)
	if err != nil {
		respondInternalError(w, logger.FromContext(ctx, h.logger), err)
		return
	}

	switch out := res.(type) {
	case reconcile.Success:
		respondJSON(w, http.StatusOK, PaymentURLResponseDTO{URL: out.URL})
	case reconcile.Failure:
		respondError(w, out.HTTPStatus(), string(out.Code), out.Message())
	default:
		respondInternalError(w, logger.FromContext(ctx, h.logger), errors.New("unknown reconcile result"))
	}
}
