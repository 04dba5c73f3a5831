package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/tavros-checkout/internal/domain"
)

const (
	EventOrderCreated         = "OrderCreated"
	EventPaymentStatusChanged = "PaymentStatusChanged"
)

// Event is one message on the checkout topic. AggregateID is the order id and
// becomes the Kafka key so events of one order stay ordered.
type Event struct {
	Type        string
	AggregateID string
	Payload     json.RawMessage
}

type orderPayload struct {
	OrderID       string             `json:"order_id"`
	OrderNumber   string             `json:"order_number"`
	UserID        string             `json:"user_id"`
	PaymentStatus string             `json:"payment_status"`
	Items         []domain.OrderItem `json:"items,omitempty"`
	TotalAmount   float64            `json:"total_amount"`
	Currency      string             `json:"currency"`
	OccurredAt    time.Time          `json:"occurred_at"`
}

func OrderCreated(order *domain.Order) (Event, error) {
	return orderEvent(EventOrderCreated, order, true)
}

func PaymentStatusChanged(order *domain.Order) (Event, error) {
	return orderEvent(EventPaymentStatusChanged, order, false)
}

func orderEvent(eventType string, order *domain.Order, withItems bool) (Event, error) {
	p := orderPayload{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		PaymentStatus: order.PaymentStatus.String(),
		TotalAmount:   order.TotalAmount,
		Currency:      order.Currency,
		OccurredAt:    order.UpdatedAt.UTC(),
	}
	if withItems {
		p.Items = order.Items
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, AggregateID: order.ID, Payload: payload}, nil
}
