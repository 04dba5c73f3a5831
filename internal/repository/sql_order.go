package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fjod/tavros-checkout/internal/domain"
)

// Column order shared by the SQL backends. Keep orderRow.dest in sync.
const orderColumns = `id, user_id, order_number, checkout_key, payment_status, stripe_session_id, email,
	customer, shipping_method, shipping_cost, currency, items, total_amount, created_at, updated_at`

// orderRow collects the columns of one orders row. Timestamps are scanned into
// whatever the driver hands back, so postgres passes time.Time targets and
// sqlite passes strings.
type orderRow struct {
	order        domain.Order
	sessionID    sql.NullString
	customerJSON []byte
	itemsJSON    []byte
}

func (r *orderRow) dest(createdAt, updatedAt any) []any {
	return []any{
		&r.order.ID,
		&r.order.UserID,
		&r.order.OrderNumber,
		&r.order.CheckoutKey,
		&r.order.PaymentStatus,
		&r.sessionID,
		&r.order.Email,
		&r.customerJSON,
		&r.order.ShippingMethod,
		&r.order.ShippingCost,
		&r.order.Currency,
		&r.itemsJSON,
		&r.order.TotalAmount,
		createdAt,
		updatedAt,
	}
}

func (r *orderRow) decode() (*domain.Order, error) {
	if r.sessionID.Valid {
		sid := r.sessionID.String
		r.order.StripeSessionID = &sid
	}
	if len(r.customerJSON) > 0 {
		if err := json.Unmarshal(r.customerJSON, &r.order.Customer); err != nil {
			return nil, fmt.Errorf("unmarshal order customer: %w", err)
		}
	}
	if err := json.Unmarshal(r.itemsJSON, &r.order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	order := r.order
	return &order, nil
}

// encodeOrderJSON returns the items and customer columns. customer is nil
// when the order has none so the column stays NULL.
func encodeOrderJSON(order *domain.Order) (items []byte, customer any, err error) {
	items, err = json.Marshal(order.Items)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal order items: %w", err)
	}
	if order.Customer != nil {
		customerJSON, err := json.Marshal(order.Customer)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal order customer: %w", err)
		}
		customer = string(customerJSON)
	}
	return items, customer, nil
}
