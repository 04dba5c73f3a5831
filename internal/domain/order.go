package domain

import "time"

type OrderItem struct {
	ProductID string  `bson:"product_id,omitempty" json:"product_id,omitempty"`
	Slug      string  `bson:"slug,omitempty" json:"slug,omitempty"`
	Name      string  `bson:"name,omitempty" json:"name,omitempty"`
	Price     float64 `bson:"price" json:"price"`
	Qty       int     `bson:"qty" json:"qty"`
	Size      string  `bson:"size,omitempty" json:"size,omitempty"`
	Color     string  `bson:"color,omitempty" json:"color,omitempty"`
}

func (i OrderItem) Subtotal() float64 {
	return i.Price * float64(i.Qty)
}

// Order is owned by exactly one user. StripeSessionID is written once, at creation.
type Order struct {
	ID              string        `bson:"_id" json:"id"`
	UserID          string        `bson:"user_id" json:"user_id"`
	OrderNumber     string        `bson:"order_number" json:"order_number"`
	CheckoutKey     string        `bson:"checkout_key" json:"-"`
	PaymentStatus   PaymentStatus `bson:"payment_status" json:"payment_status"`
	StripeSessionID *string       `bson:"stripe_session_id" json:"-"`
	Email           string        `bson:"email" json:"email"`
	Customer        *Customer     `bson:"customer,omitempty" json:"customer,omitempty"`
	ShippingMethod  string        `bson:"shipping_method" json:"shipping_method"`
	ShippingCost    float64       `bson:"shipping_cost" json:"shipping_cost"`
	Currency        string        `bson:"currency" json:"currency"`
	Items           []OrderItem   `bson:"items" json:"items"`
	TotalAmount     float64       `bson:"total_amount" json:"total_amount"`
	CreatedAt       time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `bson:"updated_at" json:"updated_at"`
}

// HasPaymentSession reports whether a provider session was attached at creation.
func (o *Order) HasPaymentSession() bool {
	return o.StripeSessionID != nil && *o.StripeSessionID != ""
}

// OrderCounter is the singleton sequence record behind order numbers.
type OrderCounter struct {
	Name string `bson:"name"`
	Seq  int64  `bson:"seq"`
}
