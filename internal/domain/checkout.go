package domain

// CheckoutLine is one cart line as submitted by the client. Price and Qty are
// left untyped because they come straight from decoded JSON and may be
// numbers, numeric strings or garbage.
type CheckoutLine struct {
	ProductID *string `json:"productId,omitempty"`
	Slug      *string `json:"slug,omitempty"`
	Name      string  `json:"name,omitempty"`
	Price     any     `json:"price"`
	Qty       any     `json:"qty"`
	Size      *string `json:"size,omitempty"`
	Color     *string `json:"color,omitempty"`
}

type Address struct {
	Street     string `json:"street" bson:"street"`
	City       string `json:"city" bson:"city"`
	PostalCode string `json:"postalCode" bson:"postal_code"`
	Country    string `json:"country" bson:"country"`
}

type Customer struct {
	FirstName string   `json:"firstName" bson:"first_name"`
	LastName  string   `json:"lastName" bson:"last_name"`
	Phone     string   `json:"phone" bson:"phone"`
	Address   *Address `json:"address,omitempty" bson:"address,omitempty"`
}

// CheckoutFingerprintInput is everything that identifies a checkout attempt.
type CheckoutFingerprintInput struct {
	Email          string         `json:"email"`
	UserID         *string        `json:"userId,omitempty"`
	Items          []CheckoutLine `json:"items"`
	Customer       *Customer      `json:"customer,omitempty"`
	ShippingMethod string         `json:"shippingMethod"`
	ShippingCost   any            `json:"shippingCost"`
	Currency       string         `json:"currency"`
}
