package domain

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusCanceled PaymentStatus = "canceled"
)

var validTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusPaid, PaymentStatusCanceled},
}

// CanTransitionTo reports whether an order may move from current to next.
// Paid and canceled are terminal.
func CanTransitionTo(current, next PaymentStatus) bool {
	for _, s := range validTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusCanceled
}

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusCanceled:
		return true
	}
	return false
}

// String representation (for logging)
func (s PaymentStatus) String() string {
	return string(s)
}
