package reconcile

import "net/http"

type FailureCode string

const (
	CodeOrderNotFound     FailureCode = "ORDER_NOT_FOUND"
	CodeOrderAlreadyPaid  FailureCode = "ORDER_ALREADY_PAID"
	CodeOrderCanceled     FailureCode = "ORDER_CANCELED"
	CodeNoStripeSession   FailureCode = "NO_STRIPE_SESSION"
	CodeStripeAlreadyPaid FailureCode = "STRIPE_ALREADY_PAID"
	CodeStripeExpired     FailureCode = "STRIPE_EXPIRED"
	CodeMissingURL        FailureCode = "MISSING_URL"
)

var failureDetails = map[FailureCode]struct {
	status  int
	message string
}{
	CodeOrderNotFound:     {http.StatusNotFound, "order not found"},
	CodeOrderAlreadyPaid:  {http.StatusBadRequest, "order is already paid"},
	CodeOrderCanceled:     {http.StatusBadRequest, "order has been canceled"},
	CodeNoStripeSession:   {http.StatusBadRequest, "order has no payment session"},
	CodeStripeAlreadyPaid: {http.StatusBadRequest, "payment for this order has already been received"},
	CodeStripeExpired:     {http.StatusBadRequest, "payment session has expired"},
	CodeMissingURL:        {http.StatusBadRequest, "payment session cannot be resumed"},
}

// Result is either Success or Failure. Switch on the concrete type:
//
//	switch r := res.(type) {
//	case reconcile.Success:
//	case reconcile.Failure:
//	}
type Result interface {
	isResult()
}

type Success struct {
	URL string
}

func (Success) isResult() {}

// Failure is a business-rule refusal. It is shown to the user as is and
// must not be retried.
type Failure struct {
	Code FailureCode
}

func (Failure) isResult() {}

func (f Failure) Message() string {
	return failureDetails[f.Code].message
}

// HTTPStatus is 404 for a missing order and 400 for everything else.
func (f Failure) HTTPStatus() int {
	if d, ok := failureDetails[f.Code]; ok {
		return d.status
	}
	return http.StatusBadRequest
}

func (f Failure) Error() string {
	return string(f.Code) + ": " + f.Message()
}
