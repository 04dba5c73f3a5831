// Package reconcile decides whether a pending order can go back to the
// provider's hosted payment page.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/tavros-checkout/internal/domain"
	"github.com/fjod/tavros-checkout/internal/payment"
	"github.com/fjod/tavros-checkout/internal/repository"
	"go.uber.org/zap"
)

type Reconciler struct {
	orders   repository.OrderFinder
	sessions payment.SessionProvider
	logger   *zap.Logger
}

func NewReconciler(orders repository.OrderFinder, sessions payment.SessionProvider, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		orders:   orders,
		sessions: sessions,
		logger:   logger,
	}
}

// ResumePayment returns Success with the provider URL or a Failure naming
// the first rule that blocks payment. Local checks run before the provider
// is called. A non-nil error is an infrastructure fault, never a Failure.
// Nothing is written.
func (r *Reconciler) ResumePayment(ctx context.Context, orderID, userID string) (Result, error) {
	order, err := r.orders.GetOrderForUser(ctx, orderID, userID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return r.fail(orderID, CodeOrderNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}

	switch order.PaymentStatus {
	case domain.PaymentStatusPaid:
		return r.fail(orderID, CodeOrderAlreadyPaid), nil
	case domain.PaymentStatusCanceled:
		return r.fail(orderID, CodeOrderCanceled), nil
	}

	if !order.HasPaymentSession() {
		return r.fail(orderID, CodeNoStripeSession), nil
	}

	session, err := r.sessions.GetSession(ctx, *order.StripeSessionID)
	if err != nil {
		return nil, fmt.Errorf("retrieve payment session for order %s: %w", orderID, err)
	}

	if session.PaymentStatus == payment.SessionPaymentStatusPaid {
		return r.fail(orderID, CodeStripeAlreadyPaid), nil
	}
	if session.Status == payment.SessionStatusExpired {
		return r.fail(orderID, CodeStripeExpired), nil
	}
	if session.URL == "" {
		return r.fail(orderID, CodeMissingURL), nil
	}

	return Success{URL: session.URL}, nil
}

func (r *Reconciler) fail(orderID string, code FailureCode) Failure {
	r.logger.Info("payment cannot be resumed",
		zap.String("order_id", orderID),
		zap.String("code", string(code)))
	return Failure{Code: code}
}
