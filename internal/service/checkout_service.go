package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fjod/tavros-checkout/internal/cache"
	"github.com/fjod/tavros-checkout/internal/domain"
	"github.com/fjod/tavros-checkout/internal/fingerprint"
	"github.com/fjod/tavros-checkout/internal/logger"
	"github.com/fjod/tavros-checkout/internal/payment"
	"github.com/fjod/tavros-checkout/internal/publisher"
	"github.com/fjod/tavros-checkout/internal/reconcile"
	"github.com/fjod/tavros-checkout/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrInvalidCheckout = errors.New("invalid checkout")

// OrderIDPlaceholder in redirect URLs is replaced with the new order's id.
const OrderIDPlaceholder = "{ORDER_ID}"

const defaultFlightTimeout = 30 * time.Second

type CheckoutRequest struct {
	Email          string                `json:"email"`
	Items          []domain.CheckoutLine `json:"items"`
	Customer       *domain.Customer      `json:"customer,omitempty"`
	ShippingMethod string                `json:"shippingMethod"`
	ShippingCost   any                   `json:"shippingCost"`
	Currency       string                `json:"currency"`
}

type PlaceOrderResult struct {
	Order      *domain.Order
	PaymentURL string
	// Duplicate is set when the checkout matched an existing order.
	Duplicate bool
}

type NumberAllocator interface {
	Next(ctx context.Context) (string, error)
}

type PaymentResumer interface {
	ResumePayment(ctx context.Context, orderID, userID string) (reconcile.Result, error)
}

type RedirectURLs struct {
	Success string
	Cancel  string
}

type CheckoutService struct {
	repo          repository.OrderRepository
	numbers       NumberAllocator
	sessions      payment.SessionProvider
	resumer       PaymentResumer
	cache         cache.CheckoutCache
	publisher     publisher.EventPublisher
	urls          RedirectURLs
	logger        *zap.Logger
	sfg           singleflight.Group // collapses concurrent identical submissions
	flightTimeout time.Duration      // bounds a shared PlaceOrder run, which ignores caller cancellation
	now           func() time.Time
	newID         func() string
}

func NewCheckoutService(
	repo repository.OrderRepository,
	numbers NumberAllocator,
	sessions payment.SessionProvider,
	resumer PaymentResumer,
	checkoutCache cache.CheckoutCache,
	events publisher.EventPublisher,
	urls RedirectURLs,
	log *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		repo:          repo,
		numbers:       numbers,
		sessions:      sessions,
		resumer:       resumer,
		cache:         checkoutCache,
		publisher:     events,
		urls:          urls,
		logger:        log,
		flightTimeout: defaultFlightTimeout,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// PlaceOrder turns a checkout into a pending order with a payment session.
// Submitting the same checkout while its order is still pending returns that
// order instead of a new one. Once it is paid or canceled the cart can be
// ordered again.
func (s *CheckoutService) PlaceOrder(ctx context.Context, userID string, req CheckoutRequest) (*PlaceOrderResult, error) {
	items, err := validate(userID, req)
	if err != nil {
		return nil, err
	}

	uid := userID
	key := fingerprint.ComputeCheckoutKey(domain.CheckoutFingerprintInput{
		Email:          req.Email,
		UserID:         &uid,
		Items:          req.Items,
		Customer:       req.Customer,
		ShippingMethod: req.ShippingMethod,
		ShippingCost:   req.ShippingCost,
		Currency:       req.Currency,
	})

	// The shared call outlives any single caller: one client going away must
	// not fail the others waiting on the same key.
	ch := s.sfg.DoChan(key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightTimeout)
		defer cancel()
		return s.placeOrder(flightCtx, userID, key, req, items)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*PlaceOrderResult), nil
	}
}

func (s *CheckoutService) placeOrder(ctx context.Context, userID, key string, req CheckoutRequest, items []domain.OrderItem) (*PlaceOrderResult, error) {
	log := logger.FromContext(ctx, s.logger).With(zap.String("checkout_key", key))

	if existing := s.lookupExisting(ctx, log, userID, key); existing != nil {
		return s.duplicate(ctx, log, existing), nil
	}

	orderNumber, err := s.numbers.Next(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &domain.Order{
		ID:             s.newID(),
		UserID:         userID,
		OrderNumber:    orderNumber,
		CheckoutKey:    key,
		PaymentStatus:  domain.PaymentStatusPending,
		Email:          strings.TrimSpace(req.Email),
		Customer:       req.Customer,
		ShippingMethod: strings.TrimSpace(req.ShippingMethod),
		ShippingCost:   roundAmount(fingerprint.ToNumber(req.ShippingCost)),
		Currency:       strings.ToLower(strings.TrimSpace(req.Currency)),
		Items:          items,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	order.TotalAmount = orderTotal(order)

	session, err := s.sessions.CreateSession(ctx, s.sessionParams(order))
	if err != nil {
		return nil, fmt.Errorf("create payment session for order %s: %w", order.OrderNumber, err)
	}
	sessionID := session.ID
	order.StripeSessionID = &sessionID

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		if !errors.Is(err, repository.ErrDuplicateCheckout) {
			return nil, fmt.Errorf("create order %s: %w", order.OrderNumber, err)
		}
		// another instance stored the same checkout first
		winner, errFind := s.repo.FindByCheckoutKey(ctx, key)
		if errFind != nil {
			return nil, fmt.Errorf("load order for duplicate checkout: %w", errFind)
		}
		log.Info("checkout lost create race", zap.String("order_id", winner.ID),
			zap.String("orphaned_session", sessionID))
		s.remember(ctx, log, key, winner.ID)
		return s.duplicate(ctx, log, winner), nil
	}

	log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", userID),
	)
	s.remember(ctx, log, key, order.ID)
	s.publish(ctx, log, publisher.OrderCreated, order)

	return &PlaceOrderResult{Order: order, PaymentURL: session.URL}, nil
}

// lookupExisting finds the pending order for key, checking the cache and then
// the store. Cache errors are logged and fall through to the store; store
// errors other than not-found are logged and treated as a miss so the unique
// index decides.
func (s *CheckoutService) lookupExisting(ctx context.Context, log *zap.Logger, userID, key string) *domain.Order {
	orderID, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		order, errGet := s.repo.GetOrderForUser(ctx, orderID, userID)
		switch {
		case errGet != nil:
			log.Warn("cached checkout points at missing order", zap.String("order_id", orderID), zap.Error(errGet))
		case order.PaymentStatus.IsTerminal():
			// paid or canceled: the same cart may be ordered again
			s.forget(ctx, log, key)
		default:
			return order
		}
	case !errors.Is(err, cache.ErrCacheMiss):
		log.Warn("checkout cache get failed", zap.Error(err))
	}

	order, err := s.repo.FindByCheckoutKey(ctx, key)
	if err != nil {
		if !errors.Is(err, repository.ErrOrderNotFound) {
			log.Warn("find order by checkout key failed", zap.Error(err))
		}
		return nil
	}
	s.remember(ctx, log, key, order.ID)
	return order
}

// duplicate resolves a payment url for an order that already exists. Only a
// pending order with a live session gets one.
func (s *CheckoutService) duplicate(ctx context.Context, log *zap.Logger, order *domain.Order) *PlaceOrderResult {
	res := &PlaceOrderResult{Order: order, Duplicate: true}

	out, err := s.resumer.ResumePayment(ctx, order.ID, order.UserID)
	if err != nil {
		log.Warn("resume payment for duplicate checkout failed", zap.String("order_id", order.ID), zap.Error(err))
		return res
	}
	if success, ok := out.(reconcile.Success); ok {
		res.PaymentURL = success.URL
	}
	return res
}

// ApplyPaymentEvent records a provider notification on the order. Replayed
// or out of order events leave the order untouched.
func (s *CheckoutService) ApplyPaymentEvent(ctx context.Context, event PaymentEvent) error {
	log := logger.FromContext(ctx, s.logger).With(
		zap.String("event_type", event.Type),
		zap.String("session_id", event.SessionID),
	)

	target, ok := event.TargetStatus()
	if !ok {
		log.Debug("payment event ignored")
		return nil
	}
	if event.SessionID == "" {
		return fmt.Errorf("%w: no session id", ErrInvalidPaymentEvent)
	}

	order, err := s.repo.UpdatePaymentStatus(ctx, event.SessionID, domain.PaymentStatusPending, target)
	switch {
	case errors.Is(err, repository.ErrStatusConflict):
		log.Info("payment event already applied or superseded")
		return nil
	case errors.Is(err, repository.ErrOrderNotFound):
		log.Warn("payment event for unknown session")
		return nil
	case err != nil:
		return fmt.Errorf("apply %s to session %s: %w", event.Type, event.SessionID, err)
	}

	log.Info("order payment status changed",
		zap.String("order_id", order.ID),
		zap.String("payment_status", order.PaymentStatus.String()),
	)
	if order.PaymentStatus.IsTerminal() {
		s.forget(ctx, log, order.CheckoutKey)
	}
	s.publish(ctx, log, publisher.PaymentStatusChanged, order)
	return nil
}

func (s *CheckoutService) sessionParams(order *domain.Order) payment.CreateSessionParams {
	lines := make([]payment.LineItem, 0, len(order.Items)+1)
	for _, it := range order.Items {
		lines = append(lines, payment.LineItem{
			Name:       it.Name,
			UnitAmount: payment.ToMinorUnits(it.Price, order.Currency),
			Quantity:   int64(it.Qty),
		})
	}
	if order.ShippingCost > 0 {
		name := "Shipping"
		if order.ShippingMethod != "" {
			name = "Shipping (" + order.ShippingMethod + ")"
		}
		lines = append(lines, payment.LineItem{
			Name:       name,
			UnitAmount: payment.ToMinorUnits(order.ShippingCost, order.Currency),
			Quantity:   1,
		})
	}

	return payment.CreateSessionParams{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CheckoutKey:   order.CheckoutKey,
		CustomerEmail: order.Email,
		Currency:      order.Currency,
		LineItems:     lines,
		SuccessURL:    strings.ReplaceAll(s.urls.Success, OrderIDPlaceholder, order.ID),
		CancelURL:     strings.ReplaceAll(s.urls.Cancel, OrderIDPlaceholder, order.ID),
	}
}

func (s *CheckoutService) remember(ctx context.Context, log *zap.Logger, key, orderID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, key, orderID); err != nil {
		log.Warn("checkout cache set failed", zap.Error(err))
	}
}

func (s *CheckoutService) forget(ctx context.Context, log *zap.Logger, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, key); err != nil {
		log.Warn("checkout cache delete failed", zap.Error(err))
	}
}

func (s *CheckoutService) publish(ctx context.Context, log *zap.Logger, build func(*domain.Order) (publisher.Event, error), order *domain.Order) {
	event, err := build(order)
	if err != nil {
		log.Error("build order event failed", zap.String("order_id", order.ID), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Error("publish order event failed", zap.String("order_id", order.ID), zap.Error(err))
	}
}

func validate(userID string, req CheckoutRequest) ([]domain.OrderItem, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidCheckout)
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidCheckout)
	}
	if strings.TrimSpace(req.Currency) == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrInvalidCheckout)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrInvalidCheckout)
	}
	shipping := fingerprint.ToNumber(req.ShippingCost)
	if shipping < 0 {
		return nil, fmt.Errorf("%w: shippingCost must not be negative", ErrInvalidCheckout)
	}
	wholeUnits := payment.IsZeroDecimal(req.Currency)
	if wholeUnits && shipping != math.Trunc(shipping) {
		return nil, fmt.Errorf("%w: shippingCost must be a whole amount in %s", ErrInvalidCheckout, req.Currency)
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for i, line := range req.Items {
		qty := fingerprint.ToNumber(line.Qty)
		if qty < 1 || qty != math.Trunc(qty) {
			return nil, fmt.Errorf("%w: items[%d].qty must be a positive integer", ErrInvalidCheckout, i)
		}
		price := fingerprint.ToNumber(line.Price)
		if price <= 0 {
			return nil, fmt.Errorf("%w: items[%d].price must be positive", ErrInvalidCheckout, i)
		}
		if wholeUnits && price != math.Trunc(price) {
			return nil, fmt.Errorf("%w: items[%d].price must be a whole amount in %s", ErrInvalidCheckout, i, req.Currency)
		}

		item := domain.OrderItem{
			ProductID: deref(line.ProductID),
			Slug:      deref(line.Slug),
			Name:      strings.TrimSpace(line.Name),
			Price:     roundAmount(price),
			Qty:       int(qty),
			Size:      deref(line.Size),
			Color:     deref(line.Color),
		}
		if item.Name == "" {
			item.Name = firstNonEmpty(item.Slug, item.ProductID, fmt.Sprintf("item %d", i+1))
		}
		items = append(items, item)
	}
	return items, nil
}

func orderTotal(order *domain.Order) float64 {
	total := order.ShippingCost
	for _, it := range order.Items {
		total += it.Subtotal()
	}
	return roundAmount(total)
}

func roundAmount(v float64) float64 {
	return math.Round(v*100) / 100
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
