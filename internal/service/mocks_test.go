package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/fjod/tavros-checkout/internal/cache"
	"github.com/fjod/tavros-checkout/internal/domain"
	"github.com/fjod/tavros-checkout/internal/payment"
	"github.com/fjod/tavros-checkout/internal/publisher"
	"github.com/fjod/tavros-checkout/internal/reconcile"
	"github.com/fjod/tavros-checkout/internal/repository"
)

type mockRepository struct {
	m      sync.RWMutex
	orders map[string]*domain.Order

	findErr   error
	createErr error // returned once, then cleared
	updateErr error

	createCalls int
	// beforeCreate runs inside CreateOrder, used to simulate another
	// instance winning the race.
	beforeCreate func(order *domain.Order)
}

func newMockRepository() *mockRepository {
	return &mockRepository{orders: map[string]*domain.Order{}}
}

func (m *mockRepository) put(o *domain.Order) {
	m.m.Lock()
	defer m.m.Unlock()
	m.orders[o.ID] = o
}

func (m *mockRepository) GetOrderForUser(_ context.Context, orderID, userID string) (*domain.Order, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	o, ok := m.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	return o, nil
}

func (m *mockRepository) FindByCheckoutKey(_ context.Context, key string) (*domain.Order, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, o := range m.orders {
		if o.CheckoutKey == key && o.PaymentStatus == domain.PaymentStatusPending {
			return o, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	if m.beforeCreate != nil {
		m.beforeCreate(order)
	}
	m.m.Lock()
	defer m.m.Unlock()
	m.createCalls++
	if m.createErr != nil {
		err := m.createErr
		m.createErr = nil
		return err
	}
	for _, o := range m.orders {
		if o.CheckoutKey == order.CheckoutKey && o.PaymentStatus == domain.PaymentStatusPending {
			return repository.ErrDuplicateCheckout
		}
	}
	m.orders[order.ID] = order
	return nil
}

func (m *mockRepository) UpdatePaymentStatus(_ context.Context, sessionID string, from, to domain.PaymentStatus) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	for _, o := range m.orders {
		if o.StripeSessionID == nil || *o.StripeSessionID != sessionID {
			continue
		}
		if o.PaymentStatus != from {
			return nil, repository.ErrStatusConflict
		}
		o.PaymentStatus = to
		return o, nil
	}
	return nil, repository.ErrOrderNotFound
}

type mockAllocator struct {
	m    sync.Mutex
	seq  int64
	err  error
	hits int
}

func (m *mockAllocator) Next(context.Context) (string, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.hits++
	if m.err != nil {
		return "", m.err
	}
	m.seq++
	return fmt.Sprintf("TVR-%06d", m.seq), nil
}

type mockSessions struct {
	m        sync.Mutex
	created  []payment.CreateSessionParams
	sessions map[string]*payment.Session
	err      error

	// when release is set, CreateSession signals entered and then waits for
	// release or for its context to end
	entered chan struct{}
	release chan struct{}
}

func newMockSessions() *mockSessions {
	return &mockSessions{sessions: map[string]*payment.Session{}}
}

func (m *mockSessions) CreateSession(ctx context.Context, params payment.CreateSessionParams) (*payment.Session, error) {
	if m.release != nil {
		m.entered <- struct{}{}
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.created = append(m.created, params)
	id := fmt.Sprintf("cs_test_%d", len(m.created))
	s := &payment.Session{
		ID:            id,
		Status:        payment.SessionStatusOpen,
		PaymentStatus: payment.SessionPaymentStatusUnpaid,
		URL:           "https://checkout.stripe.test/" + id,
	}
	m.sessions[id] = s
	return s, nil
}

func (m *mockSessions) GetSession(_ context.Context, id string) (*payment.Session, error) {
	m.m.Lock()
	defer m.m.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return s, nil
}

func (m *mockSessions) createCount() int {
	m.m.Lock()
	defer m.m.Unlock()
	return len(m.created)
}

type mockResumer struct {
	m      sync.Mutex
	result reconcile.Result
	err    error
	calls  int
}

func (m *mockResumer) ResumePayment(context.Context, string, string) (reconcile.Result, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.calls++
	return m.result, m.err
}

type mockCache struct {
	m      sync.RWMutex
	values map[string]string
	getErr error
	setErr error
}

func newMockCache() *mockCache {
	return &mockCache{values: map[string]string{}}
}

func (m *mockCache) Get(_ context.Context, key string) (string, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return v, nil
}

func (m *mockCache) Set(_ context.Context, key, orderID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = orderID
	return nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.values, key)
	return nil
}

type mockPublisher struct {
	m      sync.Mutex
	events []publisher.Event
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, e publisher.Event) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) types() []string {
	m.m.Lock()
	defer m.m.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}
