package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/tavros-checkout/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// checkoutKeyIndex keeps at most one pending order per checkout key. Paid and
// canceled orders drop out of it so the same cart can be bought again.
const checkoutKeyIndex = "checkout_key_pending"

const duplicateKeyCode = 11000

type MongoRepository struct {
	db       *mongo.Database
	orders   *mongo.Collection
	counters *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		db:       db,
		orders:   db.Collection("orders"),
		counters: db.Collection("counters"),
	}
}

func (m *MongoRepository) GetOrderForUser(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	if orderID == "" || userID == "" {
		return nil, ErrOrderNotFound
	}

	// ownership is part of the query so another user's order looks exactly
	// like a missing one
	filter := bson.M{"_id": orderID, "user_id": userID}
	return m.findOne(ctx, filter)
}

func (m *MongoRepository) FindByCheckoutKey(ctx context.Context, checkoutKey string) (*domain.Order, error) {
	return m.findOne(ctx, bson.M{"checkout_key": checkoutKey, "payment_status": domain.PaymentStatusPending})
}

func (m *MongoRepository) findOne(ctx context.Context, filter bson.M) (*domain.Order, error) {
	var order domain.Order
	err := m.orders.FindOne(ctx, filter).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if !order.PaymentStatus.IsValid() {
		return nil, fmt.Errorf("order %s has unknown payment status %q", order.ID, order.PaymentStatus)
	}
	return &order, nil
}

func (m *MongoRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	// the collection has no schema, so the status set is enforced here
	if !order.PaymentStatus.IsValid() {
		return fmt.Errorf("create order %s: unknown payment status %q", order.ID, order.PaymentStatus)
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	_, err := m.orders.InsertOne(ctx, order)
	if err != nil {
		if isCheckoutKeyConflict(err) {
			return ErrDuplicateCheckout
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (m *MongoRepository) UpdatePaymentStatus(ctx context.Context, sessionID string, from, to domain.PaymentStatus) (*domain.Order, error) {
	if !domain.CanTransitionTo(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrStatusConflict, from, to)
	}

	filter := bson.M{
		"stripe_session_id": sessionID,
		"payment_status":    from,
	}
	update := bson.M{
		"$set": bson.M{
			"payment_status": to,
			"updated_at":     time.Now().UTC(),
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var order domain.Order
	err := m.orders.FindOneAndUpdate(ctx, filter, update, opts).Decode(&order)
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}

	count, err := m.orders.CountDocuments(ctx, bson.M{"stripe_session_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to check order for session: %w", err)
	}
	if count == 0 {
		return nil, ErrOrderNotFound
	}
	return nil, ErrStatusConflict
}

func (m *MongoRepository) Setup(ctx context.Context) error {
	return m.CreateIndexes(ctx)
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	counterIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := m.counters.Indexes().CreateMany(ctx, counterIndexes); err != nil {
		return fmt.Errorf("failed to create counter indexes: %w", err)
	}

	orderIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "checkout_key", Value: 1}},
			Options: options.Index().
				SetName(checkoutKeyIndex).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"payment_status": domain.PaymentStatusPending}),
		},
		{
			Keys:    bson.D{{Key: "order_number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "stripe_session_id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}
	if _, err := m.orders.Indexes().CreateMany(ctx, orderIndexes); err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}

	return nil
}

func (m *MongoRepository) Ping(ctx context.Context) error {
	return m.db.Client().Ping(ctx, nil)
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.db.Client().Disconnect(ctx)
}

// isCheckoutKeyConflict tells a second pending order for the same checkout
// apart from other duplicate keys (_id, order_number), which are real faults.
func isCheckoutKeyConflict(err error) bool {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return false
	}
	for _, e := range we.WriteErrors {
		if e.Code == duplicateKeyCode && strings.Contains(e.Message, checkoutKeyIndex) {
			return true
		}
	}
	return false
}
