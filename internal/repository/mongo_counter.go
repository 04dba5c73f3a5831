package repository

import (
	"context"
	"fmt"

	"github.com/fjod/tavros-checkout/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Increment bumps the named counter with a single findAndModify. A missing
// counter is upserted, so the first call returns 1.
func (m *MongoRepository) Increment(ctx context.Context, name string) (int64, error) {
	seq, err := m.increment(ctx, name)
	if mongo.IsDuplicateKeyError(err) {
		// Two first-ever upserts raced on the unique name index. The loser
		// retries the same atomic update against the document the winner made.
		seq, err = m.increment(ctx, name)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %q: %w", name, err)
	}
	return seq, nil
}

func (m *MongoRepository) increment(ctx context.Context, name string) (int64, error) {
	filter := bson.M{"name": name}
	update := bson.M{"$inc": bson.M{"seq": int64(1)}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter domain.OrderCounter
	if err := m.counters.FindOneAndUpdate(ctx, filter, update, opts).Decode(&counter); err != nil {
		return 0, err
	}
	return counter.Seq, nil
}
