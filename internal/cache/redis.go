package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxJitter = 5 * time.Minute

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 24 * time.Hour
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, checkoutKey string) (string, error) {
	orderID, err := r.client.Get(ctx, cacheKey(checkoutKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	if orderID == "" {
		return "", ErrCacheMiss
	}
	return orderID, nil
}

func (r RedisCache) Set(ctx context.Context, checkoutKey, orderID string) error {
	jitter := time.Duration(rand.Int63n(int64(maxJitter)))
	ttl := r.baseTTL + jitter
	if err := r.client.Set(ctx, cacheKey(checkoutKey), orderID, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisCache) Delete(ctx context.Context, checkoutKey string) error {
	if err := r.client.Del(ctx, cacheKey(checkoutKey)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(checkoutKey string) string {
	return fmt.Sprintf("checkout:%s", checkoutKey)
}
