package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore holds Idempotency-Key headers of state-changing API calls
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyStore creates an idempotency store. client may be nil.
func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

func idempotencyKey(tenantID, key string) string {
	return fmt.Sprintf("gwidem:%s:%s", tenantID, key)
}

// Reserve claims a key. It returns false when the key was already claimed.
func (s *IdempotencyStore) Reserve(ctx context.Context, tenantID, key string) (bool, error) {
	if s.client == nil {
		return true, nil
	}
	return s.client.SetNX(ctx, idempotencyKey(tenantID, key), "1", s.ttl).Result()
}

// Release frees a key so a failed request can be retried
func (s *IdempotencyStore) Release(ctx context.Context, tenantID, key string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, idempotencyKey(tenantID, key)).Err()
}
