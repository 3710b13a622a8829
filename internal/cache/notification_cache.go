package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewRedisClient parses a redis:// URL and checks the connection. A nil client
// is returned when Redis is unreachable so callers degrade to no caching.
func NewRedisClient(ctx context.Context, redisURL string, logger *logrus.Entry) *redis.Client {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.WithError(err).Warn("Invalid REDIS_URL, caching disabled")
		return nil
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("Redis unavailable, caching disabled")
		_ = client.Close()
		return nil
	}
	return client
}

// NotificationCache remembers processor notifications that were already applied.
// Processors resend notifications until acknowledged, so the same
// (gateway, transaction, status) triple arrives more than once.
type NotificationCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewNotificationCache creates a notification cache. client may be nil.
func NewNotificationCache(client *redis.Client, ttl time.Duration) *NotificationCache {
	return &NotificationCache{client: client, ttl: ttl}
}

func notificationKey(tenantID, gateway, transactionID, status string) string {
	return fmt.Sprintf("gwnotify:%s:%s:%s:%s", tenantID, strings.ToLower(gateway), transactionID, status)
}

// MarkApplied records the notification and reports whether it is the first
// time it was seen. Without Redis every notification counts as new.
func (c *NotificationCache) MarkApplied(ctx context.Context, tenantID, gateway, transactionID, status string) (bool, error) {
	if c.client == nil || transactionID == "" {
		return true, nil
	}

	key := notificationKey(tenantID, gateway, transactionID, status)
	return c.client.SetNX(ctx, key, time.Now().Unix(), c.ttl).Result()
}

// Forget drops a mark so a notification that failed downstream can be retried
func (c *NotificationCache) Forget(ctx context.Context, tenantID, gateway, transactionID, status string) error {
	if c.client == nil || transactionID == "" {
		return nil
	}
	return c.client.Del(ctx, notificationKey(tenantID, gateway, transactionID, status)).Err()
}
