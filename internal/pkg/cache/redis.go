// Package cache remembers which messages a participant has already
// processed, so a redelivered command can be acknowledged without running
// its handler again.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedupe records processed message ids.
type Dedupe interface {
	Seen(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
}

type redisCache struct {
	client      *redis.Client
	serviceName string
	ttl         time.Duration
}

// NewRedisDedupe returns a Dedupe backed by the Redis server at addr.
// Markers expire after ttl.
func NewRedisDedupe(addr, serviceName string, ttl time.Duration) (Dedupe, func() error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return NewDedupe(client, serviceName, ttl), client.Close
}

// NewDedupe wraps an existing client.
func NewDedupe(client *redis.Client, serviceName string, ttl time.Duration) Dedupe {
	return &redisCache{client: client, serviceName: serviceName, ttl: ttl}
}

func (r *redisCache) Seen(ctx context.Context, messageID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.generateKey("processed", messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("cache: lookup %s: %w", messageID, err)
	}
	return n > 0, nil
}

// MarkProcessed is idempotent: a second mark keeps the first marker.
func (r *redisCache) MarkProcessed(ctx context.Context, messageID string) error {
	if err := r.client.SetNX(ctx, r.generateKey("processed", messageID), time.Now().UTC().Format(time.RFC3339), r.ttl).Err(); err != nil {
		return fmt.Errorf("cache: mark %s: %w", messageID, err)
	}
	return nil
}

func (r *redisCache) generateKey(operation, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.serviceName, operation, key)
}

// Noop never reports a message as seen. It is used when Redis is not configured.
type Noop struct{}

func (Noop) Seen(context.Context, string) (bool, error) { return false, nil }
func (Noop) MarkProcessed(context.Context, string) error { return nil }
