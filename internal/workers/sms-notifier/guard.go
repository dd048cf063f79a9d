// internal/workers/sms-notifier/guard.go
package smsnotifier

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeliveryGuard remembers which events were already delivered so that a
// redelivered bus message is acked without a second send. The gateway's
// idempotency key is the backstop when the guard itself loses state.
type DeliveryGuard interface {
	// MarkDelivered records the delivery. Returns false when the event was
	// already marked by an earlier attempt.
	MarkDelivered(ctx context.Context, eventID string) (bool, error)
	// Delivered reports whether the event was already sent.
	Delivered(ctx context.Context, eventID string) (bool, error)
}

// RedisGuard keeps delivery markers in Redis with a TTL long enough to
// outlive any plausible redelivery window.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func guardKey(eventID string) string {
	return fmt.Sprintf("booking:delivered:%s", eventID)
}

func (g *RedisGuard) MarkDelivered(ctx context.Context, eventID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, guardKey(eventID), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark delivered %s: %w", eventID, err)
	}
	return ok, nil
}

func (g *RedisGuard) Delivered(ctx context.Context, eventID string) (bool, error) {
	n, err := g.client.Exists(ctx, guardKey(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("check delivered %s: %w", eventID, err)
	}
	return n > 0, nil
}
