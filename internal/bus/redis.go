package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"booking-workers/internal/common/logger"
	"booking-workers/internal/models"
)

const eventField = "event"

// RedisBus is a Redis Streams transport with one consumer group. Entries a
// consumer fetched but never acked sit in the group's pending list and are
// reclaimed by the next Fetch once they idle past claimMinIdle, which is
// what makes delivery at-least-once across consumer crashes.
type RedisBus struct {
	client       *redis.Client
	log          logger.Logger
	stream       string
	group        string
	consumer     string
	block        time.Duration
	claimMinIdle time.Duration
}

type RedisBusOptions struct {
	Stream       string
	Group        string
	Consumer     string
	Block        time.Duration
	ClaimMinIdle time.Duration
}

// NewRedisBus creates the stream and consumer group when they do not exist.
func NewRedisBus(ctx context.Context, client *redis.Client, opts RedisBusOptions, log logger.Logger) (*RedisBus, error) {
	err := client.XGroupCreateMkStream(ctx, opts.Stream, opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group %s on %s: %w", opts.Group, opts.Stream, err)
	}

	return &RedisBus{
		client:       client,
		log:          log.WithFields(map[string]interface{}{"component": "bus", "stream": opts.Stream}),
		stream:       opts.Stream,
		group:        opts.Group,
		consumer:     opts.Consumer,
		block:        opts.Block,
		claimMinIdle: opts.ClaimMinIdle,
	}, nil
}

func (b *RedisBus) Publish(ctx context.Context, evt *models.NotificationEvent) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", evt.ID, err)
	}
	if err := ValidateEnvelope(raw); err != nil {
		return fmt.Errorf("event %s: %w", evt.ID, err)
	}

	err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: map[string]interface{}{eventField: string(raw)},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd event %s: %w", evt.ID, err)
	}
	return nil
}

func (b *RedisBus) Fetch(ctx context.Context, max int) ([]Message, error) {
	// Reclaim abandoned deliveries first so a crashed consumer's backlog
	// does not wait behind fresh entries forever.
	claimed, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   b.stream,
		Group:    b.group,
		Consumer: b.consumer,
		MinIdle:  b.claimMinIdle,
		Start:    "0",
		Count:    int64(max),
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if len(claimed) > 0 {
		return b.decode(ctx, claimed), nil
	}

	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: b.consumer,
		Streams:  []string{b.stream, ">"},
		Count:    int64(max),
		Block:    b.block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	var msgs []Message
	for _, s := range streams {
		msgs = append(msgs, b.decode(ctx, s.Messages)...)
	}
	return msgs, nil
}

// decode unpacks stream entries, acking the ones that cannot be parsed.
// A permanently broken entry would otherwise be redelivered forever.
func (b *RedisBus) decode(ctx context.Context, entries []redis.XMessage) []Message {
	msgs := make([]Message, 0, len(entries))
	for _, entry := range entries {
		raw, ok := entry.Values[eventField].(string)
		if !ok {
			b.log.Warn("dropping stream entry without event field", map[string]interface{}{
				"busId": entry.ID,
			})
			b.ackQuietly(ctx, entry.ID)
			continue
		}

		var evt models.NotificationEvent
		if err := json.Unmarshal([]byte(raw), &evt); err != nil {
			b.log.WithError(err).Warn("dropping undecodable stream entry", map[string]interface{}{
				"busId": entry.ID,
			})
			b.ackQuietly(ctx, entry.ID)
			continue
		}
		msgs = append(msgs, Message{BusID: entry.ID, Event: evt})
	}
	return msgs
}

func (b *RedisBus) Ack(ctx context.Context, busID string) error {
	if err := b.client.XAck(ctx, b.stream, b.group, busID).Err(); err != nil {
		return fmt.Errorf("xack %s: %w", busID, err)
	}
	return nil
}

func (b *RedisBus) ackQuietly(ctx context.Context, busID string) {
	if err := b.Ack(ctx, busID); err != nil {
		b.log.WithError(err).Warn("failed to ack poisoned entry", map[string]interface{}{
			"busId": busID,
		})
	}
}

func (b *RedisBus) Close() error {
	return nil
}
