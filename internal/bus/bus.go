// Package bus carries notification events from the outbox relay to the
// dispatch workers. Delivery is at-least-once within a single consumer
// group; events of one session are totally ordered, events of different
// sessions are not.
package bus

import (
	"context"

	"booking-workers/internal/models"
)

// Message is a notification event as read off the bus. BusID is the
// transport's own id for the entry and is what gets acknowledged, so a
// redelivered event acks independently of its first delivery.
type Message struct {
	BusID string
	Event models.NotificationEvent
}

// Bus is the event transport between the relay and the dispatchers.
type Bus interface {
	// Publish appends the event to the stream.
	Publish(ctx context.Context, evt *models.NotificationEvent) error
	// Fetch returns up to max undelivered messages for this consumer,
	// blocking briefly when the stream is empty. Unacked messages are
	// redelivered after the claim idle window.
	Fetch(ctx context.Context, max int) ([]Message, error)
	// Ack marks a message as processed for the consumer group.
	Ack(ctx context.Context, busID string) error
	Close() error
}
