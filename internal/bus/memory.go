package bus

import (
	"context"
	"strconv"
	"sync"

	"booking-workers/internal/models"
)

// MemoryBus is an in-process Bus for tests. Fetched messages move to a
// pending set and come back on later fetches until acked, mirroring the
// redelivery behavior of the stream transport.
type MemoryBus struct {
	mu      sync.Mutex
	next    int
	queue   []Message
	pending map[string]Message
	closed  bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{pending: make(map[string]Message)}
}

func (b *MemoryBus) Publish(_ context.Context, evt *models.NotificationEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.queue = append(b.queue, Message{BusID: strconv.Itoa(b.next), Event: *evt})
	return nil
}

func (b *MemoryBus) Fetch(_ context.Context, max int) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := max
	if n > len(b.queue) {
		n = len(b.queue)
	}
	msgs := make([]Message, n)
	copy(msgs, b.queue[:n])
	b.queue = b.queue[n:]
	for _, m := range msgs {
		b.pending[m.BusID] = m
	}
	return msgs, nil
}

func (b *MemoryBus) Ack(_ context.Context, busID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, busID)
	return nil
}

// Redeliver moves every unacked message back onto the queue. Tests use it
// to exercise at-least-once handling.
func (b *MemoryBus) Redeliver() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, m := range b.pending {
		b.queue = append(b.queue, m)
		delete(b.pending, id)
	}
}

// PendingCount reports messages fetched but not yet acked.
func (b *MemoryBus) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
