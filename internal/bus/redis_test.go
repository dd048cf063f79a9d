// internal/bus/redis_test.go
package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-workers/internal/common/logger"
	"booking-workers/internal/models"
)

func setupRedisBus(t *testing.T) (*RedisBus, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	b, err := NewRedisBus(context.Background(), client, RedisBusOptions{
		Stream:       "booking:events",
		Group:        "sms-notifier",
		Consumer:     "test-consumer",
		Block:        10 * time.Millisecond,
		ClaimMinIdle: time.Minute,
	}, logger.Nop())
	require.NoError(t, err)
	return b, mr
}

func testEvent(id string) *models.NotificationEvent {
	return &models.NotificationEvent{
		ID:             id,
		Type:           models.EventBooked,
		SessionID:      "s1",
		EnrollmentID:   "e1",
		Recipient:      "+15550001111",
		Payload:        map[string]interface{}{"session_title": "Test"},
		DeliveryStatus: models.DeliveryPending,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestRedisBus_PublishFetchAck(t *testing.T) {
	b, _ := setupRedisBus(t)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, testEvent("evt-1")))
	require.NoError(t, b.Publish(ctx, testEvent("evt-2")))

	msgs, err := b.Fetch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "evt-1", msgs[0].Event.ID)
	assert.Equal(t, "evt-2", msgs[1].Event.ID)
	assert.Equal(t, models.EventBooked, msgs[0].Event.Type)
	assert.Equal(t, "Test", msgs[0].Event.Payload["session_title"])

	for _, m := range msgs {
		require.NoError(t, b.Ack(ctx, m.BusID))
	}
}

func TestRedisBus_GroupAlreadyExists(t *testing.T) {
	b, mr := setupRedisBus(t)

	// A second bus on the same stream and group must not fail on BUSYGROUP.
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b2, err := NewRedisBus(context.Background(), client, RedisBusOptions{
		Stream:       "booking:events",
		Group:        "sms-notifier",
		Consumer:     "other-consumer",
		Block:        10 * time.Millisecond,
		ClaimMinIdle: time.Minute,
	}, logger.Nop())
	require.NoError(t, err)

	// Both consumers share the group: a message fetched by one is not
	// handed to the other.
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, testEvent("evt-1")))
	msgs, err := b.Fetch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	msgs, err = b2.Fetch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRedisBus_PerSessionOrderPreserved(t *testing.T) {
	b, _ := setupRedisBus(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		evt := testEvent("evt-" + id)
		require.NoError(t, b.Publish(ctx, evt))
	}

	msgs, err := b.Fetch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, id := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, "evt-"+id, msgs[i].Event.ID)
	}
}

func TestRedisBus_RejectsInvalidEnvelope(t *testing.T) {
	b, _ := setupRedisBus(t)

	evt := testEvent("evt-1")
	evt.Recipient = ""
	err := b.Publish(context.Background(), evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid event envelope")
}

func TestValidateEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "valid envelope",
			raw:  `{"id":"evt-1","type":"booked","sessionId":"s1","recipient":"+15550001111"}`,
		},
		{
			name:    "unknown type",
			raw:     `{"id":"evt-1","type":"invited","sessionId":"s1","recipient":"+15550001111"}`,
			wantErr: true,
		},
		{
			name:    "missing session",
			raw:     `{"id":"evt-1","type":"booked","recipient":"+15550001111"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEnvelope([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMemoryBus_RedeliverUntilAcked(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, testEvent("evt-1")))

	msgs, err := b.Fetch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, b.PendingCount())

	// Unacked: a redelivery brings it back.
	b.Redeliver()
	msgs, err = b.Fetch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, b.Ack(ctx, msgs[0].BusID))
	assert.Equal(t, 0, b.PendingCount())

	b.Redeliver()
	msgs, err = b.Fetch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
