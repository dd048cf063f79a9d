// internal/workers/sms-notifier/handler_test.go
package smsnotifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-workers/internal/booking/store"
	"booking-workers/internal/bus"
	"booking-workers/internal/common/logger"
	"booking-workers/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		Enabled:        true,
		SenderID:       "Bookings",
		BatchSize:      10,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		SendTimeout:    time.Second,
		Shards:         2,
	}
}

// fakeGateway scripts the outcome of each attempt and records the
// idempotency keys it was called with.
type fakeGateway struct {
	mu      sync.Mutex
	script  []SendStatus
	calls   int
	keys    []string
	bodies  []string
}

func (g *fakeGateway) Send(_ context.Context, _, body, idempotencyKey string) (*SendResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status := SendDelivered
	if g.calls < len(g.script) {
		status = g.script[g.calls]
	}
	g.calls++
	g.keys = append(g.keys, idempotencyKey)
	g.bodies = append(g.bodies, body)
	return &SendResult{Status: status, ProviderID: "prov-1", Reason: string(status)}, nil
}

// mapGuard is an in-memory DeliveryGuard.
type mapGuard struct {
	mu        sync.Mutex
	delivered map[string]bool
}

func newMapGuard() *mapGuard {
	return &mapGuard{delivered: make(map[string]bool)}
}

func (g *mapGuard) MarkDelivered(_ context.Context, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.delivered[eventID] {
		return false, nil
	}
	g.delivered[eventID] = true
	return true, nil
}

func (g *mapGuard) Delivered(_ context.Context, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.delivered[eventID], nil
}

// recordingAlerter captures abandon notifications.
type recordingAlerter struct {
	mu     sync.Mutex
	events []string
	reason string
}

func (a *recordingAlerter) NotifyAbandoned(_ context.Context, evt *models.NotificationEvent, _ int, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, evt.ID)
	a.reason = reason
}

func setupNotifier(t *testing.T, gw Gateway) (*Handler, *store.MemoryStore, *recordingAlerter) {
	st := store.NewMemory()
	require.NoError(t, st.CreateSession(context.Background(), &models.Session{
		ID: "s1", Title: "Test", Capacity: 4,
		Status: models.SessionOpen, StartsAt: time.Now().Add(time.Hour), CreatedAt: time.Now(),
	}))
	alerter := &recordingAlerter{}
	h := NewHandler(createTestConfig(), st, bus.NewMemoryBus(), gw, newMapGuard(), alerter, nil, logger.Nop())
	h.sleep = func(context.Context, time.Duration) error { return nil }
	return h, st, alerter
}

func storedEvent(t *testing.T, st *store.MemoryStore, id string) *models.NotificationEvent {
	evt := &models.NotificationEvent{
		ID: id, Type: models.EventBooked, SessionID: "s1", EnrollmentID: "e1",
		Recipient: "+15550001111",
		Payload: map[string]interface{}{
			"session_title":    "Test",
			"participant_name": "Alice",
		},
		DeliveryStatus: models.DeliveryPending, CreatedAt: time.Now(),
	}
	err := st.Atomic(context.Background(), "s1", func(tx store.SessionTx) error {
		return tx.AppendEvent(evt)
	})
	require.NoError(t, err)
	return evt
}

// ==========================
// Dispatch Tests
// ==========================

func TestProcess_DeliveredFirstAttempt(t *testing.T) {
	gw := &fakeGateway{}
	h, st, _ := setupNotifier(t, gw)
	evt := storedEvent(t, st, "evt-1")

	require.NoError(t, h.Process(context.Background(), evt))

	assert.Equal(t, 1, gw.calls)
	assert.Equal(t, []string{"evt-1"}, gw.keys)

	stored, err := st.Event(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryDelivered, stored.DeliveryStatus)
	assert.Equal(t, 1, stored.Attempts)
}

func TestProcess_TransientFailuresThenDelivered(t *testing.T) {
	// Fails twice transiently, succeeds on the third attempt: Delivered,
	// attempts=3, same idempotency key on every attempt.
	gw := &fakeGateway{script: []SendStatus{SendTransient, SendTransient, SendDelivered}}
	h, st, alerter := setupNotifier(t, gw)
	evt := storedEvent(t, st, "evt-1")

	require.NoError(t, h.Process(context.Background(), evt))

	assert.Equal(t, 3, gw.calls)
	assert.Equal(t, []string{"evt-1", "evt-1", "evt-1"}, gw.keys)

	stored, err := st.Event(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryDelivered, stored.DeliveryStatus)
	assert.Equal(t, 3, stored.Attempts)
	assert.Empty(t, alerter.events)
}

func TestProcess_AbandonedAfterMaxAttempts(t *testing.T) {
	gw := &fakeGateway{script: []SendStatus{SendTransient, SendTransient, SendTransient}}
	h, st, alerter := setupNotifier(t, gw)
	evt := storedEvent(t, st, "evt-1")

	require.NoError(t, h.Process(context.Background(), evt))

	assert.Equal(t, 3, gw.calls)

	stored, err := st.Event(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryAbandoned, stored.DeliveryStatus)
	assert.Equal(t, []string{"evt-1"}, alerter.events)
	assert.Equal(t, "retry budget exhausted", alerter.reason)
}

func TestProcess_RejectedAbandonsImmediately(t *testing.T) {
	gw := &fakeGateway{script: []SendStatus{SendRejected}}
	h, st, alerter := setupNotifier(t, gw)
	evt := storedEvent(t, st, "evt-1")

	require.NoError(t, h.Process(context.Background(), evt))

	// No retries after a permanent rejection.
	assert.Equal(t, 1, gw.calls)

	stored, err := st.Event(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryAbandoned, stored.DeliveryStatus)
	assert.Equal(t, []string{"evt-1"}, alerter.events)
}

func TestProcess_DuplicateDeliverySkipsSend(t *testing.T) {
	gw := &fakeGateway{}
	h, st, _ := setupNotifier(t, gw)
	evt := storedEvent(t, st, "evt-1")

	require.NoError(t, h.Process(context.Background(), evt))
	require.NoError(t, h.Process(context.Background(), evt))

	// Second processing is absorbed by the delivery guard.
	assert.Equal(t, 1, gw.calls)
}

func TestProcess_UnknownEventTypeAbandons(t *testing.T) {
	gw := &fakeGateway{}
	h, st, alerter := setupNotifier(t, gw)
	evt := storedEvent(t, st, "evt-1")
	evt.Type = models.EventType("unknown")

	require.NoError(t, h.Process(context.Background(), evt))

	assert.Equal(t, 0, gw.calls)
	assert.Equal(t, []string{"evt-1"}, alerter.events)
}

func TestProcess_CancelledContextLeavesEventForRedelivery(t *testing.T) {
	gw := &fakeGateway{script: []SendStatus{SendTransient, SendTransient, SendDelivered}}
	h, st, _ := setupNotifier(t, gw)
	h.sleep = sleepCtx
	evt := storedEvent(t, st, "evt-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The first backoff observes the cancelled context and bubbles it up
	// so the caller does not ack.
	err := h.Process(ctx, evt)
	assert.ErrorIs(t, err, context.Canceled)

	stored, errGet := st.Event(context.Background(), "evt-1")
	require.NoError(t, errGet)
	assert.Equal(t, models.DeliveryPending, stored.DeliveryStatus)
}

func TestBackoffDelay_DoublesAndCaps(t *testing.T) {
	h := &Handler{config: &Config{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second}}

	assert.Equal(t, time.Second, h.backoffDelay(1))
	assert.Equal(t, 2*time.Second, h.backoffDelay(2))
	assert.Equal(t, 4*time.Second, h.backoffDelay(3))
	assert.Equal(t, 5*time.Second, h.backoffDelay(4))
	assert.Equal(t, 5*time.Second, h.backoffDelay(10))
}

func TestShardFor_StableAssignment(t *testing.T) {
	h := &Handler{config: createTestConfig()}

	first := h.shardFor("session-abc")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, h.shardFor("session-abc"))
	}
	assert.Less(t, first, h.config.Shards)
}

// One slow session must not stall delivery for other sessions: with the
// slow session's events backing up on one shard, the other shard drains.
func TestRun_SlowSessionDoesNotBlockOthers(t *testing.T) {
	slowGate := make(chan struct{})
	gw := &blockingGateway{gate: slowGate, slowSession: "slow-sess"}

	st := store.NewMemory()
	for _, id := range []string{"slow-sess", "fast-sess"} {
		require.NoError(t, st.CreateSession(context.Background(), &models.Session{
			ID: id, Title: "Test", Capacity: 4,
			Status: models.SessionOpen, StartsAt: time.Now().Add(time.Hour), CreatedAt: time.Now(),
		}))
	}

	mb := bus.NewMemoryBus()
	cfg := createTestConfig()
	h := NewHandler(cfg, st, mb, gw, newMapGuard(), nil, nil, logger.Nop())

	// Choose session ids on different shards.
	require.NotEqual(t, h.shardFor("slow-sess"), h.shardFor("fast-sess"))

	publish := func(sessionID, id string) {
		evt := &models.NotificationEvent{
			ID: id, Type: models.EventBooked, SessionID: sessionID,
			Recipient: "+15550001111",
			Payload:   map[string]interface{}{"session_title": "Test", "participant_name": "A"},
			DeliveryStatus: models.DeliveryPending, CreatedAt: time.Now(),
		}
		err := st.Atomic(context.Background(), sessionID, func(tx store.SessionTx) error {
			return tx.AppendEvent(evt)
		})
		require.NoError(t, err)
		require.NoError(t, mb.Publish(context.Background(), evt))
	}

	publish("slow-sess", "evt-slow")
	publish("fast-sess", "evt-fast")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	// The fast session's event completes while the slow one is stuck.
	require.Eventually(t, func() bool {
		evt, err := st.Event(context.Background(), "evt-fast")
		return err == nil && evt.DeliveryStatus == models.DeliveryDelivered
	}, 2*time.Second, 10*time.Millisecond)

	close(slowGate)

	require.Eventually(t, func() bool {
		evt, err := st.Event(context.Background(), "evt-slow")
		return err == nil && evt.DeliveryStatus == models.DeliveryDelivered
	}, 2*time.Second, 10*time.Millisecond)
}

// blockingGateway blocks sends for one session until its gate opens.
type blockingGateway struct {
	gate        chan struct{}
	slowSession string
}

func (g *blockingGateway) Send(ctx context.Context, _, _, idempotencyKey string) (*SendResult, error) {
	// Event ids carry the session hint in these tests.
	if idempotencyKey == "evt-slow" {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &SendResult{Status: SendDelivered, ProviderID: "prov-1"}, nil
}
