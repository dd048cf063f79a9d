// internal/booking/coordinator/coordinator_test.go
package coordinator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-workers/internal/booking/store"
	"booking-workers/internal/common/errors"
	"booking-workers/internal/common/logger"
	"booking-workers/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func setupCoordinator(t *testing.T, capacity int) (*Coordinator, *store.MemoryStore) {
	st := store.NewMemory()
	require.NoError(t, st.CreateSession(context.Background(), &models.Session{
		ID:        "sess-1",
		Title:     "Saturday Scramble",
		HostPhone: "+15550001111",
		Capacity:  capacity,
		Status:    models.SessionOpen,
		StartsAt:  time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now(),
	}))
	return New(st, logger.Nop()), st
}

func enroll(t *testing.T, c *Coordinator, participant string) *BookingResult {
	res, err := c.RequestEnrollment(context.Background(), "sess-1", participant, "Player "+participant)
	require.NoError(t, err)
	return res
}

func eventTypes(st *store.MemoryStore) []models.EventType {
	events := st.Events()
	types := make([]models.EventType, len(events))
	for i, evt := range events {
		types[i] = evt.Type
	}
	return types
}

// ==========================
// Enrollment Tests
// ==========================

func TestRequestEnrollment_ConfirmsWhileSeatsFree(t *testing.T) {
	c, st := setupCoordinator(t, 2)

	res := enroll(t, c, "alice")
	assert.Equal(t, OutcomeConfirmed, res.Outcome)
	assert.Equal(t, models.EnrollmentConfirmed, res.Enrollment.Status)
	assert.Equal(t, 0, res.Enrollment.WaitlistPos)

	events := st.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventBooked, events[0].Type)
	assert.Equal(t, res.Enrollment.ID, events[0].EnrollmentID)
	assert.Equal(t, "+15550001111", events[0].Recipient)
	assert.Equal(t, models.DeliveryPending, events[0].DeliveryStatus)
}

func TestRequestEnrollment_LastSeatFlipsSessionFull(t *testing.T) {
	c, st := setupCoordinator(t, 2)

	enroll(t, c, "alice")
	enroll(t, c, "bob")

	sess, err := st.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionFull, sess.Status)

	assert.Equal(t, []models.EventType{
		models.EventBooked,
		models.EventBooked,
		models.EventSessionFull,
	}, eventTypes(st))
}

func TestRequestEnrollment_WaitlistsBeyondCapacity(t *testing.T) {
	c, st := setupCoordinator(t, 1)

	enroll(t, c, "alice")

	res := enroll(t, c, "bob")
	assert.Equal(t, OutcomeWaitlisted, res.Outcome)
	assert.Equal(t, 1, res.Enrollment.WaitlistPos)

	res = enroll(t, c, "carol")
	assert.Equal(t, OutcomeWaitlisted, res.Outcome)
	assert.Equal(t, 2, res.Enrollment.WaitlistPos)

	events := st.Events()
	last := events[len(events)-1]
	assert.Equal(t, models.EventWaitlisted, last.Type)
	assert.Equal(t, 2, last.Payload["position"])
}

func TestRequestEnrollment_DuplicateLeavesStateUnchanged(t *testing.T) {
	// capacity=1; A confirmed, B waitlisted at 1; B again must fail clean.
	c, st := setupCoordinator(t, 1)

	enroll(t, c, "alice")
	first := enroll(t, c, "bob")
	assert.Equal(t, 1, first.Enrollment.WaitlistPos)

	eventsBefore := len(st.Events())

	_, err := c.RequestEnrollment(context.Background(), "sess-1", "bob", "Player bob")
	assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateEnrollment))

	assert.Len(t, st.Events(), eventsBefore)
	err = st.Atomic(context.Background(), "sess-1", func(tx store.SessionTx) error {
		wl, err := tx.Waitlist()
		require.NoError(t, err)
		require.Len(t, wl, 1)
		assert.Equal(t, first.Enrollment.ID, wl[0].ID)
		assert.Equal(t, 1, wl[0].WaitlistPos)
		return nil
	})
	require.NoError(t, err)
}

func TestRequestEnrollment_ClosedSessionRejected(t *testing.T) {
	for _, status := range []models.SessionStatus{models.SessionCancelled, models.SessionCompleted} {
		t.Run(string(status), func(t *testing.T) {
			c, st := setupCoordinator(t, 2)
			err := st.Atomic(context.Background(), "sess-1", func(tx store.SessionTx) error {
				sess := tx.Session()
				sess.Status = status
				return tx.UpdateSession(sess)
			})
			require.NoError(t, err)

			_, err = c.RequestEnrollment(context.Background(), "sess-1", "alice", "Alice")
			assert.True(t, errors.HasCode(err, errors.ErrCodeSessionClosed))
		})
	}
}

func TestRequestEnrollment_ReEnrollAfterCancel(t *testing.T) {
	c, _ := setupCoordinator(t, 2)

	first := enroll(t, c, "alice")
	_, err := c.CancelEnrollment(context.Background(), "sess-1", first.Enrollment.ID)
	require.NoError(t, err)

	// A cancelled enrollment is not active; the participant may book again.
	second := enroll(t, c, "alice")
	assert.Equal(t, OutcomeConfirmed, second.Outcome)
	assert.NotEqual(t, first.Enrollment.ID, second.Enrollment.ID)
}

func TestRequestEnrollment_UnknownSession(t *testing.T) {
	c, _ := setupCoordinator(t, 2)
	_, err := c.RequestEnrollment(context.Background(), "no-such-session", "alice", "Alice")
	assert.True(t, errors.HasCode(err, errors.ErrCodeSessionNotFound))
}

// ==========================
// Cancellation Tests
// ==========================

func TestCancelEnrollment_PromotesWaitlistHead(t *testing.T) {
	// capacity=2: A and B confirmed, C waitlisted. Cancel A -> C promoted,
	// count stays 2, waitlist empties.
	c, st := setupCoordinator(t, 2)

	a := enroll(t, c, "alice")
	enroll(t, c, "bob")
	cRes := enroll(t, c, "carol")
	require.Equal(t, OutcomeWaitlisted, cRes.Outcome)

	res, err := c.CancelEnrollment(context.Background(), "sess-1", a.Enrollment.ID)
	require.NoError(t, err)
	assert.False(t, res.AlreadyCancelled)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, cRes.Enrollment.ID, res.Promoted.ID)
	assert.Equal(t, models.EnrollmentConfirmed, res.Promoted.Status)
	assert.Equal(t, 0, res.Promoted.WaitlistPos)

	err = st.Atomic(context.Background(), "sess-1", func(tx store.SessionTx) error {
		count, err := tx.ConfirmedCount()
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		wl, err := tx.Waitlist()
		require.NoError(t, err)
		assert.Empty(t, wl)

		bob, err := tx.ActiveEnrollmentFor("bob")
		require.NoError(t, err)
		require.NotNil(t, bob)
		assert.Equal(t, models.EnrollmentConfirmed, bob.Status)
		return nil
	})
	require.NoError(t, err)

	// Exactly one promoted event, after the cancellation event.
	types := eventTypes(st)
	assert.Equal(t, models.EventCancelled, types[len(types)-2])
	assert.Equal(t, models.EventPromoted, types[len(types)-1])

	// Session was full and is full again after promotion.
	sess, err := st.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionFull, sess.Status)
}

func TestCancelEnrollment_NoWaitlistReopensSession(t *testing.T) {
	c, st := setupCoordinator(t, 1)

	a := enroll(t, c, "alice")
	sess, err := st.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, models.SessionFull, sess.Status)

	res, err := c.CancelEnrollment(context.Background(), "sess-1", a.Enrollment.ID)
	require.NoError(t, err)
	assert.Nil(t, res.Promoted)

	sess, err = st.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionOpen, sess.Status)
}

func TestCancelEnrollment_WaitlistedCompactsQueue(t *testing.T) {
	c, st := setupCoordinator(t, 1)

	enroll(t, c, "alice")
	w1 := enroll(t, c, "bob")
	w2 := enroll(t, c, "carol")

	res, err := c.CancelEnrollment(context.Background(), "sess-1", w1.Enrollment.ID)
	require.NoError(t, err)
	assert.Nil(t, res.Promoted)

	err = st.Atomic(context.Background(), "sess-1", func(tx store.SessionTx) error {
		wl, err := tx.Waitlist()
		require.NoError(t, err)
		require.Len(t, wl, 1)
		assert.Equal(t, w2.Enrollment.ID, wl[0].ID)
		assert.Equal(t, 1, wl[0].WaitlistPos)
		return nil
	})
	require.NoError(t, err)

	types := eventTypes(st)
	assert.Equal(t, models.EventCancelled, types[len(types)-1])
}

func TestCancelEnrollment_AlreadyCancelledIsNoOp(t *testing.T) {
	c, st := setupCoordinator(t, 2)

	a := enroll(t, c, "alice")
	_, err := c.CancelEnrollment(context.Background(), "sess-1", a.Enrollment.ID)
	require.NoError(t, err)

	eventsBefore := len(st.Events())

	res, err := c.CancelEnrollment(context.Background(), "sess-1", a.Enrollment.ID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyCancelled)
	assert.Nil(t, res.Cancelled)

	// Stable no-op: no state change, no new event.
	assert.Len(t, st.Events(), eventsBefore)
}

func TestCancelEnrollment_UnknownEnrollment(t *testing.T) {
	c, _ := setupCoordinator(t, 2)
	_, err := c.CancelEnrollment(context.Background(), "sess-1", "no-such-enrollment")
	assert.True(t, errors.HasCode(err, errors.ErrCodeEnrollmentNotFound))
}

// ==========================
// Invariant Tests
// ==========================

// Runs a churn of enrollments and cancellations and checks the core
// invariants after every step: confirmed count never exceeds capacity and
// waitlist positions stay contiguous from 1.
func TestBookingInvariantsUnderChurn(t *testing.T) {
	const capacity = 3
	c, st := setupCoordinator(t, capacity)

	checkInvariants := func() {
		err := st.Atomic(context.Background(), "sess-1", func(tx store.SessionTx) error {
			count, err := tx.ConfirmedCount()
			require.NoError(t, err)
			assert.LessOrEqual(t, count, capacity)

			wl, err := tx.Waitlist()
			require.NoError(t, err)
			for i, e := range wl {
				assert.Equal(t, i+1, e.WaitlistPos)
			}

			// Waitlist non-empty implies the session is at capacity.
			if len(wl) > 0 {
				assert.Equal(t, capacity, count)
			}
			return nil
		})
		require.NoError(t, err)
	}

	var ids []string
	for i := 0; i < 10; i++ {
		res := enroll(t, c, fmt.Sprintf("participant-%d", i))
		ids = append(ids, res.Enrollment.ID)
		checkInvariants()
	}

	// Cancel every other enrollment, head and middle entries alike.
	for i := 0; i < len(ids); i += 2 {
		_, err := c.CancelEnrollment(context.Background(), "sess-1", ids[i])
		require.NoError(t, err)
		checkInvariants()
	}

	// One event per transition, types always matching the state machine.
	for _, evt := range st.Events() {
		switch evt.Type {
		case models.EventBooked, models.EventWaitlisted, models.EventPromoted,
			models.EventCancelled, models.EventSessionFull:
		default:
			t.Fatalf("unexpected event type %s", evt.Type)
		}
	}
}

func TestPromotionOrderIsStrictFIFO(t *testing.T) {
	c, _ := setupCoordinator(t, 1)

	holder := enroll(t, c, "holder")
	first := enroll(t, c, "first")
	enroll(t, c, "second")
	enroll(t, c, "third")

	res, err := c.CancelEnrollment(context.Background(), "sess-1", holder.Enrollment.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, first.Enrollment.ID, res.Promoted.ID)

	// Next cancellation promotes the new head, never a later entrant.
	res, err = c.CancelEnrollment(context.Background(), "sess-1", first.Enrollment.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, "Player second", res.Promoted.ParticipantName)
}
