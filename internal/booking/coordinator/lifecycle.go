package coordinator

import (
	"context"
	"time"

	"booking-workers/internal/booking/store"
	"booking-workers/internal/booking/waitlist"
	"booking-workers/internal/common/errors"
	"booking-workers/internal/common/metrics"
	"booking-workers/internal/models"
)

// CancelSession cancels a session and every active enrollment on it,
// confirmed and waitlisted alike. Each cancelled enrollment gets its own
// notification event, followed by one session_cancelled event for the host.
// Returns the number of enrollments cancelled. Cancelling an
// already-cancelled session is a stable no-op.
func (c *Coordinator) CancelSession(ctx context.Context, sessionID string) (int, error) {
	cancelled := 0

	err := c.store.Atomic(ctx, sessionID, func(tx store.SessionTx) error {
		sess := tx.Session()
		if sess.Status == models.SessionCancelled {
			return nil
		}
		if sess.Status == models.SessionCompleted {
			return errors.NewInvalidTransitionError(string(sess.Status), string(models.SessionCancelled))
		}

		active, err := tx.ActiveEnrollments()
		if err != nil {
			return err
		}

		now := c.now()
		for _, e := range active {
			e.Status = models.EnrollmentCancelled
			e.WaitlistPos = 0
			e.CancelledAt = &now
			if err := tx.UpdateEnrollment(e); err != nil {
				return err
			}
			if err := tx.AppendEvent(c.newEvent(models.EventSessionCancelled, sess, e, nil)); err != nil {
				return err
			}
			cancelled++
		}

		sess.Status = models.SessionCancelled
		if err := tx.UpdateSession(sess); err != nil {
			return err
		}
		return tx.AppendEvent(c.newEvent(models.EventSessionCancelled, sess, nil, map[string]interface{}{
			"enrollments_cancelled": cancelled,
		}))
	})
	if err != nil {
		return 0, err
	}

	c.log.Info("session cancelled", map[string]interface{}{
		"sessionId":            sessionID,
		"enrollmentsCancelled": cancelled,
	})
	return cancelled, nil
}

// RaiseCapacity sets a new capacity on an open or full session and promotes
// waitlist heads in order until the new seats are taken or the waitlist is
// empty. The new capacity must not fall below the confirmed count. Returns
// the promoted enrollments in promotion order.
func (c *Coordinator) RaiseCapacity(ctx context.Context, sessionID string, capacity int) ([]*models.Enrollment, error) {
	var promoted []*models.Enrollment

	err := c.store.Atomic(ctx, sessionID, func(tx store.SessionTx) error {
		sess := tx.Session()
		if !sess.AcceptsEnrollments() {
			return errors.NewSessionClosedError(sessionID)
		}

		confirmed, err := tx.ConfirmedCount()
		if err != nil {
			return err
		}
		if capacity < confirmed {
			return errors.NewCapacityBelowConfirmedError(confirmed, capacity)
		}

		sess.Capacity = capacity

		for confirmed < capacity {
			head, err := waitlist.DequeueHead(tx)
			if err != nil {
				return err
			}
			if head == nil {
				break
			}
			p, err := c.promote(tx, sess, head)
			if err != nil {
				return err
			}
			promoted = append(promoted, p)
			confirmed++
		}

		if confirmed == capacity {
			sess.Status = models.SessionFull
		} else {
			sess.Status = models.SessionOpen
		}
		return tx.UpdateSession(sess)
	})
	if err != nil {
		return nil, err
	}

	for range promoted {
		metrics.PromotionsTotal.Inc()
	}
	c.log.Info("capacity raised", map[string]interface{}{
		"sessionId": sessionID,
		"capacity":  capacity,
		"promoted":  len(promoted),
	})
	return promoted, nil
}

// CompleteDueSessions flips open and full sessions whose start time has
// passed to completed. Completion freezes the booking state: no events are
// emitted and the waitlist is left as it stands. Returns the number of
// sessions completed.
func (c *Coordinator) CompleteDueSessions(ctx context.Context, now time.Time, limit int) (int, error) {
	ids, err := c.store.DueSessions(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, id := range ids {
		err := c.store.Atomic(ctx, id, func(tx store.SessionTx) error {
			sess := tx.Session()
			// Re-check under the session lock; another writer may have
			// cancelled or completed it since the scan.
			if !sess.AcceptsEnrollments() || sess.StartsAt.After(now) {
				return nil
			}
			sess.Status = models.SessionCompleted
			return tx.UpdateSession(sess)
		})
		if err != nil {
			c.log.WithError(err).Error("failed to complete session", map[string]interface{}{
				"sessionId": id,
			})
			continue
		}
		completed++
		metrics.SessionsCompletedTotal.Inc()
	}
	return completed, nil
}
