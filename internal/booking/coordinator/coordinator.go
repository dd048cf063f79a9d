// Package coordinator implements the booking state machine. It is the only
// writer of booking state: every enrollment transition and its outbox event
// commit inside one store.Atomic critical section, so a participant can
// never see a Booked notification for a session that was in fact full, and
// no transition ever commits without its event.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"booking-workers/internal/booking/ledger"
	"booking-workers/internal/booking/store"
	"booking-workers/internal/booking/waitlist"
	"booking-workers/internal/common/errors"
	"booking-workers/internal/common/logger"
	"booking-workers/internal/common/metrics"
	"booking-workers/internal/models"
)

// BookingOutcome is the result of an enrollment request.
type BookingOutcome string

const (
	OutcomeConfirmed  BookingOutcome = "confirmed"
	OutcomeWaitlisted BookingOutcome = "waitlisted"
)

// BookingResult reports what an enrollment request produced.
type BookingResult struct {
	Outcome    BookingOutcome
	Enrollment *models.Enrollment
}

// CancelResult reports what a cancellation produced. Promoted is set when
// the freed seat went to the waitlist head.
type CancelResult struct {
	AlreadyCancelled bool
	Cancelled        *models.Enrollment
	Promoted         *models.Enrollment
}

type Coordinator struct {
	store store.Store
	log   logger.Logger
	now   func() time.Time
	newID func() string
}

func New(st store.Store, log logger.Logger) *Coordinator {
	return &Coordinator{
		store: st,
		log:   log.WithFields(map[string]interface{}{"component": "coordinator"}),
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// RequestEnrollment enrolls a participant on a session: confirmed while a
// seat is free, waitlisted at the tail otherwise. Fails with
// DuplicateEnrollment when the participant already holds an active
// enrollment and SessionClosed when the session is cancelled or completed.
func (c *Coordinator) RequestEnrollment(ctx context.Context, sessionID, participantID, participantName string) (*BookingResult, error) {
	var result *BookingResult

	err := c.store.Atomic(ctx, sessionID, func(tx store.SessionTx) error {
		sess := tx.Session()
		if !sess.AcceptsEnrollments() {
			return errors.NewSessionClosedError(sessionID)
		}

		existing, err := tx.ActiveEnrollmentFor(participantID)
		if err != nil {
			return err
		}
		if existing != nil {
			return errors.NewDuplicateEnrollmentError(participantID)
		}

		res, err := ledger.Reserve(tx)
		if err != nil {
			return err
		}

		e := &models.Enrollment{
			ID:              c.newID(),
			SessionID:       sessionID,
			ParticipantID:   participantID,
			ParticipantName: participantName,
			CreatedAt:       c.now(),
		}

		if res == ledger.Reserved {
			e.Status = models.EnrollmentConfirmed
			if err := tx.InsertEnrollment(e); err != nil {
				return err
			}
			if err := tx.AppendEvent(c.newEvent(models.EventBooked, sess, e, nil)); err != nil {
				return err
			}

			count, err := tx.ConfirmedCount()
			if err != nil {
				return err
			}
			if count == sess.Capacity && sess.Status == models.SessionOpen {
				sess.Status = models.SessionFull
				if err := tx.UpdateSession(sess); err != nil {
					return err
				}
				if err := tx.AppendEvent(c.newEvent(models.EventSessionFull, sess, nil, nil)); err != nil {
					return err
				}
			}

			result = &BookingResult{Outcome: OutcomeConfirmed, Enrollment: e}
			return nil
		}

		// At capacity: append to the waitlist tail.
		e.Status = models.EnrollmentWaitlisted
		pos, err := waitlist.Enqueue(tx, e)
		if err != nil {
			return err
		}
		e.WaitlistPos = pos
		if err := tx.InsertEnrollment(e); err != nil {
			return err
		}
		if err := tx.AppendEvent(c.newEvent(models.EventWaitlisted, sess, e, map[string]interface{}{
			"position": pos,
		})); err != nil {
			return err
		}

		result = &BookingResult{Outcome: OutcomeWaitlisted, Enrollment: e}
		return nil
	})
	if err != nil {
		metrics.BookingsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	metrics.BookingsTotal.WithLabelValues(string(result.Outcome)).Inc()
	c.log.Info("enrollment request processed", map[string]interface{}{
		"sessionId":     sessionID,
		"participantId": participantID,
		"outcome":       result.Outcome,
	})
	return result, nil
}

// CancelEnrollment cancels an enrollment. Cancelling a confirmed enrollment
// frees a seat and promotes the waitlist head when one exists; cancelling a
// waitlisted enrollment compacts the queue. Cancelling an already-cancelled
// enrollment is a stable no-op.
func (c *Coordinator) CancelEnrollment(ctx context.Context, sessionID, enrollmentID string) (*CancelResult, error) {
	result := &CancelResult{}

	err := c.store.Atomic(ctx, sessionID, func(tx store.SessionTx) error {
		e, err := tx.Enrollment(enrollmentID)
		if err != nil {
			return err
		}
		if e.SessionID != sessionID {
			return errors.NewEnrollmentNotFoundError(enrollmentID)
		}
		if e.Status == models.EnrollmentCancelled {
			result.AlreadyCancelled = true
			return nil
		}

		sess := tx.Session()
		now := c.now()

		if e.Status == models.EnrollmentConfirmed {
			rel, err := ledger.Release(tx)
			if err != nil {
				return err
			}

			e.Status = models.EnrollmentCancelled
			e.CancelledAt = &now
			if err := tx.UpdateEnrollment(e); err != nil {
				return err
			}
			if err := tx.AppendEvent(c.newEvent(models.EventCancelled, sess, e, nil)); err != nil {
				return err
			}
			result.Cancelled = e

			if rel != ledger.FreedSlot {
				return nil
			}

			head, err := waitlist.DequeueHead(tx)
			if err != nil {
				return err
			}
			if head == nil {
				if sess.Status == models.SessionFull {
					sess.Status = models.SessionOpen
					return tx.UpdateSession(sess)
				}
				return nil
			}

			promoted, err := c.promote(tx, sess, head)
			if err != nil {
				return err
			}
			result.Promoted = promoted
			return nil
		}

		// Waitlisted: drop out of the queue, no promotion.
		if err := waitlist.Remove(tx, e); err != nil {
			return err
		}
		e.Status = models.EnrollmentCancelled
		e.CancelledAt = &now
		if err := tx.UpdateEnrollment(e); err != nil {
			return err
		}
		if err := tx.AppendEvent(c.newEvent(models.EventCancelled, sess, e, nil)); err != nil {
			return err
		}
		result.Cancelled = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Promoted != nil {
		metrics.PromotionsTotal.Inc()
	}
	return result, nil
}

// promote transitions a dequeued waitlist head to confirmed. The seat was
// freed inside this same transaction, so a failed re-reserve is an
// impossible state and surfaces as a consistency violation, never a retry.
func (c *Coordinator) promote(tx store.SessionTx, sess *models.Session, head *models.Enrollment) (*models.Enrollment, error) {
	res, err := ledger.Reserve(tx)
	if err != nil {
		return nil, err
	}
	if res != ledger.Reserved {
		err := errors.NewConsistencyViolationError(
			fmt.Sprintf("promotion re-reserve failed for enrollment %s on session %s", head.ID, sess.ID))
		c.log.Error("promotion failed to re-reserve freed seat", map[string]interface{}{
			"sessionId":    sess.ID,
			"enrollmentId": head.ID,
		})
		return nil, err
	}

	head.Status = models.EnrollmentConfirmed
	head.WaitlistPos = 0
	if err := tx.UpdateEnrollment(head); err != nil {
		return nil, err
	}
	if err := tx.AppendEvent(c.newEvent(models.EventPromoted, sess, head, nil)); err != nil {
		return nil, err
	}
	return head, nil
}

func (c *Coordinator) newEvent(t models.EventType, sess *models.Session, e *models.Enrollment, extra map[string]interface{}) *models.NotificationEvent {
	payload := map[string]interface{}{
		"session_id":    sess.ID,
		"session_title": sess.Title,
	}
	evt := &models.NotificationEvent{
		ID:             c.newID(),
		Type:           t,
		SessionID:      sess.ID,
		Recipient:      sess.HostPhone,
		DeliveryStatus: models.DeliveryPending,
		CreatedAt:      c.now(),
	}
	if e != nil {
		evt.EnrollmentID = e.ID
		payload["participant_name"] = e.ParticipantName
	}
	for k, v := range extra {
		payload[k] = v
	}
	evt.Payload = payload
	return evt
}
