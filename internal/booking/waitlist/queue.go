// Package waitlist maintains the ordered overflow queue of a session.
// Order is carried by an explicit per-session position sequence, never by
// insertion order of any underlying collection. All operations run inside
// the caller's session transaction.
package waitlist

import (
	"fmt"

	"booking-workers/internal/booking/store"
	"booking-workers/internal/common/errors"
	"booking-workers/internal/models"
)

// Enqueue appends the enrollment to the tail of the session's waitlist and
// returns its assigned position. Fails when the participant already holds
// an active entry on the session.
func Enqueue(tx store.SessionTx, e *models.Enrollment) (int, error) {
	existing, err := tx.ActiveEnrollmentFor(e.ParticipantID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, errors.NewDuplicateEnrollmentError(e.ParticipantID)
	}

	max, err := tx.MaxWaitlistPos()
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// DequeueHead removes the lowest-position entry from the waitlist and
// compacts the remaining positions so they stay contiguous from 1. Returns
// nil when the waitlist is empty. The caller decides the popped
// enrollment's next status and persists it.
func DequeueHead(tx store.SessionTx) (*models.Enrollment, error) {
	head, err := tx.WaitlistHead()
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, nil
	}
	if err := tx.ShiftWaitlistAfter(head.WaitlistPos); err != nil {
		return nil, err
	}
	head.WaitlistPos = 0
	return head, nil
}

// Remove takes an arbitrary entry off the waitlist, preserving the relative
// order of the rest by shifting every higher position down.
func Remove(tx store.SessionTx, e *models.Enrollment) error {
	if e.Status != models.EnrollmentWaitlisted {
		return errors.NewConsistencyViolationError(
			fmt.Sprintf("remove called for non-waitlisted enrollment %s", e.ID))
	}
	if err := tx.ShiftWaitlistAfter(e.WaitlistPos); err != nil {
		return err
	}
	e.WaitlistPos = 0
	return nil
}
