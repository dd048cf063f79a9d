// Package store provides the session-scoped transactional storage the
// booking coordinator runs on. Implementations must guarantee that Atomic
// executes its callback inside a critical section keyed by session id:
// ledger, waitlist and outbox writes for one session either all commit or
// all roll back, and no two callbacks for the same session ever interleave.
package store

import (
	"context"
	"time"

	"booking-workers/internal/models"
)

// SessionTx is the view of one session's state inside a critical section.
// Every mutation is provisional until the Atomic callback returns nil.
type SessionTx interface {
	// Session returns the locked session row. Mutations to the returned
	// struct are committed by UpdateSession.
	Session() *models.Session
	UpdateSession(s *models.Session) error

	// ConfirmedCount derives the confirmed seat count; it is never stored
	// as a free-standing counter.
	ConfirmedCount() (int, error)

	ActiveEnrollmentFor(participantID string) (*models.Enrollment, error)
	Enrollment(id string) (*models.Enrollment, error)
	InsertEnrollment(e *models.Enrollment) error
	UpdateEnrollment(e *models.Enrollment) error
	ActiveEnrollments() ([]*models.Enrollment, error)

	// Waitlist ordering. Positions are unique per session and ascending;
	// ShiftWaitlistAfter compacts the sequence after a removal.
	MaxWaitlistPos() (int, error)
	WaitlistHead() (*models.Enrollment, error)
	Waitlist() ([]*models.Enrollment, error)
	ShiftWaitlistAfter(pos int) error

	// AppendEvent writes an outbox row in the same transaction as the
	// state change it describes.
	AppendEvent(evt *models.NotificationEvent) error
}

// Store is the persistence contract for the booking core and its workers.
type Store interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)

	// Atomic runs fn inside the per-session critical section. It returns
	// the session-not-found error when id is unknown, and fn's error
	// (after rollback) when fn fails.
	Atomic(ctx context.Context, sessionID string, fn func(tx SessionTx) error) error

	// Outbox relay side.
	PendingEvents(ctx context.Context, limit int) ([]*models.NotificationEvent, error)
	MarkPublished(ctx context.Context, eventID string, at time.Time) error

	// Notifier side: the dispatcher owns delivery status and attempts,
	// never booking state.
	Event(ctx context.Context, id string) (*models.NotificationEvent, error)
	UpdateEventDelivery(ctx context.Context, eventID string, status models.DeliveryStatus, attempts int) error

	// Session closer side.
	DueSessions(ctx context.Context, now time.Time, limit int) ([]string, error)
}
