// internal/models/enrollment.go
package models

import "time"

// EnrollmentStatus is the state of a participant's claim on a session.
type EnrollmentStatus string

const (
	EnrollmentConfirmed  EnrollmentStatus = "confirmed"
	EnrollmentWaitlisted EnrollmentStatus = "waitlisted"
	EnrollmentCancelled  EnrollmentStatus = "cancelled"
)

// Enrollment is one participant's claim on a session. WaitlistPos is only
// meaningful while Status is waitlisted; positions within a session are a
// contiguous ascending sequence starting at 1.
type Enrollment struct {
	ID              string           `json:"id" db:"id"`
	SessionID       string           `json:"sessionId" db:"session_id"`
	ParticipantID   string           `json:"participantId" db:"participant_id"`
	ParticipantName string           `json:"participantName" db:"participant_name"`
	Status          EnrollmentStatus `json:"status" db:"status"`
	WaitlistPos     int              `json:"waitlistPos,omitempty" db:"waitlist_pos"`
	CreatedAt       time.Time        `json:"createdAt" db:"created_at"`
	CancelledAt     *time.Time       `json:"cancelledAt,omitempty" db:"cancelled_at"`
}

// Active reports whether the enrollment still holds or is waiting for a seat.
// A participant may hold at most one active enrollment per session.
func (e *Enrollment) Active() bool {
	return e.Status == EnrollmentConfirmed || e.Status == EnrollmentWaitlisted
}
