// internal/models/session.go
package models

import "time"

// SessionStatus is the lifecycle state of a bookable session.
type SessionStatus string

const (
	SessionOpen      SessionStatus = "open"
	SessionFull      SessionStatus = "full"
	SessionCancelled SessionStatus = "cancelled"
	SessionCompleted SessionStatus = "completed"
)

// Session is a capacity-bounded bookable event. Capacity is fixed at
// creation; only the admin lifecycle operations may raise it afterwards.
type Session struct {
	ID        string        `json:"id" db:"id"`
	Title     string        `json:"title" db:"title"`
	HostPhone string        `json:"hostPhone" db:"host_phone"`
	Capacity  int           `json:"capacity" db:"capacity"`
	Status    SessionStatus `json:"status" db:"status"`
	StartsAt  time.Time     `json:"startsAt" db:"starts_at"`
	CreatedAt time.Time     `json:"createdAt" db:"created_at"`
}

// AcceptsEnrollments reports whether new enrollment requests may be taken.
// A full session still accepts requests; they land on the waitlist.
func (s *Session) AcceptsEnrollments() bool {
	return s.Status == SessionOpen || s.Status == SessionFull
}

// Terminal reports whether the session can no longer change state.
func (s *Session) Terminal() bool {
	return s.Status == SessionCancelled || s.Status == SessionCompleted
}
