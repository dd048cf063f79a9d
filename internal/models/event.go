// internal/models/event.go
package models

import "time"

// EventType enumerates the domain events the booking coordinator emits.
type EventType string

const (
	EventBooked           EventType = "booked"
	EventWaitlisted       EventType = "waitlisted"
	EventPromoted         EventType = "promoted"
	EventSessionFull      EventType = "session_full"
	EventCancelled        EventType = "cancelled"
	EventSessionCancelled EventType = "session_cancelled"
)

// DeliveryStatus tracks the notifier's progress on an event. The dispatcher,
// not the bus, is the source of truth for whether a message actually went out.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryAbandoned DeliveryStatus = "abandoned"
)

// NotificationEvent is an outbox row: written in the same transaction as the
// enrollment state change it describes, published to the bus by the relay,
// and delivered (or abandoned) by the SMS notifier.
type NotificationEvent struct {
	ID             string                 `json:"id" db:"id"`
	Type           EventType              `json:"type" db:"type"`
	SessionID      string                 `json:"sessionId" db:"session_id"`
	EnrollmentID   string                 `json:"enrollmentId,omitempty" db:"enrollment_id"`
	Recipient      string                 `json:"recipient" db:"recipient"`
	Payload        map[string]interface{} `json:"payload,omitempty" db:"payload"`
	DeliveryStatus DeliveryStatus         `json:"deliveryStatus" db:"delivery_status"`
	Attempts       int                    `json:"attempts" db:"attempts"`
	PublishedAt    *time.Time             `json:"publishedAt,omitempty" db:"published_at"`
	CreatedAt      time.Time              `json:"createdAt" db:"created_at"`
}
