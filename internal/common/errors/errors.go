// Package errors provides standardized error handling for the booking core
// and its workers.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Client-caused errors: returned synchronously, never retried.
const (
	ErrCodeDuplicateEnrollment ErrorCode = "DUPLICATE_ENROLLMENT"
	ErrCodeSessionClosed       ErrorCode = "SESSION_CLOSED"
	ErrCodeAlreadyCancelled    ErrorCode = "ALREADY_CANCELLED"
	ErrCodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeEnrollmentNotFound  ErrorCode = "ENROLLMENT_NOT_FOUND"
)

// Lifecycle errors.
const (
	ErrCodeCapacityBelowConfirmed ErrorCode = "CAPACITY_BELOW_CONFIRMED"
	ErrCodeInvalidTransition      ErrorCode = "INVALID_TRANSITION"
)

// Consistency errors: impossible states, treated as fatal bugs.
const (
	ErrCodeConsistencyViolation ErrorCode = "CONSISTENCY_VIOLATION"
)

// Delivery errors owned by the notifier.
const (
	ErrCodeSMSSendFailed ErrorCode = "SMS_SEND_FAILED"
	ErrCodeSMSRejected   ErrorCode = "SMS_REJECTED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is lets errors.Is match two StandardErrors by code.
func (e *StandardError) Is(target error) bool {
	var se *StandardError
	if errors.As(target, &se) {
		return e.Code == se.Code
	}
	return false
}

// HasCode reports whether err is a StandardError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var se *StandardError
	return errors.As(err, &se) && se.Code == code
}

// IsRetryable reports whether err is a StandardError marked retryable.
func IsRetryable(err error) bool {
	var se *StandardError
	return errors.As(err, &se) && se.Retryable
}

// NewDuplicateEnrollmentError creates a non-retryable client error for a
// participant that already holds an active enrollment on the session.
func NewDuplicateEnrollmentError(participantID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateEnrollment,
		Message:   "Participant already holds an active enrollment for this session",
		Details:   participantID,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionClosedError creates a non-retryable client error for enrollment
// requests against a cancelled or completed session.
func NewSessionClosedError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionClosed,
		Message:   "Session is not accepting enrollments",
		Details:   sessionID,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionNotFoundError creates a non-retryable lookup error.
func NewSessionNotFoundError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionNotFound,
		Message:   "Session not found",
		Details:   sessionID,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEnrollmentNotFoundError creates a non-retryable lookup error.
func NewEnrollmentNotFoundError(enrollmentID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEnrollmentNotFound,
		Message:   "Enrollment not found",
		Details:   enrollmentID,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCapacityBelowConfirmedError rejects a capacity change that would drop
// below the currently confirmed count.
func NewCapacityBelowConfirmedError(confirmed, requested int) *StandardError {
	return &StandardError{
		Code:      ErrCodeCapacityBelowConfirmed,
		Message:   "Capacity cannot drop below confirmed enrollments",
		Details:   fmt.Sprintf("confirmed=%d requested=%d", confirmed, requested),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidTransitionError rejects a session status change outside the
// allowed lifecycle.
func NewInvalidTransitionError(from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   "Session status transition not allowed",
		Details:   fmt.Sprintf("%s -> %s", from, to),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConsistencyViolationError marks an impossible state, such as a promotion
// failing to re-reserve a just-freed seat. Never retried, always surfaced.
func NewConsistencyViolationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConsistencyViolation,
		Message:   "Booking state consistency violation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSMSSendFailedError creates a retryable transient delivery error.
func NewSMSSendFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSMSSendFailed,
		Message:   "SMS gateway send failed",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSMSRejectedError creates a non-retryable provider rejection.
func NewSMSRejectedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSMSRejected,
		Message:   "SMS gateway rejected the message",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
