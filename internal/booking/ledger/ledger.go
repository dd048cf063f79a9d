// Package ledger tracks a session's confirmed seat count against its fixed
// capacity. The count is derived from confirmed enrollments inside the
// caller's session transaction, so Reserve and Release are linearizable for
// one session as long as the caller stays inside store.Atomic.
package ledger

import (
	"booking-workers/internal/booking/store"
)

// ReserveResult is the outcome of a seat reservation attempt.
type ReserveResult string

const (
	Reserved   ReserveResult = "reserved"
	AtCapacity ReserveResult = "at_capacity"
)

// ReleaseResult is the outcome of a seat release.
type ReleaseResult string

const (
	FreedSlot ReleaseResult = "freed_slot"
	NoOp      ReleaseResult = "noop"
)

// Reserve checks whether a seat is available. The caller commits the
// reservation by writing the confirmed enrollment in the same transaction;
// nothing is mutated when the session is at capacity.
func Reserve(tx store.SessionTx) (ReserveResult, error) {
	count, err := tx.ConfirmedCount()
	if err != nil {
		return "", err
	}
	if count >= tx.Session().Capacity {
		return AtCapacity, nil
	}
	return Reserved, nil
}

// Release reports whether cancelling a confirmed enrollment frees a seat.
// The caller must have marked (or be about to mark) exactly one confirmed
// enrollment cancelled in the same transaction.
func Release(tx store.SessionTx) (ReleaseResult, error) {
	count, err := tx.ConfirmedCount()
	if err != nil {
		return "", err
	}
	if count == 0 {
		return NoOp, nil
	}
	return FreedSlot, nil
}
