package order

import (
	"errors"
	"fmt"
)

// ErrUnknownOrder is returned when an order id has no ledger entry.
var ErrUnknownOrder = errors.New("order not found")

// ValidationError rejects a malformed request. The caller can correct
// the request and resubmit.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError reports an illegal state change attempt. It is
// always a caller bug or a race, never swallowed.
type InvalidTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid transition %s -> %s", e.OrderID, e.From, e.To)
}

// OverfillError reports a fill that would exceed the order's remaining
// quantity. It indicates venue/ledger desynchronization and must be
// surfaced, never auto-corrected.
type OverfillError struct {
	OrderID   string
	Remaining int64
	Fill      int64
}

func (e *OverfillError) Error() string {
	return fmt.Sprintf("order %s: fill of %d exceeds remaining quantity %d", e.OrderID, e.Fill, e.Remaining)
}
