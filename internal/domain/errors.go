package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTicketTypeNotFound = errors.New("ticket type not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidID          = errors.New("invalid id")
	ErrSessionRequired    = errors.New("session id required")

	// ErrInsufficientCapacity is the errors.Is target for CapacityError.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	ErrHoldNotFound = errors.New("hold not found")
	ErrHoldExpired  = errors.New("hold expired")

	// ErrLockTimeout is retryable: the per-ticket-type lock could not be
	// acquired within the bound.
	ErrLockTimeout = errors.New("capacity lock acquisition timed out")

	ErrOrderNotPending   = errors.New("order is not pending")
	ErrOrderCancelled    = errors.New("order already cancelled")
	ErrTicketTypeHidden  = errors.New("ticket type is not on sale")
	ErrNameRequired      = errors.New("name required")
	ErrInvalidCapacity   = errors.New("capacity must be positive")
	ErrInvalidBundleSize = errors.New("bundle size must be at least 2")

	// ErrInvariantViolation marks states that must never occur in correct
	// operation (committed above total, decrement below zero). Not retryable.
	ErrInvariantViolation = errors.New("capacity invariant violated")
)

// CapacityError reports a shortage together with the capacity actually
// available at decision time, so callers can re-prompt with real numbers.
type CapacityError struct {
	TicketTypeID string
	Requested    int
	Available    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity for ticket type %s: requested %d, available %d",
		e.TicketTypeID, e.Requested, e.Available)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrInsufficientCapacity
}
