package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDateRange       = errors.New("check-in must be before check-out")
	ErrPastDate               = errors.New("check-in must be after today")
	ErrDateTooFar             = errors.New("check-in is too far in the future")
	ErrGuestLimitExceeded     = errors.New("guest count exceeds property limit")
	ErrInvalidGuestCount      = errors.New("guest count must be positive")
	ErrForbidden              = errors.New("forbidden")
	ErrPolicyViolation        = errors.New("cancellation window has passed")
	ErrInvalidTransition      = errors.New("status transition not allowed")
	ErrRateLimited            = errors.New("too many booking attempts")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrLockNotAcquired        = errors.New("property is locked by another request")
	ErrFullyBooked            = errors.New("no units available for the requested dates")
	ErrNotFound               = errors.New("not found")
)

// FullyBookedError is returned when admission control rejects a request.
// Remaining is the number of units still free, never negative.
type FullyBookedError struct {
	Remaining int
}

func (e *FullyBookedError) Error() string {
	return fmt.Sprintf("%s (remaining=%d)", ErrFullyBooked.Error(), e.Remaining)
}

func (e *FullyBookedError) Unwrap() error { return ErrFullyBooked }

// NotFoundError names the missing entity ("property" or "booking").
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func PropertyNotFound(id int64) error { return &NotFoundError{Entity: "property", ID: id} }

func BookingNotFound(id int64) error { return &NotFoundError{Entity: "booking", ID: id} }
