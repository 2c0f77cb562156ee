package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks input that can never succeed as sent.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSeatConfirmed means the seat is sold; retrying will not help.
	ErrSeatConfirmed = errors.New("seat already confirmed")
	// ErrSeatHeld means another session holds the seat; it may free up
	// when that hold lapses.
	ErrSeatHeld = errors.New("seat temporarily held")
	// ErrNoPendingHolds means there is nothing for the session or payment
	// to act on.
	ErrNoPendingHolds = errors.New("no pending reservations")
	// ErrHoldExpired means every hold linked to a payment lapsed before
	// the payment cleared.
	ErrHoldExpired = errors.New("reservation hold expired")
	// ErrPaymentProcessed means a result for the order was already
	// recorded.
	ErrPaymentProcessed = errors.New("payment already processed")
	// ErrConfirmationFailed means the confirmation transaction was rolled
	// back after payment succeeded.  The order needs manual reconciliation.
	ErrConfirmationFailed = errors.New("booking confirmation failed")
)

// ConflictError reports the seat that blocked a hold.  It unwraps to
// ErrSeatConfirmed or ErrSeatHeld so callers can pick retry behaviour.
type ConflictError struct {
	SeatID     uint64
	ShowtimeID uint64
	Confirmed  bool
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("seat %d for showtime %d: %v", e.SeatID, e.ShowtimeID, e.Unwrap())
}

func (e *ConflictError) Unwrap() error {
	if e.Confirmed {
		return ErrSeatConfirmed
	}
	return ErrSeatHeld
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
