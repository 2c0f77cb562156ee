package model

import "time"

// ReservationStatus is the lifecycle state of a reservation row.  There is
// no cancelled or expired state: those transitions delete the row.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
)

// DefaultHoldTTL is how long a pending reservation blocks its seat.
const DefaultHoldTTL = 10 * time.Minute

// Reservation is a hold on one (seat, showtime) pair.  A pending
// reservation is a temporary claim that lapses at ExpiresAt; a confirmed
// one is backed by a ticket.
type Reservation struct {
	ID            uint64            `json:"reservation_id"`
	SeatID        uint64            `json:"seat_id"`
	ShowtimeID    uint64            `json:"showtime_id"`
	UserID        *uint64           `json:"user_id"`
	SessionID     string            `json:"session_id"`
	Status        ReservationStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
	TransactionID *uint64           `json:"transaction_id"`
	PaymentID     *uint64           `json:"payment_id"`
}

// Live reports whether the reservation still blocks its seat at now.
func (r Reservation) Live(now time.Time) bool {
	if r.Status == ReservationConfirmed {
		return true
	}
	return r.Status == ReservationPending && r.ExpiresAt.After(now)
}

// ReservationRequest is one seat of a hold request.
type ReservationRequest struct {
	SeatID     uint64  `json:"seat_id"`
	ShowtimeID uint64  `json:"showtime_id"`
	UserID     *uint64 `json:"user_id,omitempty"`
	SessionID  string  `json:"session_id,omitempty"`
}
