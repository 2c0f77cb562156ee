package model

import "time"

// TransactionStatus tracks the accounting record behind a payment.
type TransactionStatus string

const (
	TransactionPending TransactionStatus = "pending"
	TransactionSuccess TransactionStatus = "success"
	TransactionFailed  TransactionStatus = "failed"
)

// Transaction is the accounting record linked 1:1 to a payment.
type Transaction struct {
	ID             uint64            `json:"transaction_id"`
	UserID         *uint64           `json:"user_id"`
	PaymentID      uint64            `json:"payment_id"`
	TotalAmount    int64             `json:"total_amount"`
	PaymentMethod  PaymentMethod     `json:"payment_method"`
	Status         TransactionStatus `json:"status"`
	PaymentRefCode string            `json:"payment_ref_code,omitempty"`
	CreatedAt      time.Time         `json:"transaction_time"`
}

// Ticket is issued for each confirmed seat.  All tickets of one payment
// share a BookingCode.
type Ticket struct {
	ID            uint64    `json:"ticket_id,omitempty"`
	UserID        *uint64   `json:"user_id"`
	ShowtimeID    uint64    `json:"showtime_id"`
	SeatID        uint64    `json:"seat_id"`
	Price         int64     `json:"price"`
	Status        string    `json:"status"`
	TransactionID uint64    `json:"transaction_id"`
	BookingCode   string    `json:"booking_code"`
	CreatedAt     time.Time `json:"created_at"`
}
