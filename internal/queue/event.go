// Package queue defines the booking events exchanged over RabbitMQ and the
// publisher and consumer that move them.
package queue

// BookingQueue is the durable queue that carries BookingConfirmedEvent.
const BookingQueue = "booking.confirmed"

// BookedSeat is one ticketed seat of a booking.
type BookedSeat struct {
	ShowtimeID uint64 `json:"showtime_id"`
	SeatID     uint64 `json:"seat_id"`
	SeatCode   string `json:"seat_code"`
	Price      int64  `json:"price"`
}

// BookingConfirmedEvent is published after a payment's holds have been
// turned into tickets.  It carries enough for downstream consumers (mail,
// analytics, audit log) to act without reading the primary database.
type BookingConfirmedEvent struct {
	BookingCode   string       `json:"booking_code"`
	OrderID       string       `json:"order_id"`
	PaymentID     uint64       `json:"payment_id"`
	TransactionID uint64       `json:"transaction_id"`
	UserID        *uint64      `json:"user_id,omitempty"`
	Seats         []BookedSeat `json:"seats"`
	FailedSeatIDs []uint64     `json:"failed_seat_ids,omitempty"`
	TotalAmount   int64        `json:"total_amount"`
	ConfirmedAt   string       `json:"confirmed_at"`
}
