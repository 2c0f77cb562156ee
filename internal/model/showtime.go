package model

import "time"

// ShowtimeStatus is the scheduling state of a showtime.
type ShowtimeStatus string

const (
	ShowtimeActive   ShowtimeStatus = "active"
	ShowtimeInactive ShowtimeStatus = "inactive"
	ShowtimeSoldOut  ShowtimeStatus = "sold_out"
)

// Showtime is a scheduled screening of a movie in a room.  BasePrice is the
// price of a regular seat; other classes scale it through SeatClass.
type Showtime struct {
	ID        uint64         `json:"showtime_id"` // showtimes.showtime_id
	MovieID   uint64         `json:"movie_id"`    // showtimes.movie_id
	RoomID    uint64         `json:"room_id"`     // showtimes.room_id
	StartTime time.Time      `json:"show_datetime"`
	BasePrice int64          `json:"ticket_price"`
	Status    ShowtimeStatus `json:"status"`
}

// SeatPrice returns the ticket price for a seat of the given class.  The
// fractional part is truncated.
func (s Showtime) SeatPrice(class SeatClass) int64 {
	return int64(float64(s.BasePrice) * class.Multiplier())
}
