package model

// SeatClass is the commercial class of a seat.  It scales the showtime's
// base price when a ticket is issued.
type SeatClass string

const (
	SeatRegular SeatClass = "regular"
	SeatVIP     SeatClass = "vip"
	SeatCouple  SeatClass = "couple"
)

// Multiplier returns the price factor for the class.  Unknown classes are
// priced like regular seats.
func (c SeatClass) Multiplier() float64 {
	switch c {
	case SeatVIP:
		return 1.5
	case SeatCouple:
		return 2.0
	default:
		return 1.0
	}
}

// Seat is a physical seat within a room.  Seats are immutable once created.
//
// Fields:
//  ID     – primary key identifier.
//  RoomID – room the seat belongs to.
//  Code   – human readable position such as "A7".
//  Class  – regular, vip or couple.
type Seat struct {
	ID     uint64    `json:"seat_id"`   // seats.seat_id
	RoomID uint64    `json:"room_id"`   // seats.room_id
	Code   string    `json:"seat_code"` // seats.seat_code
	Class  SeatClass `json:"seat_type"` // seats.seat_type
}
