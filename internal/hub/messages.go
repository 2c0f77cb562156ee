package hub

import (
	"encoding/json"
	"time"
)

// Message kinds sent to viewers.
const (
	TypeInitialData    = "initial_data"
	TypeSeatsReserved  = "seats_reserved"
	TypeSeatReleased   = "seat_released"
	TypeSeatsConfirmed = "seats_confirmed"
	TypeError          = "error"
	TypePong           = "pong"
	TypeHeartbeatAck   = "heartbeat_ack"
)

// Release reasons carried by seat_released.
const (
	ReasonUserCancelled = "user_cancelled"
	ReasonExpired       = "expired"
)

// Envelope is the common server to client frame.
type Envelope struct {
	Type       string `json:"type"`
	ShowtimeID uint64 `json:"showtime_id"`
	Data       any    `json:"data"`
}

// ReservedSeat is one entry of the initial snapshot.
type ReservedSeat struct {
	SeatID      uint64    `json:"seat_id"`
	Status      string    `json:"status"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserSession string    `json:"user_session"`
}

// InitialData is sent once right after a viewer connects.
func InitialData(showtimeID uint64, seats []ReservedSeat) Envelope {
	if seats == nil {
		seats = []ReservedSeat{}
	}
	return Envelope{
		Type:       TypeInitialData,
		ShowtimeID: showtimeID,
		Data:       map[string]any{"reserved_seats": seats},
	}
}

type seatChange struct {
	SeatIDs     []uint64  `json:"seat_ids"`
	UserSession string    `json:"user_session,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// SeatsReserved announces new holds.
func SeatsReserved(showtimeID uint64, seatIDs []uint64, session string, at time.Time) Envelope {
	return Envelope{
		Type:       TypeSeatsReserved,
		ShowtimeID: showtimeID,
		Data:       seatChange{SeatIDs: seatIDs, UserSession: session, Timestamp: at.UTC()},
	}
}

// SeatsConfirmed announces holds that turned into tickets.
func SeatsConfirmed(showtimeID uint64, seatIDs []uint64, at time.Time) Envelope {
	return Envelope{
		Type:       TypeSeatsConfirmed,
		ShowtimeID: showtimeID,
		Data:       seatChange{SeatIDs: seatIDs, Timestamp: at.UTC()},
	}
}

// SeatReleased is flat: seat_ids sits next to type instead of under data.
// Clients depend on this shape.
type SeatReleased struct {
	Type       string    `json:"type"`
	ShowtimeID uint64    `json:"showtime_id"`
	SeatIDs    []uint64  `json:"seat_ids"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     string    `json:"reason"`
}

// Released builds a seat_released frame.  An empty reason means the
// session cancelled its own holds.
func Released(showtimeID uint64, seatIDs []uint64, reason string, at time.Time) SeatReleased {
	if reason == "" {
		reason = ReasonUserCancelled
	}
	return SeatReleased{
		Type:       TypeSeatReleased,
		ShowtimeID: showtimeID,
		SeatIDs:    seatIDs,
		Timestamp:  at.UTC(),
		Reason:     reason,
	}
}

// Error reports a problem to a single viewer.
func Error(showtimeID uint64, message string) Envelope {
	return Envelope{
		Type:       TypeError,
		ShowtimeID: showtimeID,
		Data:       map[string]string{"message": message},
	}
}

// control is an inbound client frame.  Only ping and heartbeat are
// understood; Timestamp is echoed back verbatim.
type control struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

type pong struct {
	Type string `json:"type"`
}

type heartbeatAck struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
}
