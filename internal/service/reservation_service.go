package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/cinema-seat-availability/internal/hub"
	"github.com/iliyamo/cinema-seat-availability/internal/model"
	"github.com/iliyamo/cinema-seat-availability/internal/repository"
)

// ReservationService turns hold and cancel requests into state changes and
// announces each change to the showtime's viewers after it commits.
type ReservationService interface {
	Reserve(ctx context.Context, req model.ReservationRequest) (model.Reservation, error)
	ReserveMany(ctx context.Context, reqs []model.ReservationRequest) ([]model.Reservation, error)
	Cancel(ctx context.Context, req CancelRequest) (CancelResult, error)
	ListReserved(ctx context.Context, showtimeID uint64) ([]model.Reservation, error)
	Showtime(ctx context.Context, showtimeID uint64) (model.Showtime, error)
}

// CancelRequest releases a session's own pending holds.
type CancelRequest struct {
	ShowtimeID uint64   `json:"showtime_id"`
	SeatIDs    []uint64 `json:"seat_ids"`
	SessionID  string   `json:"session_id"`
}

// CancelResult reports what a cancel actually released.  An empty
// CancelledSeats is a successful no-op.
type CancelResult struct {
	Success        bool     `json:"success"`
	Message        string   `json:"message"`
	CancelledSeats []uint64 `json:"cancelled_seats"`
	SeatCodes      []string `json:"seat_codes"`
	ShowtimeID     uint64   `json:"showtime_id"`
	SessionID      string   `json:"session_id"`
}

// NothingToCancel is the message of a cancel that matched no rows.
const NothingToCancel = "No pending reservations found to cancel"

// ReservationDeps wires a ReservationService.
type ReservationDeps struct {
	DB           TxBeginner
	Reservations ReservationStore
	Showtimes    ShowtimeStore
	Seats        SeatStore
	Hub          Broadcaster
	Outbox       Dispatcher
	HoldTTL      time.Duration
	Now          func() time.Time
}

type reservationService struct {
	db           TxBeginner
	reservations ReservationStore
	showtimes    ShowtimeStore
	seats        SeatStore
	hub          Broadcaster
	outbox       Dispatcher
	ttl          time.Duration
	now          func() time.Time
}

// NewReservationService builds the reservation manager.
func NewReservationService(d ReservationDeps) ReservationService {
	if d.HoldTTL <= 0 {
		d.HoldTTL = model.DefaultHoldTTL
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &reservationService{
		db:           d.DB,
		reservations: d.Reservations,
		showtimes:    d.Showtimes,
		seats:        d.Seats,
		hub:          d.Hub,
		outbox:       d.Outbox,
		ttl:          d.HoldTTL,
		now:          d.Now,
	}
}

func (s *reservationService) Showtime(ctx context.Context, showtimeID uint64) (model.Showtime, error) {
	return s.showtimes.GetByID(ctx, showtimeID)
}

func (s *reservationService) Reserve(ctx context.Context, req model.ReservationRequest) (model.Reservation, error) {
	out, err := s.ReserveMany(ctx, []model.ReservationRequest{req})
	if err != nil {
		return model.Reservation{}, err
	}
	return out[0], nil
}

// showtimeBatch is the part of a hold request that targets one showtime.
// Seats are also grouped per session, in first-seen order, so each
// seats_reserved broadcast names the session that actually holds them.
type showtimeBatch struct {
	showtimeID uint64
	seatIDs    []uint64
	requests   []model.ReservationRequest
	sessions   []string
	bySession  map[string][]uint64
}

func (b *showtimeBatch) add(r model.ReservationRequest) {
	b.seatIDs = append(b.seatIDs, r.SeatID)
	b.requests = append(b.requests, r)
	if _, ok := b.bySession[r.SessionID]; !ok {
		b.sessions = append(b.sessions, r.SessionID)
	}
	b.bySession[r.SessionID] = append(b.bySession[r.SessionID], r.SeatID)
}

// reserveTxOptions runs reserves at READ COMMITTED so the lapsed-row
// delete takes no gap locks on the unique key.  Competing holds on a free
// seat then meet at the duplicate key rather than in a deadlock.
var reserveTxOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

func (s *reservationService) ReserveMany(ctx context.Context, in []model.ReservationRequest) ([]model.Reservation, error) {
	if len(in) == 0 {
		return nil, invalid("at least one seat is required")
	}
	reqs := make([]model.ReservationRequest, len(in))
	copy(reqs, in)

	defaultSession := ""
	batches := map[uint64]*showtimeBatch{}
	var order []uint64
	seen := map[[2]uint64]bool{}
	var allSeats []uint64
	for i, r := range reqs {
		if r.SeatID == 0 || r.ShowtimeID == 0 {
			return nil, invalid("request %d: seat_id and showtime_id are required", i)
		}
		key := [2]uint64{r.SeatID, r.ShowtimeID}
		if seen[key] {
			return nil, invalid("seat %d requested twice for showtime %d", r.SeatID, r.ShowtimeID)
		}
		seen[key] = true
		if r.SessionID == "" {
			if defaultSession == "" {
				defaultSession = uuid.NewString()
			}
			r.SessionID = defaultSession
			reqs[i] = r
		}
		b, ok := batches[r.ShowtimeID]
		if !ok {
			b = &showtimeBatch{showtimeID: r.ShowtimeID, bySession: map[string][]uint64{}}
			batches[r.ShowtimeID] = b
			order = append(order, r.ShowtimeID)
		}
		b.add(r)
		allSeats = append(allSeats, r.SeatID)
	}

	// Existence checks run before the transaction; rows in seats and
	// showtimes are immutable for the reservation core.
	showtimes := make(map[uint64]model.Showtime, len(order))
	for _, id := range order {
		st, err := s.showtimes.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("showtime %d: %w", id, err)
		}
		showtimes[id] = st
	}
	seats, err := s.seats.ByIDs(ctx, uniqueIDs(allSeats))
	if err != nil {
		return nil, err
	}
	for _, r := range reqs {
		if seats[r.SeatID].RoomID != showtimes[r.ShowtimeID].RoomID {
			return nil, invalid("seat %d is not in the room of showtime %d", r.SeatID, r.ShowtimeID)
		}
	}

	now := s.now().UTC()
	expires := now.Add(s.ttl)
	created := make([]model.Reservation, 0, len(reqs))
	// at is the pair the transaction was working on, reported when InnoDB
	// aborts it over a lock held by a competing hold.
	var at model.ReservationRequest
	err = withTxOptions(ctx, s.db, reserveTxOptions, func(tx *sql.Tx) error {
		for _, id := range order {
			b := batches[id]
			at = b.requests[0]
			if _, err := s.reservations.DeleteLapsedForSeatsTx(ctx, tx, id, b.seatIDs, now); err != nil {
				return fmt.Errorf("clear lapsed holds: %w", err)
			}
			live, err := s.reservations.LiveForSeatsTx(ctx, tx, id, b.seatIDs, now)
			if err != nil {
				return fmt.Errorf("check availability: %w", err)
			}
			if conflict := firstConflict(live); conflict != nil {
				return conflict
			}
			for _, r := range b.requests {
				at = r
				res := model.Reservation{
					SeatID:     r.SeatID,
					ShowtimeID: r.ShowtimeID,
					UserID:     r.UserID,
					SessionID:  r.SessionID,
					CreatedAt:  now,
					ExpiresAt:  expires,
				}
				if err := s.reservations.CreateTx(ctx, tx, &res); err != nil {
					if errors.Is(err, repository.ErrDuplicateReservation) {
						return &ConflictError{SeatID: r.SeatID, ShowtimeID: r.ShowtimeID}
					}
					return fmt.Errorf("insert reservation: %w", err)
				}
				created = append(created, res)
			}
		}
		return nil
	})
	if err != nil {
		var conflict *ConflictError
		if !errors.As(err, &conflict) && repository.IsLockConflict(err) {
			log.Printf("reservations: lock conflict on seat %d showtime %d: %v", at.SeatID, at.ShowtimeID, err)
			return nil, &ConflictError{SeatID: at.SeatID, ShowtimeID: at.ShowtimeID}
		}
		return nil, err
	}

	for _, id := range order {
		b := batches[id]
		for _, session := range b.sessions {
			broadcastAfterCommit(s.outbox, s.hub, "seats_reserved", id,
				hub.SeatsReserved(id, b.bySession[session], session, now))
		}
	}
	log.Printf("reservations: held %d seat(s) across %d showtime(s) until %s", len(created), len(order), expires.Format(time.RFC3339))
	return created, nil
}

// firstConflict prefers a confirmed row so the caller learns the seat is
// sold rather than merely held.
func firstConflict(live []model.Reservation) *ConflictError {
	var held *ConflictError
	for _, r := range live {
		if r.Status == model.ReservationConfirmed {
			return &ConflictError{SeatID: r.SeatID, ShowtimeID: r.ShowtimeID, Confirmed: true}
		}
		if held == nil {
			held = &ConflictError{SeatID: r.SeatID, ShowtimeID: r.ShowtimeID}
		}
	}
	return held
}

func (s *reservationService) Cancel(ctx context.Context, req CancelRequest) (CancelResult, error) {
	if req.ShowtimeID == 0 || req.SessionID == "" {
		return CancelResult{}, invalid("showtime_id and session_id are required")
	}
	seatIDs := uniqueIDs(req.SeatIDs)
	if len(seatIDs) == 0 {
		return CancelResult{}, invalid("seat_ids is required")
	}

	result := CancelResult{
		Success:        true,
		Message:        NothingToCancel,
		CancelledSeats: []uint64{},
		SeatCodes:      []string{},
		ShowtimeID:     req.ShowtimeID,
		SessionID:      req.SessionID,
	}
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		holds, err := s.reservations.PendingBySessionTx(ctx, tx, req.ShowtimeID, seatIDs, req.SessionID)
		if err != nil {
			return fmt.Errorf("load holds: %w", err)
		}
		if len(holds) == 0 {
			return nil
		}
		ids := make([]uint64, len(holds))
		for i, h := range holds {
			ids[i] = h.ReservationID
			result.CancelledSeats = append(result.CancelledSeats, h.SeatID)
			result.SeatCodes = append(result.SeatCodes, h.SeatCode)
		}
		if _, err := s.reservations.DeletePendingTx(ctx, tx, ids); err != nil {
			return fmt.Errorf("delete holds: %w", err)
		}
		return nil
	})
	if err != nil {
		return CancelResult{}, err
	}
	if len(result.CancelledSeats) == 0 {
		return result, nil
	}

	result.Message = fmt.Sprintf("Cancelled %d reservation(s)", len(result.CancelledSeats))
	broadcastAfterCommit(s.outbox, s.hub, "seat_released", req.ShowtimeID,
		hub.Released(req.ShowtimeID, result.CancelledSeats, hub.ReasonUserCancelled, s.now()))
	return result, nil
}

func (s *reservationService) ListReserved(ctx context.Context, showtimeID uint64) ([]model.Reservation, error) {
	if _, err := s.showtimes.GetByID(ctx, showtimeID); err != nil {
		return nil, err
	}
	return s.reservations.ListByShowtime(ctx, showtimeID, s.now().UTC())
}

// uniqueIDs drops zeros and duplicates, keeping first-seen order.
func uniqueIDs(ids []uint64) []uint64 {
	out := make([]uint64, 0, len(ids))
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
