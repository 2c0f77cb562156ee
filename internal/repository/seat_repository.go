package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/cinema-seat-availability/internal/model"
)

// SeatRepo reads the seats table.  Seats are immutable from the point of
// view of the reservation core so the repository is read-only.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

// ByIDs loads the given seats keyed by id.  Every id must exist; a missing
// one yields ErrSeatNotFound naming the first absent seat.
func (r *SeatRepo) ByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Seat, error) {
	return seatsByIDs(ctx, r.db, ids)
}

// ByIDsTx is ByIDs inside the caller's transaction.
func (r *SeatRepo) ByIDsTx(ctx context.Context, tx *sql.Tx, ids []uint64) (map[uint64]model.Seat, error) {
	return seatsByIDs(ctx, tx, ids)
}

func seatsByIDs(ctx context.Context, q queryer, ids []uint64) (map[uint64]model.Seat, error) {
	out := make(map[uint64]model.Seat, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx,
		`SELECT seat_id, room_id, seat_code, seat_type FROM seats WHERE seat_id IN (`+placeholders(len(ids))+`)`,
		uint64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			s     model.Seat
			class string
		)
		if err := rows.Scan(&s.ID, &s.RoomID, &s.Code, &class); err != nil {
			return nil, err
		}
		s.Class = model.SeatClass(class)
		out[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("seat %d: %w", id, ErrSeatNotFound)
		}
	}
	return out, nil
}
