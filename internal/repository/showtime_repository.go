package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/cinema-seat-availability/internal/model"
)

// ShowtimeRepo reads scheduled screenings.
type ShowtimeRepo struct {
	db *sql.DB
}

// NewShowtimeRepo constructs a ShowtimeRepo.
func NewShowtimeRepo(db *sql.DB) *ShowtimeRepo { return &ShowtimeRepo{db: db} }

// GetByID fetches a showtime or returns ErrShowtimeNotFound.
func (r *ShowtimeRepo) GetByID(ctx context.Context, id uint64) (model.Showtime, error) {
	return showtimeByID(ctx, r.db, id)
}

// GetByIDTx is GetByID inside the caller's transaction.
func (r *ShowtimeRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Showtime, error) {
	return showtimeByID(ctx, tx, id)
}

func showtimeByID(ctx context.Context, q queryer, id uint64) (model.Showtime, error) {
	const sel = `SELECT showtime_id, movie_id, room_id, show_datetime, ticket_price, status
                 FROM showtimes WHERE showtime_id = ?`
	var (
		st     model.Showtime
		status string
	)
	err := q.QueryRowContext(ctx, sel, id).Scan(&st.ID, &st.MovieID, &st.RoomID, &st.StartTime, &st.BasePrice, &status)
	if err == sql.ErrNoRows {
		return model.Showtime{}, ErrShowtimeNotFound
	}
	if err != nil {
		return model.Showtime{}, err
	}
	st.Status = model.ShowtimeStatus(status)
	return st, nil
}
