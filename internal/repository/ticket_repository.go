package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/cinema-seat-availability/internal/model"
)

// TicketRepo writes issued tickets.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo constructs a TicketRepo.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// CreateBatchTx inserts all tickets of one booking in a single statement.
// Passing an empty slice has no effect.
func (r *TicketRepo) CreateBatchTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	query := `INSERT INTO tickets (user_id, showtime_id, seat_id, price, status, transaction_id, booking_code) VALUES `
	args := make([]any, 0, len(tickets)*7)
	for i, t := range tickets {
		if i > 0 {
			query += ", "
		}
		query += "(?, ?, ?, ?, ?, ?, ?)"
		args = append(args, nullableUint64(t.UserID), t.ShowtimeID, t.SeatID, t.Price, t.Status, t.TransactionID, t.BookingCode)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	if err != nil && isDuplicateKey(err) {
		return ErrDuplicateReservation
	}
	return err
}
