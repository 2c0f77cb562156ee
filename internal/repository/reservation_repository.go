package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-seat-availability/internal/model"
)

// ReservationRepo owns the seat_reservations table.  Every row is a hold
// on one (seat, showtime) pair and the table's unique key guarantees that
// at most one such row exists per pair.  All timestamps are UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `reservation_id, seat_id, showtime_id, user_id, session_id, status,
       created_at, expires_at, transaction_id, payment_id`

func scanReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	out := []model.Reservation{}
	for rows.Next() {
		var (
			res                     model.Reservation
			userID, txID, paymentID sql.NullInt64
			status                  string
		)
		if err := rows.Scan(&res.ID, &res.SeatID, &res.ShowtimeID, &userID, &res.SessionID, &status,
			&res.CreatedAt, &res.ExpiresAt, &txID, &paymentID); err != nil {
			return nil, err
		}
		res.Status = model.ReservationStatus(status)
		res.UserID = uint64Ptr(userID)
		res.TransactionID = uint64Ptr(txID)
		res.PaymentID = uint64Ptr(paymentID)
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByShowtime returns every reservation that currently blocks a seat of
// the showtime: confirmed rows and pending rows whose hold has not lapsed.
// Lapsed rows that the sweeper has not reached yet are left out.
func (r *ReservationRepo) ListByShowtime(ctx context.Context, showtimeID uint64, now time.Time) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + `
          FROM seat_reservations
          WHERE showtime_id = ? AND (status = 'confirmed' OR (status = 'pending' AND expires_at > ?))
          ORDER BY seat_id`
	rows, err := r.db.QueryContext(ctx, q, showtimeID, now.UTC())
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

// LiveForSeatsTx returns the rows that block any of the given seats for a
// showtime at now.  It is the fast-path conflict check run before insert;
// the unique key remains the source of truth.
func (r *ReservationRepo) LiveForSeatsTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64, now time.Time) ([]model.Reservation, error) {
	if len(seatIDs) == 0 {
		return []model.Reservation{}, nil
	}
	q := `SELECT ` + reservationColumns + `
          FROM seat_reservations
          WHERE showtime_id = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `)
            AND (status = 'confirmed' OR (status = 'pending' AND expires_at > ?))`
	args := append([]any{showtimeID}, uint64Args(seatIDs)...)
	args = append(args, now.UTC())
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, translateLock(err)
	}
	return scanReservations(rows)
}

// DeleteLapsedForSeatsTx removes pending rows on the given seats whose hold
// expired at or before now, so a fresh hold can take the unique slot.
func (r *ReservationRepo) DeleteLapsedForSeatsTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64, now time.Time) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	q := `DELETE FROM seat_reservations
          WHERE showtime_id = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `)
            AND status = 'pending' AND expires_at <= ?`
	args := append([]any{showtimeID}, uint64Args(seatIDs)...)
	args = append(args, now.UTC())
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, translateLock(err)
	}
	return res.RowsAffected()
}

// CreateTx inserts a pending reservation and fills in its generated ID.
// A collision on the (seat_id, showtime_id) key is reported as
// ErrDuplicateReservation and a deadlock as ErrLockConflict.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO seat_reservations (seat_id, showtime_id, user_id, session_id, status, created_at, expires_at)
               VALUES (?, ?, ?, ?, 'pending', ?, ?)`
	result, err := tx.ExecContext(ctx, q, res.SeatID, res.ShowtimeID, nullableUint64(res.UserID), res.SessionID,
		res.CreatedAt.UTC(), res.ExpiresAt.UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("seat %d showtime %d: %w", res.SeatID, res.ShowtimeID, ErrDuplicateReservation)
		}
		return translateLock(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	res.Status = model.ReservationPending
	return nil
}

// SessionHold is a pending row selected for cancellation together with
// the seat's display code.
type SessionHold struct {
	ReservationID uint64
	SeatID        uint64
	SeatCode      string
}

// PendingBySessionTx locks the pending rows owned by sessionID on the given
// seats of a showtime.  Rows of other sessions and confirmed rows are never
// returned.
func (r *ReservationRepo) PendingBySessionTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64, sessionID string) ([]SessionHold, error) {
	if len(seatIDs) == 0 {
		return []SessionHold{}, nil
	}
	q := `SELECT r.reservation_id, r.seat_id, s.seat_code
          FROM seat_reservations r
          JOIN seats s ON s.seat_id = r.seat_id
          WHERE r.showtime_id = ? AND r.session_id = ? AND r.status = 'pending'
            AND r.seat_id IN (` + placeholders(len(seatIDs)) + `)
          ORDER BY r.seat_id
          FOR UPDATE`
	args := append([]any{showtimeID, sessionID}, uint64Args(seatIDs)...)
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []SessionHold{}
	for rows.Next() {
		var h SessionHold
		if err := rows.Scan(&h.ReservationID, &h.SeatID, &h.SeatCode); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ExpiredHold identifies a lapsed pending row picked up by a sweep.
type ExpiredHold struct {
	ReservationID uint64
	SeatID        uint64
	ShowtimeID    uint64
}

// ExpiredBatchTx locks up to limit pending rows whose expires_at is before
// now, oldest first.
func (r *ReservationRepo) ExpiredBatchTx(ctx context.Context, tx *sql.Tx, now time.Time, limit int) ([]ExpiredHold, error) {
	const q = `SELECT reservation_id, seat_id, showtime_id
               FROM seat_reservations
               WHERE status = 'pending' AND expires_at < ?
               ORDER BY expires_at
               LIMIT ?
               FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ExpiredHold{}
	for rows.Next() {
		var h ExpiredHold
		if err := rows.Scan(&h.ReservationID, &h.SeatID, &h.ShowtimeID); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeletePendingTx deletes the given pending rows by id.  Confirmed rows
// are never deleted even if their id is passed.
func (r *ReservationRepo) DeletePendingTx(ctx context.Context, tx *sql.Tx, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := `DELETE FROM seat_reservations WHERE status = 'pending' AND reservation_id IN (` + placeholders(len(ids)) + `)`
	res, err := tx.ExecContext(ctx, q, uint64Args(ids)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LiveBySessionTx locks the session's pending rows that have not lapsed.
// Payment creation uses it to decide what the payment covers.
func (r *ReservationRepo) LiveBySessionTx(ctx context.Context, tx *sql.Tx, sessionID string, now time.Time) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + `
          FROM seat_reservations
          WHERE session_id = ? AND status = 'pending' AND expires_at > ?
          ORDER BY reservation_id
          FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, sessionID, now.UTC())
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

// LinkPaymentTx attaches the rows to a payment.
func (r *ReservationRepo) LinkPaymentTx(ctx context.Context, tx *sql.Tx, ids []uint64, paymentID uint64) error {
	if len(ids) == 0 {
		return nil
	}
	q := `UPDATE seat_reservations SET payment_id = ?
          WHERE status = 'pending' AND reservation_id IN (` + placeholders(len(ids)) + `)`
	args := append([]any{paymentID}, uint64Args(ids)...)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	return expectAffected(res, len(ids))
}

// PendingByPaymentTx locks every pending row linked to the payment,
// including lapsed ones, so the caller can tell expired seats apart.
func (r *ReservationRepo) PendingByPaymentTx(ctx context.Context, tx *sql.Tx, paymentID uint64) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + `
          FROM seat_reservations
          WHERE payment_id = ? AND status = 'pending'
          ORDER BY reservation_id
          FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, paymentID)
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

// ConfirmTx flips pending rows to confirmed and links them to the paying
// transaction.  If any row is no longer pending the whole update is
// reported as ErrStaleReservation so the caller rolls back.
func (r *ReservationRepo) ConfirmTx(ctx context.Context, tx *sql.Tx, ids []uint64, transactionID uint64) error {
	if len(ids) == 0 {
		return nil
	}
	q := `UPDATE seat_reservations SET status = 'confirmed', transaction_id = ?
          WHERE status = 'pending' AND reservation_id IN (` + placeholders(len(ids)) + `)`
	args := append([]any{transactionID}, uint64Args(ids)...)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	return expectAffected(res, len(ids))
}

func expectAffected(res sql.Result, want int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != int64(want) {
		return fmt.Errorf("affected %d of %d rows: %w", n, want, ErrStaleReservation)
	}
	return nil
}
