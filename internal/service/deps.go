package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-seat-availability/internal/hub"
	"github.com/iliyamo/cinema-seat-availability/internal/model"
	"github.com/iliyamo/cinema-seat-availability/internal/queue"
	"github.com/iliyamo/cinema-seat-availability/internal/repository"
)

// TxBeginner opens transactions.  *sql.DB satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// ReservationStore is the persistence surface of seat_reservations.
type ReservationStore interface {
	ListByShowtime(ctx context.Context, showtimeID uint64, now time.Time) ([]model.Reservation, error)
	LiveForSeatsTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64, now time.Time) ([]model.Reservation, error)
	DeleteLapsedForSeatsTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64, now time.Time) (int64, error)
	CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error
	PendingBySessionTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64, sessionID string) ([]repository.SessionHold, error)
	DeletePendingTx(ctx context.Context, tx *sql.Tx, ids []uint64) (int64, error)
	LiveBySessionTx(ctx context.Context, tx *sql.Tx, sessionID string, now time.Time) ([]model.Reservation, error)
	LinkPaymentTx(ctx context.Context, tx *sql.Tx, ids []uint64, paymentID uint64) error
	PendingByPaymentTx(ctx context.Context, tx *sql.Tx, paymentID uint64) ([]model.Reservation, error)
	ConfirmTx(ctx context.Context, tx *sql.Tx, ids []uint64, transactionID uint64) error
}

// ShowtimeStore reads showtimes.
type ShowtimeStore interface {
	GetByID(ctx context.Context, id uint64) (model.Showtime, error)
	GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Showtime, error)
}

// SeatStore reads seats.
type SeatStore interface {
	ByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Seat, error)
	ByIDsTx(ctx context.Context, tx *sql.Tx, ids []uint64) (map[uint64]model.Seat, error)
}

// PaymentStore persists payments.
type PaymentStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error
	GetByOrderID(ctx context.Context, orderID string) (model.Payment, error)
	GetByOrderIDTx(ctx context.Context, tx *sql.Tx, orderID string) (model.Payment, error)
	RecordResultTx(ctx context.Context, tx *sql.Tx, paymentID uint64, status model.PaymentStatus, transactionNo string, vnp *model.VNPayDetails) error
	FlagReconciliation(ctx context.Context, paymentID uint64, note string) error
}

// TransactionStore persists the accounting record of a payment.
type TransactionStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, t *model.Transaction) error
	ByPaymentIDTx(ctx context.Context, tx *sql.Tx, paymentID uint64) (model.Transaction, error)
	UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.TransactionStatus, refCode string) error
}

// TicketStore persists issued tickets.
type TicketStore interface {
	CreateBatchTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error
}

// Broadcaster fans a message out to a showtime's viewers.  *hub.Hub
// satisfies it.
type Broadcaster interface {
	Broadcast(showtimeID uint64, msg any, opts ...hub.BroadcastOption) (int, error)
}

// Dispatcher runs work after a commit.  *outbox.Dispatcher satisfies it.
type Dispatcher interface {
	Enqueue(kind string, run func(ctx context.Context) error) bool
}

// BookingPublisher announces confirmed bookings.  *queue.Publisher
// satisfies it.
type BookingPublisher interface {
	PublishBookingConfirmed(ctx context.Context, event queue.BookingConfirmedEvent) error
}

// withTx runs fn inside a transaction and commits when fn succeeds.
func withTx(ctx context.Context, db TxBeginner, fn func(tx *sql.Tx) error) error {
	return withTxOptions(ctx, db, nil, fn)
}

// withTxOptions is withTx with explicit transaction options.
func withTxOptions(ctx context.Context, db TxBeginner, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// broadcastAfterCommit hands a hub message to the post-commit dispatcher.
func broadcastAfterCommit(d Dispatcher, b Broadcaster, kind string, showtimeID uint64, msg any) {
	d.Enqueue(kind, func(context.Context) error {
		_, err := b.Broadcast(showtimeID, msg)
		return err
	})
}
