package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-availability/internal/hub"
	"github.com/iliyamo/cinema-seat-availability/internal/model"
	"github.com/iliyamo/cinema-seat-availability/internal/queue"
	"github.com/iliyamo/cinema-seat-availability/internal/repository"
)

var testNow = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

type mockReservationStore struct {
	ListByShowtimeFn         func(ctx context.Context, showtimeID uint64, now time.Time) ([]model.Reservation, error)
	LiveForSeatsTxFn         func(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64, now time.Time) ([]model.Reservation, error)
	DeleteLapsedForSeatsTxFn func(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64, now time.Time) (int64, error)
	CreateTxFn               func(ctx context.Context, tx *sql.Tx, res *model.Reservation) error
	PendingBySessionTxFn     func(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64, sessionID string) ([]repository.SessionHold, error)
	DeletePendingTxFn        func(ctx context.Context, tx *sql.Tx, ids []uint64) (int64, error)
	LiveBySessionTxFn        func(ctx context.Context, tx *sql.Tx, sessionID string, now time.Time) ([]model.Reservation, error)
	LinkPaymentTxFn          func(ctx context.Context, tx *sql.Tx, ids []uint64, paymentID uint64) error
	PendingByPaymentTxFn     func(ctx context.Context, tx *sql.Tx, paymentID uint64) ([]model.Reservation, error)
	ConfirmTxFn              func(ctx context.Context, tx *sql.Tx, ids []uint64, transactionID uint64) error
}

func (m *mockReservationStore) ListByShowtime(ctx context.Context, showtimeID uint64, now time.Time) ([]model.Reservation, error) {
	return m.ListByShowtimeFn(ctx, showtimeID, now)
}

func (m *mockReservationStore) LiveForSeatsTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64, now time.Time) ([]model.Reservation, error) {
	if m.LiveForSeatsTxFn == nil {
		return nil, nil
	}
	return m.LiveForSeatsTxFn(ctx, tx, showtimeID, seatIDs, now)
}

func (m *mockReservationStore) DeleteLapsedForSeatsTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64, now time.Time) (int64, error) {
	if m.DeleteLapsedForSeatsTxFn == nil {
		return 0, nil
	}
	return m.DeleteLapsedForSeatsTxFn(ctx, tx, showtimeID, seatIDs, now)
}

func (m *mockReservationStore) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	return m.CreateTxFn(ctx, tx, res)
}

func (m *mockReservationStore) PendingBySessionTx(ctx context.Context, tx *sql.Tx, showtimeID uint64, seatIDs []uint64, sessionID string) ([]repository.SessionHold, error) {
	return m.PendingBySessionTxFn(ctx, tx, showtimeID, seatIDs, sessionID)
}

func (m *mockReservationStore) DeletePendingTx(ctx context.Context, tx *sql.Tx, ids []uint64) (int64, error) {
	return m.DeletePendingTxFn(ctx, tx, ids)
}

func (m *mockReservationStore) LiveBySessionTx(ctx context.Context, tx *sql.Tx, sessionID string, now time.Time) ([]model.Reservation, error) {
	return m.LiveBySessionTxFn(ctx, tx, sessionID, now)
}

func (m *mockReservationStore) LinkPaymentTx(ctx context.Context, tx *sql.Tx, ids []uint64, paymentID uint64) error {
	return m.LinkPaymentTxFn(ctx, tx, ids, paymentID)
}

func (m *mockReservationStore) PendingByPaymentTx(ctx context.Context, tx *sql.Tx, paymentID uint64) ([]model.Reservation, error) {
	return m.PendingByPaymentTxFn(ctx, tx, paymentID)
}

func (m *mockReservationStore) ConfirmTx(ctx context.Context, tx *sql.Tx, ids []uint64, transactionID uint64) error {
	return m.ConfirmTxFn(ctx, tx, ids, transactionID)
}

// catalog serves fixed showtimes and seats.
type catalog struct {
	showtimes map[uint64]model.Showtime
	seats     map[uint64]model.Seat
}

func (c catalog) GetByID(_ context.Context, id uint64) (model.Showtime, error) {
	st, ok := c.showtimes[id]
	if !ok {
		return model.Showtime{}, repository.ErrShowtimeNotFound
	}
	return st, nil
}

func (c catalog) GetByIDTx(ctx context.Context, _ *sql.Tx, id uint64) (model.Showtime, error) {
	return c.GetByID(ctx, id)
}

func (c catalog) ByIDs(_ context.Context, ids []uint64) (map[uint64]model.Seat, error) {
	out := make(map[uint64]model.Seat, len(ids))
	for _, id := range ids {
		s, ok := c.seats[id]
		if !ok {
			return nil, repository.ErrSeatNotFound
		}
		out[id] = s
	}
	return out, nil
}

func (c catalog) ByIDsTx(ctx context.Context, _ *sql.Tx, ids []uint64) (map[uint64]model.Seat, error) {
	return c.ByIDs(ctx, ids)
}

// testCatalog has showtime 7 in room 1 and showtime 9 in room 2.  Seats
// 1..5 are in room 1 and seat 20 is in room 2.
func testCatalog() catalog {
	return catalog{
		showtimes: map[uint64]model.Showtime{
			7: {ID: 7, RoomID: 1, BasePrice: 100000, Status: model.ShowtimeActive},
			9: {ID: 9, RoomID: 2, BasePrice: 80000, Status: model.ShowtimeActive},
		},
		seats: map[uint64]model.Seat{
			1:  {ID: 1, RoomID: 1, Code: "A1", Class: model.SeatRegular},
			2:  {ID: 2, RoomID: 1, Code: "A2", Class: model.SeatRegular},
			3:  {ID: 3, RoomID: 1, Code: "A3", Class: model.SeatVIP},
			4:  {ID: 4, RoomID: 1, Code: "A4", Class: model.SeatCouple},
			5:  {ID: 5, RoomID: 1, Code: "A5", Class: model.SeatRegular},
			20: {ID: 20, RoomID: 2, Code: "C1", Class: model.SeatRegular},
		},
	}
}

type broadcast struct {
	ShowtimeID uint64
	Msg        any
}

type recordingHub struct {
	mu   sync.Mutex
	sent []broadcast
}

func (h *recordingHub) Broadcast(showtimeID uint64, msg any, _ ...hub.BroadcastOption) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, broadcast{ShowtimeID: showtimeID, Msg: msg})
	return 1, nil
}

// syncDispatcher runs jobs inline and remembers their kinds.
type syncDispatcher struct {
	kinds []string
	errs  []error
}

func (d *syncDispatcher) Enqueue(kind string, run func(ctx context.Context) error) bool {
	d.kinds = append(d.kinds, kind)
	d.errs = append(d.errs, run(context.Background()))
	return true
}

type mockPublisher struct {
	events []queue.BookingConfirmedEvent
	err    error
}

func (p *mockPublisher) PublishBookingConfirmed(_ context.Context, ev queue.BookingConfirmedEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

type mockPaymentStore struct {
	CreateTxFn       func(ctx context.Context, tx *sql.Tx, p *model.Payment) error
	GetByOrderIDFn   func(ctx context.Context, orderID string) (model.Payment, error)
	GetByOrderIDTxFn func(ctx context.Context, tx *sql.Tx, orderID string) (model.Payment, error)
	RecordResultTxFn func(ctx context.Context, tx *sql.Tx, paymentID uint64, status model.PaymentStatus, transactionNo string, vnp *model.VNPayDetails) error

	FlagErr error
	flagged []string
}

func (m *mockPaymentStore) FlagReconciliation(_ context.Context, paymentID uint64, note string) error {
	m.flagged = append(m.flagged, fmt.Sprintf("%d: %s", paymentID, note))
	return m.FlagErr
}

func (m *mockPaymentStore) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	return m.CreateTxFn(ctx, tx, p)
}

func (m *mockPaymentStore) GetByOrderID(ctx context.Context, orderID string) (model.Payment, error) {
	return m.GetByOrderIDFn(ctx, orderID)
}

func (m *mockPaymentStore) GetByOrderIDTx(ctx context.Context, tx *sql.Tx, orderID string) (model.Payment, error) {
	return m.GetByOrderIDTxFn(ctx, tx, orderID)
}

func (m *mockPaymentStore) RecordResultTx(ctx context.Context, tx *sql.Tx, paymentID uint64, status model.PaymentStatus, transactionNo string, vnp *model.VNPayDetails) error {
	return m.RecordResultTxFn(ctx, tx, paymentID, status, transactionNo, vnp)
}

type mockTransactionStore struct {
	created []model.Transaction
	updates []model.TransactionStatus
	current model.Transaction
}

func (m *mockTransactionStore) CreateTx(_ context.Context, _ *sql.Tx, t *model.Transaction) error {
	t.ID = 300
	m.created = append(m.created, *t)
	return nil
}

func (m *mockTransactionStore) ByPaymentIDTx(_ context.Context, _ *sql.Tx, paymentID uint64) (model.Transaction, error) {
	if m.current.PaymentID != paymentID {
		return model.Transaction{}, repository.ErrTransactionNotFound
	}
	return m.current, nil
}

func (m *mockTransactionStore) UpdateStatusTx(_ context.Context, _ *sql.Tx, _ uint64, status model.TransactionStatus, _ string) error {
	m.updates = append(m.updates, status)
	return nil
}

type mockTicketStore struct {
	CreateBatchTxFn func(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error
	issued          []model.Ticket
}

func (m *mockTicketStore) CreateBatchTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error {
	if m.CreateBatchTxFn != nil {
		if err := m.CreateBatchTxFn(ctx, tx, tickets); err != nil {
			return err
		}
	}
	m.issued = append(m.issued, tickets...)
	return nil
}
