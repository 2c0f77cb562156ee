package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/cinema-seat-availability/internal/hub"
	"github.com/iliyamo/cinema-seat-availability/internal/model"
	"github.com/iliyamo/cinema-seat-availability/internal/queue"
)

// PaymentService links holds to payments and turns paid holds into
// tickets.
type PaymentService interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (model.Payment, error)
	ProcessResult(ctx context.Context, res model.PaymentResult) (ConfirmationResult, error)
	GetPayment(ctx context.Context, orderID string) (model.Payment, error)
}

// CreatePaymentRequest opens a payment over a session's live holds.
type CreatePaymentRequest struct {
	SessionID string              `json:"session_id"`
	Method    model.PaymentMethod `json:"payment_method"`
	OrderDesc string              `json:"order_desc"`
	UserID    *uint64             `json:"user_id,omitempty"`
	ClientIP  string              `json:"-"`
}

// ConfirmationResult is what a payment result produced.
type ConfirmationResult struct {
	OrderID       string              `json:"order_id"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	BookingCode   string              `json:"booking_code,omitempty"`
	Tickets       []model.Ticket      `json:"tickets,omitempty"`
	FailedSeats   []uint64            `json:"failed_seats,omitempty"`
	TotalAmount   int64               `json:"total_amount"`
}

// PaymentDeps wires a PaymentService.  Broadcasts should be a single
// worker dispatcher so viewers see changes in commit order.
type PaymentDeps struct {
	DB            TxBeginner
	Reservations  ReservationStore
	Showtimes     ShowtimeStore
	Seats         SeatStore
	Payments      PaymentStore
	Transactions  TransactionStore
	Tickets       TicketStore
	Hub           Broadcaster
	Broadcasts    Dispatcher
	Notifications Dispatcher
	Publisher     BookingPublisher
	Now           func() time.Time
	BookingCode   func(time.Time) string
}

type paymentService struct {
	PaymentDeps
}

// NewPaymentService builds the payment confirmation flow.
func NewPaymentService(d PaymentDeps) PaymentService {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.BookingCode == nil {
		d.BookingCode = NewBookingCode
	}
	return &paymentService{PaymentDeps: d}
}

func (s *paymentService) GetPayment(ctx context.Context, orderID string) (model.Payment, error) {
	if strings.TrimSpace(orderID) == "" {
		return model.Payment{}, invalid("order_id is required")
	}
	return s.Payments.GetByOrderID(ctx, orderID)
}

// pricedSeats resolves the price of each reservation from its seat class
// and showtime base price.
func (s *paymentService) pricedSeats(ctx context.Context, tx *sql.Tx, rows []model.Reservation) (map[uint64]model.Seat, []int64, error) {
	ids := make([]uint64, len(rows))
	for i, r := range rows {
		ids[i] = r.SeatID
	}
	seats, err := s.Seats.ByIDsTx(ctx, tx, uniqueIDs(ids))
	if err != nil {
		return nil, nil, err
	}
	showtimes := map[uint64]model.Showtime{}
	prices := make([]int64, len(rows))
	for i, r := range rows {
		st, ok := showtimes[r.ShowtimeID]
		if !ok {
			st, err = s.Showtimes.GetByIDTx(ctx, tx, r.ShowtimeID)
			if err != nil {
				return nil, nil, err
			}
			showtimes[r.ShowtimeID] = st
		}
		prices[i] = st.SeatPrice(seats[r.SeatID].Class)
	}
	return seats, prices, nil
}

func (s *paymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest) (model.Payment, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return model.Payment{}, invalid("session_id is required")
	}
	if !req.Method.Valid() {
		return model.Payment{}, invalid("unsupported payment_method %q", req.Method)
	}

	now := s.Now().UTC()
	var p model.Payment
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		holds, err := s.Reservations.LiveBySessionTx(ctx, tx, req.SessionID, now)
		if err != nil {
			return fmt.Errorf("load holds: %w", err)
		}
		if len(holds) == 0 {
			return ErrNoPendingHolds
		}
		_, prices, err := s.pricedSeats(ctx, tx, holds)
		if err != nil {
			return fmt.Errorf("price seats: %w", err)
		}
		var amount int64
		ids := make([]uint64, len(holds))
		for i, h := range holds {
			amount += prices[i]
			ids[i] = h.ID
		}

		desc := req.OrderDesc
		if desc == "" {
			desc = fmt.Sprintf("Payment for %d seat(s)", len(holds))
		}
		p = model.Payment{
			OrderID:   uuid.NewString(),
			UserID:    req.UserID,
			Amount:    amount,
			Method:    req.Method,
			Status:    model.PaymentPending,
			OrderDesc: desc,
			ClientIP:  req.ClientIP,
			CreatedAt: now,
		}
		if p.Method == model.MethodVNPay {
			p.VNPay = &model.VNPayDetails{TxnRef: p.OrderID}
		}
		if err := s.Payments.CreateTx(ctx, tx, &p); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		if err := s.Reservations.LinkPaymentTx(ctx, tx, ids, p.ID); err != nil {
			return fmt.Errorf("link holds: %w", err)
		}
		t := model.Transaction{
			UserID:        req.UserID,
			PaymentID:     p.ID,
			TotalAmount:   amount,
			PaymentMethod: req.Method,
			Status:        model.TransactionPending,
			CreatedAt:     now,
		}
		if err := s.Transactions.CreateTx(ctx, tx, &t); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Payment{}, err
	}
	log.Printf("payments: order %s opened for %d via %s", p.OrderID, p.Amount, p.Method)
	return p, nil
}

func (s *paymentService) ProcessResult(ctx context.Context, res model.PaymentResult) (ConfirmationResult, error) {
	if strings.TrimSpace(res.OrderID) == "" {
		return ConfirmationResult{}, invalid("order_id is required")
	}

	status := model.PaymentFailed
	if res.Success {
		status = model.PaymentSuccess
	}
	var p model.Payment
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		p, err = s.Payments.GetByOrderIDTx(ctx, tx, res.OrderID)
		if err != nil {
			return err
		}
		if p.Status != model.PaymentPending {
			return ErrPaymentProcessed
		}
		if err := s.Payments.RecordResultTx(ctx, tx, p.ID, status, res.TransactionNo, res.VNPay); err != nil {
			return fmt.Errorf("record payment result: %w", err)
		}
		if res.Success {
			return nil
		}
		t, err := s.Transactions.ByPaymentIDTx(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		return s.Transactions.UpdateStatusTx(ctx, tx, t.ID, model.TransactionFailed, res.TransactionNo)
	})
	if err != nil {
		return ConfirmationResult{}, err
	}

	out := ConfirmationResult{OrderID: p.OrderID, PaymentStatus: status}
	if !res.Success {
		// Holds stay pending and lapse through the sweeper.
		log.Printf("payments: order %s declined", p.OrderID)
		return out, nil
	}
	return s.confirm(ctx, p, res, out)
}

// confirm turns every still-valid hold of a paid order into a ticket in
// one transaction.  Lapsed holds are reported in FailedSeats.
func (s *paymentService) confirm(ctx context.Context, p model.Payment, res model.PaymentResult, out ConfirmationResult) (ConfirmationResult, error) {
	now := s.Now().UTC()
	var event queue.BookingConfirmedEvent
	byShowtime := map[uint64][]uint64{}
	var order []uint64
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		rows, err := s.Reservations.PendingByPaymentTx(ctx, tx, p.ID)
		if err != nil {
			return fmt.Errorf("load holds: %w", err)
		}
		var valid []model.Reservation
		for _, r := range rows {
			if r.Live(now) {
				valid = append(valid, r)
			} else {
				out.FailedSeats = append(out.FailedSeats, r.SeatID)
			}
		}
		if len(valid) == 0 {
			return ErrHoldExpired
		}

		seats, prices, err := s.pricedSeats(ctx, tx, valid)
		if err != nil {
			return fmt.Errorf("price seats: %w", err)
		}
		t, err := s.Transactions.ByPaymentIDTx(ctx, tx, p.ID)
		if err != nil {
			return err
		}

		code := s.BookingCode(now)
		tickets := make([]model.Ticket, len(valid))
		ids := make([]uint64, len(valid))
		booked := make([]queue.BookedSeat, len(valid))
		var total int64
		for i, r := range valid {
			tickets[i] = model.Ticket{
				UserID:        p.UserID,
				ShowtimeID:    r.ShowtimeID,
				SeatID:        r.SeatID,
				Price:         prices[i],
				Status:        "active",
				TransactionID: t.ID,
				BookingCode:   code,
				CreatedAt:     now,
			}
			ids[i] = r.ID
			booked[i] = queue.BookedSeat{
				ShowtimeID: r.ShowtimeID,
				SeatID:     r.SeatID,
				SeatCode:   seats[r.SeatID].Code,
				Price:      prices[i],
			}
			total += prices[i]
			if _, ok := byShowtime[r.ShowtimeID]; !ok {
				order = append(order, r.ShowtimeID)
			}
			byShowtime[r.ShowtimeID] = append(byShowtime[r.ShowtimeID], r.SeatID)
		}

		if err := s.Tickets.CreateBatchTx(ctx, tx, tickets); err != nil {
			return fmt.Errorf("issue tickets: %w", err)
		}
		if err := s.Reservations.ConfirmTx(ctx, tx, ids, t.ID); err != nil {
			return fmt.Errorf("confirm holds: %w", err)
		}
		if err := s.Transactions.UpdateStatusTx(ctx, tx, t.ID, model.TransactionSuccess, res.TransactionNo); err != nil {
			return fmt.Errorf("settle transaction: %w", err)
		}

		out.BookingCode = code
		out.Tickets = tickets
		out.TotalAmount = total
		event = queue.BookingConfirmedEvent{
			BookingCode:   code,
			OrderID:       p.OrderID,
			PaymentID:     p.ID,
			TransactionID: t.ID,
			UserID:        p.UserID,
			Seats:         booked,
			FailedSeatIDs: out.FailedSeats,
			TotalAmount:   total,
			ConfirmedAt:   now.Format(time.RFC3339),
		}
		return nil
	})
	if errors.Is(err, ErrHoldExpired) {
		log.Printf("payments: order %s paid but every hold lapsed (seats %v), needs refund", p.OrderID, out.FailedSeats)
		s.flagReconciliation(ctx, p, fmt.Sprintf("refund: every hold lapsed (seats %v)", out.FailedSeats))
		return out, err
	}
	if err != nil {
		log.Printf("payments: order %s paid but confirmation rolled back: %v", p.OrderID, err)
		s.flagReconciliation(ctx, p, "confirmation rolled back: "+err.Error())
		return out, fmt.Errorf("%w: order %s: %v", ErrConfirmationFailed, p.OrderID, err)
	}

	if s.Publisher != nil {
		s.Notifications.Enqueue("booking_confirmed", func(ctx context.Context) error {
			return s.Publisher.PublishBookingConfirmed(ctx, event)
		})
	}
	for _, id := range order {
		broadcastAfterCommit(s.Broadcasts, s.Hub, "seats_confirmed", id, hub.SeatsConfirmed(id, byShowtime[id], now))
	}
	log.Printf("payments: order %s confirmed as %s with %d ticket(s)", p.OrderID, out.BookingCode, len(out.Tickets))
	return out, nil
}

// flagReconciliation persists the needs-reconciliation mark on a paid
// order.  A later result for the same order is answered as already
// processed, so this mark is what operators alert on.
func (s *paymentService) flagReconciliation(ctx context.Context, p model.Payment, note string) {
	if err := s.Payments.FlagReconciliation(context.WithoutCancel(ctx), p.ID, note); err != nil {
		log.Printf("payments: order %s could not be flagged for reconciliation: %v", p.OrderID, err)
	}
}
