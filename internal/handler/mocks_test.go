package handler

import (
	"context"

	"github.com/iliyamo/cinema-seat-availability/internal/model"
	"github.com/iliyamo/cinema-seat-availability/internal/service"
)

// --- Mock ReservationService ---

type mockReservationService struct {
	reserveFn     func(ctx context.Context, req model.ReservationRequest) (model.Reservation, error)
	reserveManyFn func(ctx context.Context, reqs []model.ReservationRequest) ([]model.Reservation, error)
	cancelFn      func(ctx context.Context, req service.CancelRequest) (service.CancelResult, error)
	listFn        func(ctx context.Context, showtimeID uint64) ([]model.Reservation, error)
	showtimeFn    func(ctx context.Context, showtimeID uint64) (model.Showtime, error)
}

func (m *mockReservationService) Reserve(ctx context.Context, req model.ReservationRequest) (model.Reservation, error) {
	return m.reserveFn(ctx, req)
}
func (m *mockReservationService) ReserveMany(ctx context.Context, reqs []model.ReservationRequest) ([]model.Reservation, error) {
	return m.reserveManyFn(ctx, reqs)
}
func (m *mockReservationService) Cancel(ctx context.Context, req service.CancelRequest) (service.CancelResult, error) {
	return m.cancelFn(ctx, req)
}
func (m *mockReservationService) ListReserved(ctx context.Context, showtimeID uint64) ([]model.Reservation, error) {
	return m.listFn(ctx, showtimeID)
}
func (m *mockReservationService) Showtime(ctx context.Context, showtimeID uint64) (model.Showtime, error) {
	return m.showtimeFn(ctx, showtimeID)
}

// --- Mock PaymentService ---

type mockPaymentService struct {
	createFn  func(ctx context.Context, req service.CreatePaymentRequest) (model.Payment, error)
	processFn func(ctx context.Context, res model.PaymentResult) (service.ConfirmationResult, error)
	getFn     func(ctx context.Context, orderID string) (model.Payment, error)
}

func (m *mockPaymentService) CreatePayment(ctx context.Context, req service.CreatePaymentRequest) (model.Payment, error) {
	return m.createFn(ctx, req)
}
func (m *mockPaymentService) ProcessResult(ctx context.Context, res model.PaymentResult) (service.ConfirmationResult, error) {
	return m.processFn(ctx, res)
}
func (m *mockPaymentService) GetPayment(ctx context.Context, orderID string) (model.Payment, error) {
	return m.getFn(ctx, orderID)
}
