package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-availability/internal/model"
	"github.com/iliyamo/cinema-seat-availability/internal/repository"
	"github.com/iliyamo/cinema-seat-availability/internal/service"
)

func TestCreatePayment_Handler_Success(t *testing.T) {
	svc := &mockPaymentService{
		createFn: func(_ context.Context, req service.CreatePaymentRequest) (model.Payment, error) {
			assert.Equal(t, "sess-a", req.SessionID)
			assert.Equal(t, model.MethodVNPay, req.Method)
			assert.Equal(t, "203.0.113.9", req.ClientIP)
			return model.Payment{OrderID: "order-1", Amount: 250000, Method: req.Method, Status: model.PaymentPending}, nil
		},
	}
	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/payments", `{"session_id":"sess-a","payment_method":"VNPAY"}`)
	req.Header.Set(echo.HeaderXRealIP, "203.0.113.9")
	c := e.NewContext(req, rec)

	require.NoError(t, NewPaymentHandler(svc).Create(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"order_id":"order-1","amount":250000,"payment_method":"VNPAY","payment_status":"PENDING"}`, rec.Body.String())
}

func TestCreatePayment_Handler_NoHolds(t *testing.T) {
	svc := &mockPaymentService{
		createFn: func(context.Context, service.CreatePaymentRequest) (model.Payment, error) {
			return model.Payment{}, service.ErrNoPendingHolds
		},
	}
	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/payments", `{"session_id":"x","payment_method":"CASH"}`)
	c := e.NewContext(req, rec)
	require.NoError(t, NewPaymentHandler(svc).Create(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfirmPayment_Handler_Success(t *testing.T) {
	svc := &mockPaymentService{
		processFn: func(_ context.Context, res model.PaymentResult) (service.ConfirmationResult, error) {
			assert.Equal(t, "order-1", res.OrderID)
			assert.True(t, res.Success)
			return service.ConfirmationResult{OrderID: res.OrderID, PaymentStatus: model.PaymentSuccess, BookingCode: "BK20250301AAAAAA", TotalAmount: 100000}, nil
		},
	}
	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/payments/confirm", `{"order_id":"order-1","success":true,"transaction_no":"T1"}`)
	c := e.NewContext(req, rec)

	require.NoError(t, NewPaymentHandler(svc).Confirm(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"booking_code":"BK20250301AAAAAA"`)
}

func TestConfirmPayment_Handler_HoldsExpired(t *testing.T) {
	svc := &mockPaymentService{
		processFn: func(_ context.Context, res model.PaymentResult) (service.ConfirmationResult, error) {
			return service.ConfirmationResult{OrderID: res.OrderID, FailedSeats: []uint64{3, 4}}, service.ErrHoldExpired
		},
	}
	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/payments/confirm", `{"order_id":"order-1","success":true}`)
	c := e.NewContext(req, rec)

	require.NoError(t, NewPaymentHandler(svc).Confirm(c))
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.JSONEq(t, `{"error":"reservation hold expired","order_id":"order-1","failed_seats":[3,4]}`, rec.Body.String())
}

func TestVNPayReturn_Handler_ReadsQuery(t *testing.T) {
	svc := &mockPaymentService{
		processFn: func(_ context.Context, res model.PaymentResult) (service.ConfirmationResult, error) {
			assert.Equal(t, "order-9", res.OrderID)
			assert.False(t, res.Success)
			require.NotNil(t, res.VNPay)
			assert.Equal(t, "NCB", res.VNPay.BankCode)
			assert.Equal(t, "24", res.VNPay.ResponseCode)
			return service.ConfirmationResult{OrderID: res.OrderID, PaymentStatus: model.PaymentFailed}, nil
		},
	}
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/payments/vnpay/return?vnp_TxnRef=order-9&vnp_ResponseCode=24&vnp_BankCode=NCB", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, NewPaymentHandler(svc).VNPayReturn(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"payment_status":"FAILED"`)
}

func TestVNPayIPN_Handler_ResponseCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"confirmed", nil, `{"RspCode":"00","Message":"Confirm Success"}`},
		{"repeat delivery", service.ErrPaymentProcessed, `{"RspCode":"00","Message":"Confirm Success"}`},
		{"unknown order", repository.ErrPaymentNotFound, `{"RspCode":"01","Message":"Order not found"}`},
		{"failure", errors.New("db down"), `{"RspCode":"99","Message":"Unknown error"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockPaymentService{
				processFn: func(_ context.Context, res model.PaymentResult) (service.ConfirmationResult, error) {
					assert.True(t, res.Success)
					return service.ConfirmationResult{}, tc.err
				},
			}
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/payments/vnpay/ipn?vnp_TxnRef=order-1&vnp_ResponseCode=00&vnp_TransactionNo=99", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			require.NoError(t, NewPaymentHandler(svc).VNPayIPN(c))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, tc.want, rec.Body.String())
		})
	}
}

func TestPaymentStatus_Handler(t *testing.T) {
	created := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	svc := &mockPaymentService{
		getFn: func(_ context.Context, orderID string) (model.Payment, error) {
			if orderID != "order-1" {
				return model.Payment{}, repository.ErrPaymentNotFound
			}
			return model.Payment{OrderID: orderID, Amount: 5, Method: model.MethodCash, Status: model.PaymentSuccess, CreatedAt: created}, nil
		},
	}
	h := NewPaymentHandler(svc)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("order_id")
	c.SetParamValues("order-1")
	require.NoError(t, h.Status(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"order_id":"order-1","amount":5,"payment_method":"CASH","payment_status":"SUCCESS","transaction_id":"","created_at":"2025-03-01T18:00:00Z"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("order_id")
	c.SetParamValues("missing")
	require.NoError(t, h.Status(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
