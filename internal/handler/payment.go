package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-availability/internal/model"
	"github.com/iliyamo/cinema-seat-availability/internal/repository"
	"github.com/iliyamo/cinema-seat-availability/internal/service"
)

// PaymentHandler opens payments and takes in results from the payment
// collaborator.
type PaymentHandler struct {
	Payments service.PaymentService
}

// NewPaymentHandler panics on a nil service.
func NewPaymentHandler(svc service.PaymentService) *PaymentHandler {
	if svc == nil {
		panic("nil payment service passed to NewPaymentHandler")
	}
	return &PaymentHandler{Payments: svc}
}

// Create handles POST /payments.
func (h *PaymentHandler) Create(c echo.Context) error {
	var req service.CreatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if uid := contextUserID(c); uid != nil {
		req.UserID = uid
	}
	req.ClientIP = c.RealIP()
	p, err := h.Payments.CreatePayment(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"order_id":       p.OrderID,
		"amount":         p.Amount,
		"payment_method": p.Method,
		"payment_status": p.Status,
	})
}

type confirmRequest struct {
	OrderID       string `json:"order_id"`
	Success       bool   `json:"success"`
	TransactionNo string `json:"transaction_no"`
	BankCode      string `json:"bank_code"`
	ResponseCode  string `json:"response_code"`
}

// Confirm handles POST /payments/confirm, the gateway-neutral result
// signal.
func (h *PaymentHandler) Confirm(c echo.Context) error {
	var body confirmRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res := model.PaymentResult{OrderID: body.OrderID, Success: body.Success, TransactionNo: body.TransactionNo}
	if body.BankCode != "" || body.ResponseCode != "" {
		res.VNPay = &model.VNPayDetails{
			TxnRef:        body.OrderID,
			TransactionNo: body.TransactionNo,
			BankCode:      body.BankCode,
			ResponseCode:  body.ResponseCode,
		}
	}
	return h.process(c, res)
}

// VNPayReturn handles GET /payments/vnpay/return, where the customer's
// browser lands after paying.
func (h *PaymentHandler) VNPayReturn(c echo.Context) error {
	return h.process(c, vnpayResult(c))
}

func (h *PaymentHandler) process(c echo.Context, res model.PaymentResult) error {
	out, err := h.Payments.ProcessResult(c.Request().Context(), res)
	if err != nil {
		if errors.Is(err, service.ErrHoldExpired) {
			return c.JSON(http.StatusGone, echo.Map{
				"error":        "reservation hold expired",
				"order_id":     res.OrderID,
				"failed_seats": out.FailedSeats,
			})
		}
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// VNPayIPN handles POST /payments/vnpay/ipn.  The gateway retries until it
// gets a well-formed answer, so this always returns 200 and reports the
// outcome in RspCode.
func (h *PaymentHandler) VNPayIPN(c echo.Context) error {
	res := vnpayResult(c)
	_, err := h.Payments.ProcessResult(c.Request().Context(), res)
	switch {
	case err == nil, errors.Is(err, service.ErrPaymentProcessed):
		return c.JSON(http.StatusOK, echo.Map{"RspCode": "00", "Message": "Confirm Success"})
	case errors.Is(err, repository.ErrPaymentNotFound):
		return c.JSON(http.StatusOK, echo.Map{"RspCode": "01", "Message": "Order not found"})
	default:
		c.Logger().Warnf("vnpay ipn for order %q: %v", res.OrderID, err)
		return c.JSON(http.StatusOK, echo.Map{"RspCode": "99", "Message": "Unknown error"})
	}
}

// vnpayResult reads the vnp_* parameters from the query string or form.
func vnpayResult(c echo.Context) model.PaymentResult {
	code := c.FormValue("vnp_ResponseCode")
	d := &model.VNPayDetails{
		TxnRef:        c.FormValue("vnp_TxnRef"),
		TransactionNo: c.FormValue("vnp_TransactionNo"),
		BankCode:      c.FormValue("vnp_BankCode"),
		CardType:      c.FormValue("vnp_CardType"),
		PayDate:       c.FormValue("vnp_PayDate"),
		ResponseCode:  code,
	}
	return model.PaymentResult{
		OrderID:       d.TxnRef,
		Success:       code == "00",
		TransactionNo: d.TransactionNo,
		VNPay:         d,
	}
}

// Status handles GET /payments/status/:order_id.
func (h *PaymentHandler) Status(c echo.Context) error {
	p, err := h.Payments.GetPayment(c.Request().Context(), c.Param("order_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"order_id":       p.OrderID,
		"amount":         p.Amount,
		"payment_method": p.Method,
		"payment_status": p.Status,
		"transaction_id": p.TransactionID,
		"created_at":     p.CreatedAt.UTC().Format(time.RFC3339),
	})
}
