package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-availability/internal/repository"
	"github.com/iliyamo/cinema-seat-availability/internal/service"
)

// statusFor maps a service or repository error to an HTTP status and the
// message shown to the client.  Unknown errors become 500 with a generic
// message; the cause is logged, never returned.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrShowtimeNotFound):
		return http.StatusNotFound, "showtime not found"
	case errors.Is(err, repository.ErrSeatNotFound):
		return http.StatusNotFound, "seat not found"
	case errors.Is(err, repository.ErrPaymentNotFound):
		return http.StatusNotFound, "payment not found"
	case errors.Is(err, service.ErrNoPendingHolds):
		return http.StatusNotFound, "no pending reservations"
	case errors.Is(err, service.ErrSeatConfirmed), errors.Is(err, service.ErrSeatHeld):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrPaymentProcessed):
		return http.StatusConflict, "payment already processed"
	case errors.Is(err, service.ErrHoldExpired):
		return http.StatusGone, "reservation hold expired"
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrConfirmationFailed):
		return http.StatusInternalServerError, "booking confirmation failed, the order will be reconciled"
	}
	return http.StatusInternalServerError, "internal server error"
}

func respondError(c echo.Context, err error) error {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		log.Printf("http: %s %s: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(code, echo.Map{"error": msg})
}

// ErrorHandler renders errors that escaped a handler, including echo's
// own 404 and 405, as {"error": message}.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := any(http.StatusText(code))
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = he.Message
	} else {
		log.Printf("http: unhandled error on %s %s: %v", c.Request().Method, c.Path(), err)
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, echo.Map{"error": msg})
	}
	if err != nil {
		log.Printf("http: write error response: %v", err)
	}
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// contextUserID returns the authenticated user id set by the identity
// middleware, or nil for guests.
func contextUserID(c echo.Context) *uint64 {
	switch v := c.Get("user_id").(type) {
	case uint64:
		return &v
	case float64:
		if v > 0 {
			id := uint64(v)
			return &id
		}
	case string:
		if id, err := strconv.ParseUint(v, 10, 64); err == nil && id > 0 {
			return &id
		}
	}
	return nil
}
