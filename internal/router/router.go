// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-availability/internal/handler"
	"github.com/iliyamo/cinema-seat-availability/internal/middleware"
)

// Handlers bundles everything RegisterRoutes mounts.
type Handlers struct {
	Reservations *handler.ReservationHandler
	Payments     *handler.PaymentHandler
	SeatFeed     *handler.SeatFeedHandler
	Ops          *handler.OpsHandler
}

// RegisterRoutes mounts the public API.  Reservation and payment routes
// accept an optional bearer token; writes to /reservations go through
// the rate limiter; /ops requires an ADMIN token.
func RegisterRoutes(e *echo.Echo, h Handlers, jwtSecret string, limiter echo.MiddlewareFunc) {
	e.GET("/healthz", handler.Health)
	if limiter == nil {
		limiter = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	identity := middleware.OptionalIdentity(jwtSecret)

	r := e.Group("/reservations", identity)
	r.GET("/:showtime_id", h.Reservations.List)
	r.POST("", h.Reservations.Create, limiter)
	r.POST("/multiple", h.Reservations.CreateMany, limiter)
	r.POST("/cancel", h.Reservations.Cancel, limiter)

	p := e.Group("/payments", identity)
	p.POST("", h.Payments.Create)
	p.POST("/confirm", h.Payments.Confirm)
	p.GET("/vnpay/return", h.Payments.VNPayReturn)
	p.POST("/vnpay/ipn", h.Payments.VNPayIPN)
	p.GET("/status/:order_id", h.Payments.Status)

	e.GET("/ws/seats/:showtime_id", h.SeatFeed.Seats)
	e.GET("/ws/status/:showtime_id", h.SeatFeed.Status)

	ops := e.Group("/ops", middleware.JWTAuth(jwtSecret), middleware.RequireRole("ADMIN"))
	ops.GET("/outbox", h.Ops.Outbox)
	ops.GET("/reconciliation", h.Ops.Reconciliation)
}
