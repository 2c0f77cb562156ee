package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/net/websocket"

	"github.com/iliyamo/cinema-seat-availability/internal/hub"
	"github.com/iliyamo/cinema-seat-availability/internal/model"
	"github.com/iliyamo/cinema-seat-availability/internal/service"
)

// SeatFeedHandler serves the per-showtime real-time seat channel.
type SeatFeedHandler struct {
	Hub          *hub.Hub
	Reservations service.ReservationService
	WriteTimeout time.Duration
}

// NewSeatFeedHandler panics on nil dependencies.
func NewSeatFeedHandler(h *hub.Hub, svc service.ReservationService, writeTimeout time.Duration) *SeatFeedHandler {
	if h == nil || svc == nil {
		panic("nil dependency passed to NewSeatFeedHandler")
	}
	return &SeatFeedHandler{Hub: h, Reservations: svc, WriteTimeout: writeTimeout}
}

// Seats handles GET /ws/seats/:showtime_id?session_id=... and upgrades
// the request to a websocket.  Origin is not checked here.
func (h *SeatFeedHandler) Seats(c echo.Context) error {
	raw := c.Param("showtime_id")
	showtimeID, _ := parseID(c, "showtime_id")
	sessionID := c.QueryParam("session_id")
	ctx := c.Request().Context()
	srv := websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler: func(ws *websocket.Conn) {
			h.Attach(ctx, hub.NewWSTransport(ws, h.WriteTimeout), showtimeID, raw, sessionID)
		},
	}
	srv.ServeHTTP(c.Response(), c.Request())
	return nil
}

// Attach runs one viewer connection to completion.  An unknown showtime
// gets a single error frame and is closed.  Otherwise the connection is
// registered, sent the current snapshot and then served until it goes
// away.  The client is registered gated before the snapshot is read, so
// changes committed meanwhile are delivered after the snapshot.
func (h *SeatFeedHandler) Attach(ctx context.Context, t hub.Transport, showtimeID uint64, raw, sessionID string) {
	if showtimeID == 0 {
		rejectFeed(t, showtimeID, "Invalid showtime ID: "+raw)
		return
	}
	if _, err := h.Reservations.Showtime(ctx, showtimeID); err != nil {
		_, msg := statusFor(err)
		rejectFeed(t, showtimeID, msg)
		return
	}

	client := h.Hub.ConnectPending(t, showtimeID, sessionID)
	list, err := h.Reservations.ListReserved(ctx, showtimeID)
	if err != nil {
		log.Printf("ws: snapshot for showtime=%d: %v", showtimeID, err)
		_ = h.Hub.Ready(client, hub.Error(showtimeID, "Failed to load initial data"))
	} else {
		_ = h.Hub.Ready(client, hub.InitialData(showtimeID, snapshot(list)))
	}
	h.Hub.Serve(client)
	<-client.Done()
}

func rejectFeed(t hub.Transport, showtimeID uint64, msg string) {
	if b, err := json.Marshal(hub.Error(showtimeID, msg)); err == nil {
		_ = t.Send(b)
	}
	_ = t.Close()
}

func snapshot(list []model.Reservation) []hub.ReservedSeat {
	out := make([]hub.ReservedSeat, len(list))
	for i, r := range list {
		out[i] = hub.ReservedSeat{
			SeatID:      r.SeatID,
			Status:      string(r.Status),
			ExpiresAt:   r.ExpiresAt,
			UserSession: r.SessionID,
		}
	}
	return out
}

// Status handles GET /ws/status/:showtime_id.
func (h *SeatFeedHandler) Status(c echo.Context) error {
	showtimeID, ok := parseID(c, "showtime_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	return c.JSON(http.StatusOK, h.Hub.Status(showtimeID))
}
