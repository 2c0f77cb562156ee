package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-availability/internal/model"
	"github.com/iliyamo/cinema-seat-availability/internal/service"
)

// ReservationHandler exposes the reservation manager over REST.  Requests
// are anonymous by default; when the identity middleware found a valid
// bearer token its user id is attached to new holds.
type ReservationHandler struct {
	Reservations service.ReservationService
}

// NewReservationHandler panics on a nil service.
func NewReservationHandler(svc service.ReservationService) *ReservationHandler {
	if svc == nil {
		panic("nil reservation service passed to NewReservationHandler")
	}
	return &ReservationHandler{Reservations: svc}
}

// List handles GET /reservations/:showtime_id.  It returns every pending
// and confirmed reservation of the showtime.
func (h *ReservationHandler) List(c echo.Context) error {
	showtimeID, ok := parseID(c, "showtime_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	list, err := h.Reservations.ListReserved(c.Request().Context(), showtimeID)
	if err != nil {
		return respondError(c, err)
	}
	if list == nil {
		list = []model.Reservation{}
	}
	return c.JSON(http.StatusOK, list)
}

// Create handles POST /reservations.
func (h *ReservationHandler) Create(c echo.Context) error {
	var req model.ReservationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.UserID == nil {
		req.UserID = contextUserID(c)
	}
	res, err := h.Reservations.Reserve(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// CreateMany handles POST /reservations/multiple.  The body is a JSON
// array of reservation requests; either all are held or none.
func (h *ReservationHandler) CreateMany(c echo.Context) error {
	var reqs []model.ReservationRequest
	if err := (&echo.DefaultBinder{}).BindBody(c, &reqs); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(reqs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at least one seat is required"})
	}
	if uid := contextUserID(c); uid != nil {
		for i := range reqs {
			if reqs[i].UserID == nil {
				reqs[i].UserID = uid
			}
		}
	}
	out, err := h.Reservations.ReserveMany(c.Request().Context(), reqs)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"reservations": out})
}

// Cancel handles POST /reservations/cancel.  Only the caller's own
// pending holds are released; a cancel that matches nothing still
// answers 200.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	var req service.CancelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := h.Reservations.Cancel(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
