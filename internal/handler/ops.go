package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-availability/internal/outbox"
	"github.com/iliyamo/cinema-seat-availability/internal/repository"
)

// StatsSource is anything that reports outbox counters.
type StatsSource interface {
	Stats() outbox.Stats
}

// ReconciliationSource lists paid orders that need manual follow-up.
// *repository.PaymentRepo satisfies it.
type ReconciliationSource interface {
	PendingReconciliation(ctx context.Context, limit int) ([]repository.ReconciliationItem, error)
}

// OpsHandler exposes internal counters to operators.
type OpsHandler struct {
	Outboxes       []StatsSource
	Reconciliation ReconciliationSource
}

// Outbox handles GET /ops/outbox.
func (h *OpsHandler) Outbox(c echo.Context) error {
	out := make([]outbox.Stats, 0, len(h.Outboxes))
	for _, d := range h.Outboxes {
		out = append(out, d.Stats())
	}
	return c.JSON(http.StatusOK, echo.Map{"dispatchers": out})
}

// Reconciliation handles GET /ops/reconciliation?limit=N.
func (h *OpsHandler) Reconciliation(c echo.Context) error {
	items := []repository.ReconciliationItem{}
	if h.Reconciliation != nil {
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		var err error
		items, err = h.Reconciliation.PendingReconciliation(c.Request().Context(), limit)
		if err != nil {
			return respondError(c, err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"count": len(items), "payments": items})
}
