package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-availability/internal/model"
	"github.com/iliyamo/cinema-seat-availability/internal/repository"
)

type stubReconciliation struct {
	limit int
	items []repository.ReconciliationItem
	err   error
}

func (s *stubReconciliation) PendingReconciliation(_ context.Context, limit int) ([]repository.ReconciliationItem, error) {
	s.limit = limit
	return s.items, s.err
}

func TestOpsReconciliation_Handler(t *testing.T) {
	src := &stubReconciliation{items: []repository.ReconciliationItem{{PaymentID: 55, OrderID: "order-1", Status: model.PaymentSuccess, Note: "refund"}}}
	h := &OpsHandler{Reconciliation: src}
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ops/reconciliation?limit=10", nil), rec)

	require.NoError(t, h.Reconciliation(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, src.limit)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	assert.Contains(t, rec.Body.String(), `"order_id":"order-1"`)
}

func TestOpsReconciliation_Failure(t *testing.T) {
	h := &OpsHandler{Reconciliation: &stubReconciliation{err: errors.New("db down")}}
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ops/reconciliation", nil), rec)

	require.NoError(t, h.Reconciliation(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestOpsReconciliation_NoSourceIsEmpty(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ops/reconciliation", nil), rec)

	require.NoError(t, (&OpsHandler{}).Reconciliation(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0,"payments":[]}`, rec.Body.String())
}
