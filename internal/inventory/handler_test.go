package inventory

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*fixture, http.Handler) {
	t.Helper()
	f := newFixture(t)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc)
	r := chi.NewRouter()
	r.Route("/api", h.MountRoutes)
	return f, r
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerProvisionAndMove(t *testing.T) {
	f, router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/stocks", `{"product_id":1,"price_retail":"10.00","price_wholesale":"9.00","cost_per_unit":"7.00","opening_quantity":"20"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var stock stockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stock))
	require.Equal(t, "20", stock.Quantity.String())

	rec = doRequest(t, router, http.MethodPost, "/api/stocks/1/movements", `{"type":"11","quantity":"5","remark":"walk-in"}`, map[string]string{"Idempotency-Key": "abc"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var mv movementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mv))
	require.Equal(t, "Outgoing-Sale", mv.Label)
	require.Equal(t, "out", mv.Direction)
	require.Equal(t, "15", mv.QuantityAfter.String())

	rec = doRequest(t, router, http.MethodPost, "/api/stocks/1/movements", `{"type":"11","quantity":"5"}`, map[string]string{"Idempotency-Key": "abc"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/stocks/1/movements", `{"type":"16","quantity":"100"}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/stocks/1/movements?type=11", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []movementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.True(t, f.repo.stock(1).Quantity.Equal(d("15")))
}

func TestHandlerErrors(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/stocks/77", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/stocks/abc", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/stocks", `{"product_id":0}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/movements?from=2024-02-01&to=2024-01-01", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/movements?from=yesterday", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerPricingAndReorder(t *testing.T) {
	_, router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodPost, "/api/stocks", `{"product_id":2,"reorder_level":"5","opening_quantity":"3"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(t, router, http.MethodPut, "/api/stocks/2/pricing", `{"price_retail":"4.40"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stock stockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stock))
	require.Equal(t, "4.4", stock.PriceRetail.String())
	require.True(t, stock.BelowReorder)

	rec = doRequest(t, router, http.MethodGet, "/api/stocks/reorder", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reorder []stockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reorder))
	require.Len(t, reorder, 1)

	rec = doRequest(t, router, http.MethodGet, "/api/stocks?product_id=2,9", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stocks []stockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stocks))
	require.Len(t, stocks, 1)
}

func TestDateParam(t *testing.T) {
	end, err := DateParam("2024-03-01", true)
	require.NoError(t, err)
	require.Equal(t, 23, end.Hour())
	start, err := DateParam("2024-03-01T08:00:00Z", false)
	require.NoError(t, err)
	require.Equal(t, 8, start.Hour())
	zero, err := DateParam("", false)
	require.NoError(t, err)
	require.True(t, zero.IsZero())
}
