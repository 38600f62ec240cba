package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

func TestRespondErrorTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
		retry  bool
	}{
		{fmt.Errorf("trade: %w", shared.ErrNotFound), http.StatusNotFound, false},
		{fmt.Errorf("tax: %w", shared.ErrValidation), http.StatusBadRequest, false},
		{fmt.Errorf("inventory: %w", shared.ErrInsufficientStock), http.StatusUnprocessableEntity, false},
		{fmt.Errorf("lock: %w", shared.ErrConcurrencyConflict), http.StatusConflict, true},
		{shared.ErrIdempotencyConflict, http.StatusConflict, false},
		{errors.New("disk on fire"), http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		require.Equal(t, tc.retry, rec.Header().Get("Retry-After") != "", tc.err.Error())

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tc.status, body.Status)
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("password=secret"))
	require.NotContains(t, rec.Body.String(), "secret")
}

type sampleRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  string `json:"quantity" validate:"required"`
}

func TestDecodeJSONValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":0}`))
	var dst sampleRequest
	err := DecodeJSON(req, &dst)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "productid required")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":3,"quantity":"1.5"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	require.Equal(t, int64(3), dst.ProductID)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"unknown":1}`))
	require.ErrorIs(t, DecodeJSON(req, &dst), shared.ErrValidation)
}
