// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RetryAfterSeconds is advertised to clients on concurrency conflicts.
const RetryAfterSeconds = "1"

// StatusFor maps the shared error taxonomy to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrConcurrencyConflict),
		errors.Is(err, shared.ErrIdempotencyConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch {
	case status == http.StatusNotFound:
		Problem(w, status, "Not Found", shared.UserSafeMessage(err))
	case status == http.StatusBadRequest:
		Problem(w, status, "Validation Failed", shared.UserSafeMessage(err))
	case status == http.StatusUnprocessableEntity:
		Problem(w, status, "Insufficient Stock", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, status, "Duplicate Request", err.Error())
	case status == http.StatusConflict:
		w.Header().Set("Retry-After", RetryAfterSeconds)
		Problem(w, status, "Conflict", shared.UserSafeMessage(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
