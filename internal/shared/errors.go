package shared

import "errors"

// Error taxonomy shared by every module. Package level errors wrap one of these
// so callers can branch with errors.Is without knowing the originating package.
var (
	// ErrNotFound indicates an unknown product, stock, transaction or line identifier.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock indicates an outgoing movement would drive quantity negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConcurrencyConflict indicates lock or version contention that exhausted retries.
	// Callers may retry the whole operation.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// UserSafeMessage returns a message suitable for API clients.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrInsufficientStock):
		return err.Error()
	case errors.Is(err, ErrConcurrencyConflict):
		return "resource busy, retry the request"
	default:
		return "internal error"
	}
}
