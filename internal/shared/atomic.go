package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// UnitOfWork runs a critical section under named locks and retries it when the
// database reports a serialization failure, deadlock or lock timeout.
type UnitOfWork struct {
	Locker   Locker
	Attempts int
	Base     time.Duration
	// OnConflict is called with the scope whenever an attempt hits contention.
	OnConflict func(scope string)
}

// Run acquires keys, then invokes fn with a context detached from the caller's
// cancellation so a started database transaction always commits or rolls back.
// scope labels the operation for conflict reporting.
func (u UnitOfWork) Run(ctx context.Context, scope string, keys []string, fn func(context.Context) error) error {
	if u.Locker == nil {
		return errors.New("shared: unit of work requires a locker")
	}
	attempts := u.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	base := u.Base
	if base <= 0 {
		base = DefaultLockOptions().RetryBase
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, RetryDelay(base, attempt-1)); err != nil {
				return err
			}
		}
		err := u.Locker.WithLocks(ctx, keys, func(lockedCtx context.Context) error {
			return fn(context.WithoutCancel(lockedCtx))
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) && !db.IsRetryable(err) {
			return err
		}
		if u.OnConflict != nil {
			u.OnConflict(scope)
		}
		lastErr = err
	}
	if errors.Is(lastErr, ErrConcurrencyConflict) {
		return lastErr
	}
	return fmt.Errorf("%w: %s: %v", ErrConcurrencyConflict, scope, lastErr)
}
