package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestUnitOfWorkRetriesSerializationFailure(t *testing.T) {
	var conflicts []string
	uow := UnitOfWork{
		Locker:     NewLocalLocker(fastLockOptions()),
		Attempts:   3,
		Base:       time.Millisecond,
		OnConflict: func(scope string) { conflicts = append(conflicts, scope) },
	}
	calls := 0
	err := uow.Run(context.Background(), "sale", []string{"k"}, func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("update: %w", &pgconn.PgError{Code: "40001"})
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []string{"sale", "sale"}, conflicts)
}

func TestUnitOfWorkExhaustsToConflict(t *testing.T) {
	uow := UnitOfWork{Locker: NewLocalLocker(fastLockOptions()), Attempts: 2, Base: time.Millisecond}
	calls := 0
	err := uow.Run(context.Background(), "stock", nil, func(context.Context) error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.ErrorIs(t, err, ErrConcurrencyConflict)
	require.Equal(t, 2, calls)
}

func TestUnitOfWorkDoesNotRetryDomainErrors(t *testing.T) {
	uow := UnitOfWork{Locker: NewLocalLocker(fastLockOptions()), Attempts: 5, Base: time.Millisecond}
	calls := 0
	err := uow.Run(context.Background(), "stock", []string{"k"}, func(context.Context) error {
		calls++
		return ErrInsufficientStock
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, 1, calls)
}

func TestUnitOfWorkDetachesCancellation(t *testing.T) {
	uow := UnitOfWork{Locker: NewLocalLocker(fastLockOptions())}
	ctx, cancel := context.WithCancel(context.Background())
	err := uow.Run(ctx, "stock", []string{"k"}, func(inner context.Context) error {
		cancel()
		require.NoError(t, inner.Err())
		return nil
	})
	require.NoError(t, err)
}

func TestUnitOfWorkRequiresLocker(t *testing.T) {
	err := UnitOfWork{}.Run(context.Background(), "x", nil, func(context.Context) error { return nil })
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrConcurrencyConflict))
}

func TestUserSafeMessage(t *testing.T) {
	require.Equal(t, "", UserSafeMessage(nil))
	require.Equal(t, "internal error", UserSafeMessage(errors.New("pg: connection reset")))
	require.Equal(t, "resource busy, retry the request", UserSafeMessage(fmt.Errorf("x: %w", ErrConcurrencyConflict)))
	wrapped := fmt.Errorf("inventory: %w", ErrInsufficientStock)
	require.Equal(t, wrapped.Error(), UserSafeMessage(wrapped))
}

func TestActorContext(t *testing.T) {
	ctx := ContextWithActor(context.Background(), 9)
	require.Equal(t, int64(9), ActorFromContext(ctx))
	require.Zero(t, ActorFromContext(context.Background()))
}
