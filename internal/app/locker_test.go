package app

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

func TestNewLockerBackends(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &Config{LockBackend: LockBackendRedis, LockTries: 2}
	locker, err := NewLocker(cfg, client)
	require.NoError(t, err)
	require.IsType(t, &shared.RedisLocker{}, locker)

	cfg.LockBackend = LockBackendLocal
	locker, err = NewLocker(cfg, client)
	require.NoError(t, err)
	require.IsType(t, &shared.LocalLocker{}, locker)

	cfg.LockBackend = LockBackendRedis
	locker, err = NewLocker(cfg, nil)
	require.NoError(t, err)
	require.IsType(t, &shared.LocalLocker{}, locker)
}
