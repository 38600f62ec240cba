package app

import (
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// NewLocker picks the lock backend named by LOCK_BACKEND. The local backend
// only serialises callers inside one process.
func NewLocker(cfg *Config, client redis.UniversalClient) (shared.Locker, error) {
	if cfg.LockBackend == LockBackendLocal || client == nil {
		return shared.NewLocalLocker(cfg.LockOptions()), nil
	}
	return shared.NewRedisLocker(client, cfg.LockOptions())
}
