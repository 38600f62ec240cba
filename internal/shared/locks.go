package shared

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const maxRetryDelay = 2 * time.Second

// StockLockKey builds the lock key guarding a single product stock row.
func StockLockKey(productID int64) string {
	return fmt.Sprintf("pos:stock:%d", productID)
}

// TransactionLockKey builds the lock key guarding a sale or purchase aggregate row.
func TransactionLockKey(kind string, id int64) string {
	return fmt.Sprintf("pos:txn:%s:%d", kind, id)
}

// Locker serialises critical sections identified by keys.
type Locker interface {
	// WithLocks acquires every key, runs fn and releases the keys. It fails with
	// ErrConcurrencyConflict when a key stays busy after the configured tries.
	WithLocks(ctx context.Context, keys []string, fn func(context.Context) error) error
}

// LockOptions configures bounded lock acquisition.
type LockOptions struct {
	// Expiry is how long a distributed lock lives before auto-expiring.
	Expiry time.Duration
	// Tries is the number of acquisition attempts per key.
	Tries int
	// RetryBase is the base delay of the exponential backoff between tries.
	RetryBase time.Duration
}

// DefaultLockOptions returns defaults tuned for sub-second ledger writes.
func DefaultLockOptions() LockOptions {
	return LockOptions{
		Expiry:    10 * time.Second,
		Tries:     8,
		RetryBase: 25 * time.Millisecond,
	}
}

func (o LockOptions) normalised() LockOptions {
	def := DefaultLockOptions()
	if o.Expiry <= 0 {
		o.Expiry = def.Expiry
	}
	if o.Tries <= 0 {
		o.Tries = def.Tries
	}
	if o.RetryBase <= 0 {
		o.RetryBase = def.RetryBase
	}
	return o
}

// RetryDelay returns an exponential delay with full jitter in [0, base*2^attempt),
// capped at two seconds.
func RetryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}
	ceiling := base << attempt
	if ceiling > maxRetryDelay || ceiling <= 0 {
		ceiling = maxRetryDelay
	}
	return rand.N(ceiling)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sortedUnique returns keys in a stable order so that every caller acquires
// overlapping key sets in the same sequence.
func sortedUnique(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LocalLocker implements Locker with in-process semaphores. Suitable for a
// single application instance.
type LocalLocker struct {
	opts  LockOptions
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker constructs LocalLocker.
func NewLocalLocker(opts LockOptions) *LocalLocker {
	return &LocalLocker{opts: opts.normalised(), slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *LocalLocker) acquire(ctx context.Context, key string) error {
	ch := l.slot(key)
	for try := 0; try < l.opts.Tries; try++ {
		select {
		case ch <- struct{}{}:
			return nil
		default:
		}
		if try == l.opts.Tries-1 {
			break
		}
		if err := sleepContext(ctx, RetryDelay(l.opts.RetryBase, try)); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: lock %s busy", ErrConcurrencyConflict, key)
}

func (l *LocalLocker) release(key string) {
	select {
	case <-l.slot(key):
	default:
	}
}

// WithLocks implements Locker.
func (l *LocalLocker) WithLocks(ctx context.Context, keys []string, fn func(context.Context) error) error {
	if l == nil {
		return errors.New("shared: local locker not initialised")
	}
	ordered := sortedUnique(keys)
	held := make([]string, 0, len(ordered))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}()
	for _, key := range ordered {
		if err := l.acquire(ctx, key); err != nil {
			return err
		}
		held = append(held, key)
	}
	return fn(ctx)
}

// RedisLocker implements Locker on top of redsync so that several application
// instances sharing one Redis serialise on the same keys.
type RedisLocker struct {
	rs   *redsync.Redsync
	opts LockOptions
}

// NewRedisLocker constructs RedisLocker from a go-redis client.
func NewRedisLocker(client redis.UniversalClient, opts LockOptions) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("shared: redis client required for locker")
	}
	return &RedisLocker{rs: redsync.New(goredis.NewPool(client)), opts: opts.normalised()}, nil
}

// WithLocks implements Locker.
func (l *RedisLocker) WithLocks(ctx context.Context, keys []string, fn func(context.Context) error) error {
	if l == nil || l.rs == nil {
		return errors.New("shared: redis locker not initialised")
	}
	ordered := sortedUnique(keys)
	held := make([]*redsync.Mutex, 0, len(ordered))
	defer func() {
		// Unlock must run even when the caller context is already cancelled.
		unlockCtx := context.WithoutCancel(ctx)
		for i := len(held) - 1; i >= 0; i-- {
			_, _ = held[i].UnlockContext(unlockCtx)
		}
	}()
	base := l.opts.RetryBase
	for _, key := range ordered {
		mutex := l.rs.NewMutex(key,
			redsync.WithExpiry(l.opts.Expiry),
			redsync.WithTries(l.opts.Tries),
			redsync.WithRetryDelayFunc(func(tries int) time.Duration {
				return RetryDelay(base, tries)
			}),
		)
		if err := mutex.LockContext(ctx); err != nil {
			if isLockContention(err) {
				return fmt.Errorf("%w: lock %s busy", ErrConcurrencyConflict, key)
			}
			return fmt.Errorf("shared: acquire lock %s: %w", key, err)
		}
		held = append(held, mutex)
	}
	return fn(ctx)
}

func isLockContention(err error) bool {
	if errors.Is(err, redsync.ErrFailed) {
		return true
	}
	var taken *redsync.ErrTaken
	if errors.As(err, &taken) {
		return true
	}
	var nodeTaken *redsync.ErrNodeTaken
	return errors.As(err, &nodeTaken)
}
