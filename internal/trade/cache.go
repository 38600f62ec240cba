package trade

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const defaultReceiptTTL = 24 * time.Hour

// ReceiptCache keeps issued receipts in Redis. Concurrent misses for one
// receipt share a single build.
type ReceiptCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	group  singleflight.Group
}

// NewReceiptCache instantiates the cache. A nil client disables caching.
func NewReceiptCache(client redis.UniversalClient, ttl time.Duration) *ReceiptCache {
	if ttl <= 0 {
		ttl = defaultReceiptTTL
	}
	return &ReceiptCache{client: client, ttl: ttl}
}

func receiptKey(kind Kind, id int64) string {
	return strings.Join([]string{"pos", "receipt", string(kind), strconv.FormatInt(id, 10)}, ":")
}

// Put stores r under its transaction.
func (c *ReceiptCache) Put(ctx context.Context, r Receipt) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, receiptKey(r.Kind, r.TransactionID), raw, c.ttl).Err()
}

// GetOrBuild loads a cached receipt or populates it using build.
func (c *ReceiptCache) GetOrBuild(ctx context.Context, kind Kind, id int64, build func(context.Context) (Receipt, error)) (Receipt, error) {
	if build == nil {
		return Receipt{}, errors.New("trade: receipt builder required")
	}
	if c == nil || c.client == nil {
		return build(ctx)
	}
	key := receiptKey(kind, id)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var r Receipt
		if err := json.Unmarshal(payload, &r); err == nil {
			return r, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return Receipt{}, err
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		r, err := build(ctx)
		if err != nil {
			return Receipt{}, err
		}
		if err := c.Put(ctx, r); err != nil {
			return Receipt{}, err
		}
		return r, nil
	})
	select {
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Receipt{}, res.Err
		}
		return res.Val.(Receipt), nil
	}
}
