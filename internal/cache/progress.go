package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"fulfillment/internal/core"
)

const (
	progressKeyPrefix   = "progress:"
	generationKeyPrefix = "progress-gen:"
	generationTTL       = 24 * time.Hour
)

// setIfGenerationScript writes the projection only while the order's generation still
// equals the one read before the projection was computed. A missing counter is 0.
var setIfGenerationScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	current = '0'
end

if current ~= ARGV[1] then
	return 0
end

redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// ProgressCache stores OrderProgress projections in Redis. The ledger stays
// authoritative; entries are dropped on every ledger change, and each drop bumps a
// per-order generation so a projection computed before the drop is never stored.
type ProgressCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProgressCache(client *redis.Client, ttl time.Duration) *ProgressCache {
	return &ProgressCache{client: client, ttl: ttl}
}

// Dial connects to addr and verifies the server answers.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return client, nil
}

func progressKey(orderID string) string {
	return progressKeyPrefix + orderID
}

func generationKey(orderID string) string {
	return generationKeyPrefix + orderID
}

// Get returns the cached projection, or false when absent.
func (c *ProgressCache) Get(ctx context.Context, orderID string) (*core.OrderProgress, bool, error) {
	raw, err := c.client.Get(ctx, progressKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var progress core.OrderProgress
	if err := json.Unmarshal(raw, &progress); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached progress: %w", err)
	}
	return &progress, true, nil
}

// Generation returns the order's invalidation counter. Read it before projecting
// the ledger and hand it to Set.
func (c *ProgressCache) Generation(ctx context.Context, orderID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(orderID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set stores progress unless the order was invalidated after generation was read.
// It reports whether the entry was written.
func (c *ProgressCache) Set(ctx context.Context, progress *core.OrderProgress, generation int64) (bool, error) {
	raw, err := json.Marshal(progress)
	if err != nil {
		return false, err
	}
	keys := []string{generationKey(progress.OrderID), progressKey(progress.OrderID)}
	written, err := setIfGenerationScript.Run(ctx, c.client, keys,
		strconv.FormatInt(generation, 10), raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return written == 1, nil
}

// Invalidate bumps the generation and drops the cached projection in one transaction.
func (c *ProgressCache) Invalidate(ctx context.Context, orderID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(orderID))
		pipe.Expire(ctx, generationKey(orderID), generationTTL)
		pipe.Del(ctx, progressKey(orderID))
		return nil
	})
	return err
}
