package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisViewCache keys entries by a per-(tenant, view) generation counter.
// Invalidate bumps the counter, so stale entries are never read again and
// expire on their own TTL.
type RedisViewCache struct {
	client redisClient
	now    func() time.Time
}

func NewRedisViewCache(addr string, password string, db int) *RedisViewCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return newRedisViewCache(client)
}

func newRedisViewCache(client redisClient) *RedisViewCache {
	return &RedisViewCache{client: client, now: time.Now}
}

func (c *RedisViewCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisViewCache) Close() error {
	return c.client.Close()
}

func generationKey(tenantID string, view string) string {
	return fmt.Sprintf("outletpos:viewgen:%s:%s", tenantID, view)
}

func entryKey(tenantID string, view string, generation int64, key string) string {
	return fmt.Sprintf("outletpos:view:%s:%s:%d:%s", tenantID, view, generation, key)
}

func (c *RedisViewCache) generation(ctx context.Context, tenantID string, view string) (int64, error) {
	val, err := c.client.Get(ctx, generationKey(tenantID, view)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

func (c *RedisViewCache) Get(ctx context.Context, tenantID string, view string, key string, dest any) (int64, bool, error) {
	gen, err := c.generation(ctx, tenantID, view)
	if err != nil {
		return 0, false, err
	}
	val, err := c.client.Get(ctx, entryKey(tenantID, view, gen, key)).Result()
	if errors.Is(err, redis.Nil) {
		return gen, false, nil
	}
	if err != nil {
		return gen, false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return gen, false, err
	}
	return gen, true, nil
}

// Set writes under the generation observed by the Get that missed. If the view
// was invalidated in between, the entry lands under a retired generation and
// is never read; the write is skipped when that is already known.
func (c *RedisViewCache) Set(ctx context.Context, tenantID string, view string, key string, generation int64, value any, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	current, err := c.generation(ctx, tenantID, view)
	if err != nil {
		return err
	}
	if current != generation {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, entryKey(tenantID, view, generation, key), payload, ttl).Err()
}

func (c *RedisViewCache) Invalidate(ctx context.Context, tenantID string, views ...string) error {
	if len(views) == 0 {
		return nil
	}
	var errs []error
	for _, view := range views {
		if err := c.client.Incr(ctx, generationKey(tenantID, view)).Err(); err != nil {
			errs = append(errs, fmt.Errorf("bump %s: %w", view, err))
		}
	}
	payload, err := json.Marshal(Invalidation{TenantID: tenantID, Views: views, At: c.now().UTC()})
	if err != nil {
		return err
	}
	if err := c.client.Publish(ctx, InvalidationChannel, payload).Err(); err != nil {
		errs = append(errs, fmt.Errorf("publish: %w", err))
	}
	return multierr.Combine(errs...)
}
