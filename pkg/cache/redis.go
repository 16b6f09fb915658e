package cache

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront-session/pkg/redis"
)

type redisBackend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DelPrefix(ctx context.Context, prefix string, batch int64) (int, error)
	CacheKey(key string) string
}

// Redis is a Store backed by the shared redis client. TTLs are enforced by
// the server; prefix invalidation walks the keyspace with SCAN.
type Redis struct {
	client    redisBackend
	scanBatch int64
}

func NewRedis(client *redis.Client, scanBatch int64) *Redis {
	return &Redis{client: client, scanBatch: scanBatch}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.client.CacheKey(key))
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return []byte(val), nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return r.Invalidate(ctx, key)
	}
	return r.client.Set(ctx, r.client.CacheKey(key), value, ttl)
}

func (r *Redis) Invalidate(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.client.CacheKey(key))
}

func (r *Redis) InvalidatePattern(ctx context.Context, prefix string) error {
	_, err := r.client.DelPrefix(ctx, r.client.CacheKey(prefix), r.scanBatch)
	return err
}
