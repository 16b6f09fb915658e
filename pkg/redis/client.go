package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-session/pkg/config"
	"github.com/angelmondragon/storefront-session/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Every key this service writes lives under sf:<kind>:...
const (
	keyNamespace      = "sf"
	cachePrefix       = "cache"
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"

	defaultScanBatch int64 = 100
)

// Nil is returned by Get when the key does not exist.
var Nil = redis.Nil

var errNotConnected = errors.New("redis client not initialized")

// Client is the service's view of Redis: a namespaced key/value store with
// the counters and claims the HTTP layer needs.
type Client struct {
	rdb *redis.Client
}

// IdempotencyStore is what the order-submit guard needs: claim a key, read
// it back, overwrite it with the outcome or release it.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Set(context.Context, string, any, time.Duration) error
	Del(context.Context, ...string) error
	IdempotencyKey(scope, id string) string
}

// New connects using cfg and fails fast when the server does not answer.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "redis_addr", opts.Addr), "redis connection established")
	}
	return &Client{rdb: rdb}, nil
}

// NewFromRedis wraps an already configured go-redis client.
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// options prefers STOREFRONT_REDIS_URL; pool and timeout settings fill in
// whatever the URL leaves unset.
func options(cfg config.RedisConfig) (*redis.Options, error) {
	if !cfg.Enabled() {
		return nil, errors.New("redis url or address is required")
	}
	opts := &redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
		if opts.DB == 0 {
			opts.DB = cfg.DB
		}
	}
	setDefault(&opts.PoolSize, cfg.PoolSize)
	setDefault(&opts.MinIdleConns, cfg.MinIdleConns)
	setDefault(&opts.DialTimeout, cfg.DialTimeout)
	setDefault(&opts.ReadTimeout, cfg.ReadTimeout)
	setDefault(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func setDefault[T comparable](dst *T, v T) {
	var zero T
	if *dst == zero {
		*dst = v
	}
}

func (c *Client) conn() (*redis.Client, error) {
	if c == nil || c.rdb == nil {
		return nil, errNotConnected
	}
	return c.rdb, nil
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, value, ttl).Err()
}

// Get returns the value stored at key, or Nil.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	rdb, err := c.conn()
	if err != nil {
		return "", err
	}
	return rdb.Get(ctx, key).Result()
}

// SetNX reports whether this call created the key.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	rdb, err := c.conn()
	if err != nil {
		return false, err
	}
	return rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	rdb, err := c.conn()
	if err != nil || len(keys) == 0 {
		return err
	}
	return rdb.Del(ctx, keys...).Err()
}

// FixedWindowAllow counts one attempt against scope. The window starts at
// the first attempt and the counter expires with it.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	rdb, err := c.conn()
	if err != nil {
		return false, 0, err
	}
	key := c.RateLimitKey(scope)
	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("count %s: %w", key, err)
	}
	if count == 1 && window > 0 {
		if err := rdb.Expire(ctx, key, window).Err(); err != nil {
			return false, count, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return count <= limit, count, nil
}

// DelPrefix removes every key starting with prefix using SCAN, so clearing a
// large namespace never blocks the server. It returns how many keys went.
func (c *Client) DelPrefix(ctx context.Context, prefix string, batch int64) (int, error) {
	rdb, err := c.conn()
	if err != nil {
		return 0, err
	}
	if batch <= 0 {
		batch = defaultScanBatch
	}
	iter := rdb.Scan(ctx, 0, escapeGlob(prefix)+"*", batch).Iterator()
	pending := make([]string, 0, batch)
	deleted := 0
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := rdb.Del(ctx, pending...).Err(); err != nil {
			return fmt.Errorf("delete %s*: %w", prefix, err)
		}
		deleted += len(pending)
		pending = pending[:0]
		return nil
	}
	for iter.Next(ctx) {
		pending = append(pending, iter.Val())
		if int64(len(pending)) >= batch {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan %s*: %w", prefix, err)
	}
	return deleted, flush()
}

func (c *Client) CacheKey(key string) string {
	return joinKey(cachePrefix, key)
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return joinKey(idempotencyPrefix, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return joinKey(rateLimitPrefix, scope)
}

// Ping backs the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	return rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// joinKey skips blank parts so an empty scope never produces "::".
func joinKey(parts ...string) string {
	key := keyNamespace
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			key += ":" + p
		}
	}
	return key
}

func escapeGlob(value string) string {
	var b strings.Builder
	for _, r := range value {
		if strings.ContainsRune(`*?[]\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
