package cache

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront-session/pkg/metrics"
)

// Instrumented wraps a Store and records hit/miss/invalidation counters.
type Instrumented struct {
	next    Store
	metrics *metrics.CacheMetrics
}

func NewInstrumented(next Store, m *metrics.CacheMetrics) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

func (i *Instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := i.next.Get(ctx, key)
	switch {
	case err == nil:
		i.metrics.Hit(Namespace(key))
	case errors.Is(err, ErrMiss):
		i.metrics.Miss(Namespace(key))
	}
	return val, err
}

func (i *Instrumented) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return i.next.Set(ctx, key, value, ttl)
}

func (i *Instrumented) Invalidate(ctx context.Context, key string) error {
	if err := i.next.Invalidate(ctx, key); err != nil {
		return err
	}
	i.metrics.Invalidated(Namespace(key), "key")
	return nil
}

func (i *Instrumented) InvalidatePattern(ctx context.Context, prefix string) error {
	if err := i.next.InvalidatePattern(ctx, prefix); err != nil {
		return err
	}
	i.metrics.Invalidated(Namespace(prefix), "prefix")
	return nil
}
