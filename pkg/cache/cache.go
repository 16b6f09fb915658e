// Package cache provides the short-lived key/value layer used to avoid
// refetching cart and checkout state from the storefront on every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMiss is returned by Get when the key is absent or its entry expired.
var ErrMiss = errors.New("cache: miss")

// Store is a TTL cache keyed by string. Expired entries are never returned.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	InvalidatePattern(ctx context.Context, prefix string) error
}

// GetJSON reads key and decodes it into T.
func GetJSON[T any](ctx context.Context, store Store, key string) (T, error) {
	var out T
	raw, err := store.Get(ctx, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode cache entry %q: %w", key, err)
	}
	return out, nil
}

// SetJSON encodes value as JSON and stores it under key.
func SetJSON(ctx context.Context, store Store, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", key, err)
	}
	return store.Set(ctx, key, raw, ttl)
}

// Namespace returns the metric label for key: everything before the first
// underscore or colon ("cart_42" -> "cart").
func Namespace(key string) string {
	if idx := strings.IndexAny(key, "_:"); idx > 0 {
		return key[:idx]
	}
	return key
}
