package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mir00r/traffic-resilience/internal/domain"
)

// GetJSON reads key and decodes it into a T. A value that no longer decodes
// is dropped from both tiers and reported as a miss.
func GetJSON[T any](ctx context.Context, c *MultiLevelCache, key string) (T, bool) {
	var out T
	raw, ok := c.Get(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Dropping undecodable cache entry")
		c.Del(ctx, key)
		var zero T
		return zero, false
	}
	return out, true
}

// SetJSON encodes value and stores it under key.
func SetJSON[T any](ctx context.Context, c *MultiLevelCache, key string, value T, opts domain.SetOptions) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache value for %q: %w", key, err)
	}
	return c.Set(ctx, key, raw, opts)
}
