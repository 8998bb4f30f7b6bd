package cache

import (
	"context"
	"time"

	"github.com/mir00r/traffic-resilience/internal/domain"
	rerrors "github.com/mir00r/traffic-resilience/internal/errors"
	"github.com/mir00r/traffic-resilience/pkg/logger"
)

// DistributedCache is the remote cache tier. Every failure is logged here and
// returned as a DISTRIBUTED_CACHE_FAILED error alongside a neutral result, so
// callers can treat it as a miss or a no-op without further handling.
type DistributedCache struct {
	store      domain.KVStore
	prefix     string
	defaultTTL time.Duration
	timeout    time.Duration
	logger     *logger.Logger
}

// NewDistributedCache creates the remote tier over store.
func NewDistributedCache(store domain.KVStore, config domain.CacheConfig, log *logger.Logger) *DistributedCache {
	return &DistributedCache{
		store:      store,
		prefix:     config.KeyPrefix,
		defaultTTL: config.DistributedTTL,
		timeout:    config.OperationTimeout,
		logger:     log.CacheLogger("distributed"),
	}
}

// Get returns the value for key. found is false on a miss or a failure.
func (d *DistributedCache) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	value, err = d.store.Get(ctx, d.key(key))
	if err != nil {
		return nil, false, d.fail("get", key, err)
	}
	return value, value != nil, nil
}

// Set writes key with ttl, or the default TTL when ttl is zero.
func (d *DistributedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if err := d.store.Set(ctx, d.key(key), value, d.ttl(ttl)); err != nil {
		return d.fail("set", key, err)
	}
	return nil
}

// Del removes keys
func (d *DistributedCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if err := d.store.Del(ctx, d.keys(keys)...); err != nil {
		return d.fail("del", keys[0], err)
	}
	return nil
}

// GetMulti fetches several keys in one round trip. Missing keys are absent
// from the result; on failure the result is empty.
func (d *DistributedCache) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	if len(keys) == 1 {
		value, found, err := d.Get(ctx, keys[0])
		if found {
			out[keys[0]] = value
		}
		return out, err
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	values, err := d.store.MGet(ctx, d.keys(keys)...)
	if err != nil {
		return map[string][]byte{}, d.fail("mget", keys[0], err)
	}
	for i, v := range values {
		if v != nil && i < len(keys) {
			out[keys[i]] = v
		}
	}
	return out, nil
}

// SetMulti writes several keys with the same TTL, pipelined when there is
// more than one.
func (d *DistributedCache) SetMulti(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	switch len(values) {
	case 0:
		return nil
	case 1:
		for k, v := range values {
			return d.Set(ctx, k, v, ttl)
		}
	}

	prefixed := make(map[string][]byte, len(values))
	var first string
	for k, v := range values {
		if first == "" {
			first = k
		}
		prefixed[d.key(k)] = v
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if err := d.store.MSet(ctx, prefixed, d.ttl(ttl)); err != nil {
		return d.fail("mset", first, err)
	}
	return nil
}

// Increment adds delta to the counter at key. It returns 0 on failure.
func (d *DistributedCache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	n, err := d.store.IncrBy(ctx, d.key(key), delta)
	if err != nil {
		return 0, d.fail("incrby", key, err)
	}
	return n, nil
}

// Expire sets a TTL on key and reports whether the key existed.
func (d *DistributedCache) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	ok, err := d.store.Expire(ctx, d.key(key), ttl)
	if err != nil {
		return false, d.fail("expire", key, err)
	}
	return ok, nil
}

func (d *DistributedCache) fail(op, key string, err error) error {
	wrapped := rerrors.NewDistributedCacheError(op, key, err)
	d.logger.WithError(err).WithFields(map[string]interface{}{
		"operation": op,
		"key":       key,
	}).Warn("Distributed cache operation failed")
	return wrapped
}

func (d *DistributedCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

func (d *DistributedCache) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return d.defaultTTL
	}
	return ttl
}

func (d *DistributedCache) key(k string) string {
	return d.prefix + k
}

func (d *DistributedCache) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = d.key(k)
	}
	return out
}
