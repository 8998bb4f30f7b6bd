package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mir00r/traffic-resilience/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements domain.KVStore on top of go-redis.
type RedisStore struct {
	client redis.UniversalClient
}

var _ domain.KVStore = (*RedisStore)(nil)

// NewRedisClient builds a go-redis client from configuration. The client
// connects lazily; use Ping to verify reachability.
func NewRedisClient(cfg domain.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

// NewRedisStore wraps a go-redis client
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the value of key, or nil when the key does not exist.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores value under key with a server-side TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Del removes keys
func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// MGet returns values in key order, nil for missing keys.
func (s *RedisStore) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	raw, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([][]byte, len(raw))
	for i, v := range raw {
		switch val := v.(type) {
		case nil:
		case string:
			out[i] = []byte(val)
		case []byte:
			out[i] = val
		default:
			return nil, fmt.Errorf("unexpected MGET value type %T for key %q", v, keys[i])
		}
	}
	return out, nil
}

// MSet writes all values with the same TTL in a single pipeline round trip.
func (s *RedisStore) MSet(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range values {
			pipe.Set(ctx, key, value, ttl)
		}
		return nil
	})
	return err
}

// IncrBy atomically adds delta to the integer at key
func (s *RedisStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return s.client.IncrBy(ctx, key, delta).Result()
}

// Expire sets a TTL on key and reports whether the key existed.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.Expire(ctx, key, ttl).Result()
}

// Ping checks connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
