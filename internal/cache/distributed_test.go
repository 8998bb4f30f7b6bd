package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mir00r/traffic-resilience/internal/domain"
	rerrors "github.com/mir00r/traffic-resilience/internal/errors"
	"github.com/mir00r/traffic-resilience/pkg/logger"
)

func createTestLogger() *logger.Logger {
	testLogger, _ := logger.New(logger.Config{
		Level:  "error",
		Format: "text",
		Output: "stdout",
	})
	return testLogger
}

func testCacheConfig() domain.CacheConfig {
	cfg := domain.DefaultCacheConfig()
	cfg.OperationTimeout = time.Second
	return cfg
}

// newTestRedis starts an in-process Redis and returns a store connected to it
func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		DialTimeout: 200 * time.Millisecond,
		ReadTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisStore(client)
}

// TestDistributedCacheGetSet tests prefixed reads and writes with TTL
func TestDistributedCacheGetSet(t *testing.T) {
	t.Parallel()

	mr, store := newTestRedis(t)
	dc := NewDistributedCache(store, testCacheConfig(), createTestLogger())
	ctx := context.Background()

	_, found, err := dc.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found, "A missing key is a miss, not an error")

	require.NoError(t, dc.Set(ctx, "user:1", []byte(`{"id":1}`), time.Minute))

	value, found, err := dc.Get(ctx, "user:1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte(`{"id":1}`), value)

	raw, err := mr.Get("tr:user:1")
	require.NoError(t, err, "Keys should carry the configured prefix")
	assert.Equal(t, `{"id":1}`, raw)
	assert.Equal(t, time.Minute, mr.TTL("tr:user:1"))

	require.NoError(t, dc.Set(ctx, "default-ttl", []byte("v"), 0))
	assert.Equal(t, time.Hour, mr.TTL("tr:default-ttl"))

	mr.FastForward(2 * time.Minute)
	_, found, err = dc.Get(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, found, "Expired keys should not be served")
}

// TestDistributedCacheMulti tests batched reads and pipelined writes
func TestDistributedCacheMulti(t *testing.T) {
	t.Parallel()

	mr, store := newTestRedis(t)
	dc := NewDistributedCache(store, testCacheConfig(), createTestLogger())
	ctx := context.Background()

	require.NoError(t, dc.SetMulti(ctx, map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
		"c": []byte("3"),
	}, 30*time.Second))
	assert.Equal(t, 30*time.Second, mr.TTL("tr:b"))

	values, err := dc.GetMulti(ctx, []string{"a", "missing", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": []byte("1"), "c": []byte("3")}, values)

	single, err := dc.GetMulti(ctx, []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"b": []byte("2")}, single)

	require.NoError(t, dc.Del(ctx, "a", "b"))
	values, err = dc.GetMulti(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"c": []byte("3")}, values)
}

// TestDistributedCacheCounters tests Increment and Expire
func TestDistributedCacheCounters(t *testing.T) {
	t.Parallel()

	mr, store := newTestRedis(t)
	dc := NewDistributedCache(store, testCacheConfig(), createTestLogger())
	ctx := context.Background()

	n, err := dc.Increment(ctx, "hits", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = dc.Increment(ctx, "hits", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	ok, err := dc.Expire(ctx, "hits", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10*time.Second, mr.TTL("tr:hits"))

	ok, err = dc.Expire(ctx, "missing", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestDistributedCacheFailure tests that an unreachable store yields neutral
// results and typed errors
func TestDistributedCacheFailure(t *testing.T) {
	t.Parallel()

	mr, store := newTestRedis(t)
	dc := NewDistributedCache(store, testCacheConfig(), createTestLogger())
	ctx := context.Background()
	mr.Close()

	value, found, err := dc.Get(ctx, "k")
	assert.Nil(t, value)
	assert.False(t, found)
	require.Error(t, err)
	assert.Equal(t, rerrors.ErrCodeDistributedCache, rerrors.GetErrorCode(err))

	err = dc.Set(ctx, "k", []byte("v"), 0)
	assert.Equal(t, rerrors.ErrCodeDistributedCache, rerrors.GetErrorCode(err))

	values, err := dc.GetMulti(ctx, []string{"a", "b"})
	assert.Error(t, err)
	assert.Empty(t, values)

	n, err := dc.Increment(ctx, "n", 1)
	assert.Error(t, err)
	assert.Equal(t, int64(0), n)

	var rErr *rerrors.ResilienceError
	require.True(t, errors.As(err, &rErr))
	assert.True(t, rErr.IsRetryable())
}
