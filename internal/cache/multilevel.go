package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mir00r/traffic-resilience/internal/domain"
	"github.com/mir00r/traffic-resilience/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// MultiLevelCache reads local first, then remote, backfilling the local tier
// on a remote hit. Writes go to both tiers either synchronously
// (write-through) or with the remote write detached (write-behind).
//
// For any key written through this cache the local tier is never older than
// the remote tier. The reverse does not hold while a write-behind is pending.
type MultiLevelCache struct {
	local  *LocalCache
	remote *DistributedCache
	config domain.CacheConfig

	recorder domain.MetricsRecorder
	logger   *logger.Logger

	// mu guards closed and the pending write-behind count. drained is closed
	// when pending drops back to zero.
	mu      sync.Mutex
	closed  bool
	pending int
	drained chan struct{}

	localHits      atomic.Int64
	remoteHits     atomic.Int64
	misses         atomic.Int64
	remoteFailures atomic.Int64
}

// MultiLevelStats aggregates counters of both tiers
type MultiLevelStats struct {
	Local               domain.CacheStats `json:"local"`
	LocalEntries        int               `json:"local_entries"`
	LocalHits           int64             `json:"local_hits"`
	DistributedHits     int64             `json:"distributed_hits"`
	Misses              int64             `json:"misses"`
	DistributedFailures int64             `json:"distributed_failures"`
	PendingWrites       int64             `json:"pending_writes"`
}

// NewMultiLevelCache composes the two tiers. recorder may be nil.
func NewMultiLevelCache(local *LocalCache, remote *DistributedCache, config domain.CacheConfig, recorder domain.MetricsRecorder, log *logger.Logger) *MultiLevelCache {
	if config.WritePattern == "" {
		config.WritePattern = domain.WriteThrough
	}
	return &MultiLevelCache{
		local:    local,
		remote:   remote,
		config:   config,
		recorder: recorder,
		logger:   log.CacheLogger("multi_level"),
	}
}

// Get returns the value for key from the fastest tier holding it. A remote
// failure is reported as a miss.
func (m *MultiLevelCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := m.local.Get(key); ok {
		m.localHits.Add(1)
		m.count(domain.CounterCacheLocalHit)
		return value, true
	}

	value, found, err := m.remote.Get(ctx, key)
	if err != nil {
		m.remoteFailures.Add(1)
		m.count(domain.CounterCacheDistributedFail)
	}
	if !found {
		m.misses.Add(1)
		m.count(domain.CounterCacheMiss)
		return nil, false
	}

	// Read-repair. Add leaves a fresher local write in place.
	m.local.Add(key, value, m.config.LocalTTL)
	m.remoteHits.Add(1)
	m.count(domain.CounterCacheDistributedHit)
	return value, true
}

// Set stores value in both tiers according to opts. Only an unknown write
// pattern is an error; remote failures are logged by the remote tier.
func (m *MultiLevelCache) Set(ctx context.Context, key string, value []byte, opts domain.SetOptions) error {
	localTTL := opts.LocalTTL
	if localTTL <= 0 {
		localTTL = m.config.LocalTTL
	}
	remoteTTL := opts.DistributedTTL
	if remoteTTL <= 0 {
		remoteTTL = m.config.DistributedTTL
	}
	pattern := opts.WritePattern
	if pattern == "" {
		pattern = m.config.WritePattern
	}

	switch pattern {
	case domain.WriteThrough:
		m.writeThrough(ctx, key, value, localTTL, remoteTTL)
	case domain.WriteBehind:
		m.writeBehind(ctx, key, value, localTTL, remoteTTL)
	default:
		return fmt.Errorf("unknown write pattern %q", pattern)
	}
	return nil
}

func (m *MultiLevelCache) writeThrough(ctx context.Context, key string, value []byte, localTTL, remoteTTL time.Duration) {
	var g errgroup.Group
	g.Go(func() error {
		m.local.Set(key, value, localTTL)
		return nil
	})
	g.Go(func() error {
		if err := m.remote.Set(ctx, key, value, remoteTTL); err != nil {
			m.remoteFailures.Add(1)
			m.count(domain.CounterCacheDistributedFail)
		}
		return nil
	})
	_ = g.Wait()
}

func (m *MultiLevelCache) writeBehind(ctx context.Context, key string, value []byte, localTTL, remoteTTL time.Duration) {
	m.local.Set(key, value, localTTL)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		// No detached work after Close; finish the write inline.
		if err := m.remote.Set(ctx, key, value, remoteTTL); err != nil {
			m.remoteFailures.Add(1)
			m.count(domain.CounterCacheDistributedFail)
		}
		return
	}

	if m.pending == 0 {
		m.drained = make(chan struct{})
	}
	m.pending++
	m.mu.Unlock()

	m.count(domain.CounterCacheWriteBehind)
	payload := cloneBytes(value)
	bgCtx := context.WithoutCancel(ctx)

	go func() {
		defer m.finishBehind()

		if err := m.remote.Set(bgCtx, key, payload, remoteTTL); err != nil {
			m.remoteFailures.Add(1)
			m.count(domain.CounterCacheDistributedFail)
		}
	}()
}

// Del removes key from both tiers concurrently.
func (m *MultiLevelCache) Del(ctx context.Context, key string) {
	var g errgroup.Group
	g.Go(func() error {
		m.local.Del(key)
		return nil
	})
	g.Go(func() error {
		if err := m.remote.Del(ctx, key); err != nil {
			m.remoteFailures.Add(1)
			m.count(domain.CounterCacheDistributedFail)
		}
		return nil
	})
	_ = g.Wait()
}

func (m *MultiLevelCache) finishBehind() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending--
	if m.pending == 0 {
		close(m.drained)
	}
}

// Flush waits until no write-behind is pending or ctx is done.
func (m *MultiLevelCache) Flush(ctx context.Context) error {
	m.mu.Lock()
	if m.pending == 0 {
		m.mu.Unlock()
		return nil
	}
	drained := m.drained
	m.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d pending write-behind tasks: %w", m.pendingWrites(), ctx.Err())
	}
}

func (m *MultiLevelCache) pendingWrites() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(m.pending)
}

// Close stops scheduling detached writes and waits for the pending ones.
func (m *MultiLevelCache) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	if err := m.Flush(ctx); err != nil {
		m.logger.WithError(err).Warn("Closing cache with write-behind tasks still pending")
		return err
	}
	m.logger.Info("Multi-level cache closed")
	return nil
}

// Local exposes the local tier, mainly for administration.
func (m *MultiLevelCache) Local() *LocalCache {
	return m.local
}

// Stats returns a snapshot of cache counters
func (m *MultiLevelCache) Stats() MultiLevelStats {
	return MultiLevelStats{
		Local:               m.local.Stats(),
		LocalEntries:        m.local.Len(),
		LocalHits:           m.localHits.Load(),
		DistributedHits:     m.remoteHits.Load(),
		Misses:              m.misses.Load(),
		DistributedFailures: m.remoteFailures.Load(),
		PendingWrites:       m.pendingWrites(),
	}
}

func (m *MultiLevelCache) count(name string) {
	if m.recorder != nil {
		m.recorder.IncrementCounter(name)
	}
}
