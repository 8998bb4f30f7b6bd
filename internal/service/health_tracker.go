package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mir00r/traffic-resilience/internal/domain"
	rerrors "github.com/mir00r/traffic-resilience/internal/errors"
	"github.com/mir00r/traffic-resilience/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentFetches bounds the metrics calls issued by one refresh cycle.
const maxConcurrentFetches = 8

// HealthTracker keeps a rolling selection weight for every registered
// instance. Weights are recomputed by Refresh, which the periodic loop started
// by Start calls on every tick. WeightOf never blocks on a refresh.
type HealthTracker struct {
	config   domain.HealthConfig
	source   domain.MetricsSource
	recorder domain.MetricsRecorder
	logger   *logger.Logger
	now      func() time.Time

	instances sync.Map // instance id -> *trackedInstance

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

type trackedInstance struct {
	weight atomic.Uint64 // math.Float64bits of the weight

	mu     sync.RWMutex
	health domain.InstanceHealth
}

func (t *trackedInstance) loadWeight() float64 {
	return math.Float64frombits(t.weight.Load())
}

func (t *trackedInstance) storeWeight(w float64) {
	t.weight.Store(math.Float64bits(w))
}

// NewHealthTracker creates a tracker pulling metrics from source. recorder may be nil.
func NewHealthTracker(config domain.HealthConfig, source domain.MetricsSource, recorder domain.MetricsRecorder, log *logger.Logger) *HealthTracker {
	return &HealthTracker{
		config:   config,
		source:   source,
		recorder: recorder,
		logger:   log.HealthTrackerLogger(),
		now:      time.Now,
	}
}

// Register starts tracking an instance with an optimistic weight of 1.0.
// Registering a known id is a no-op.
func (ht *HealthTracker) Register(instanceID string) {
	entry := &trackedInstance{}
	entry.storeWeight(1.0)
	if _, loaded := ht.instances.LoadOrStore(instanceID, entry); !loaded {
		ht.logger.WithField("instance_id", instanceID).Debug("Instance registered for health tracking")
	}
}

// Deregister drops all state for an instance. Unknown ids are ignored.
func (ht *HealthTracker) Deregister(instanceID string) {
	if _, loaded := ht.instances.LoadAndDelete(instanceID); loaded {
		ht.logger.WithField("instance_id", instanceID).Debug("Instance deregistered from health tracking")
	}
}

// WeightOf returns the last computed weight, or 0 for unknown ids.
func (ht *HealthTracker) WeightOf(instanceID string) float64 {
	v, ok := ht.instances.Load(instanceID)
	if !ok {
		return 0
	}
	return v.(*trackedInstance).loadWeight()
}

// Health returns the last accepted metrics sample for an instance.
func (ht *HealthTracker) Health(instanceID string) (domain.InstanceHealth, bool) {
	v, ok := ht.instances.Load(instanceID)
	if !ok {
		return domain.InstanceHealth{}, false
	}
	entry := v.(*trackedInstance)
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.health, true
}

// Snapshot returns health and weight of every tracked instance, sorted by id.
func (ht *HealthTracker) Snapshot() []domain.InstanceStatus {
	var out []domain.InstanceStatus
	ht.instances.Range(func(k, v any) bool {
		entry := v.(*trackedInstance)
		entry.mu.RLock()
		health := entry.health
		entry.mu.RUnlock()
		out = append(out, domain.InstanceStatus{
			InstanceID: k.(string),
			Health:     health,
			Weight:     entry.loadWeight(),
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out
}

// Refresh pulls metrics for every registered instance and recomputes its
// weight. A failed fetch zeroes that instance's weight and is logged; it is
// never returned to the caller.
func (ht *HealthTracker) Refresh(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)

	ht.instances.Range(func(k, v any) bool {
		id := k.(string)
		entry := v.(*trackedInstance)
		g.Go(func() error {
			ht.refreshOne(ctx, id, entry)
			return nil
		})
		return true
	})

	_ = g.Wait()
}

func (ht *HealthTracker) refreshOne(ctx context.Context, id string, entry *trackedInstance) {
	fetchCtx := ctx
	if ht.config.MetricsTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, ht.config.MetricsTimeout)
		defer cancel()
	}

	m, err := ht.source.GetInstanceMetrics(fetchCtx, id)
	if err != nil {
		entry.storeWeight(0)
		if ht.recorder != nil {
			ht.recorder.IncrementCounter(domain.CounterHealthFetchError)
		}
		ht.logger.WithError(rerrors.NewMetricsFetchError(id, err)).
			WithField("instance_id", id).
			Warn("Metrics fetch failed, instance marked unhealthy")
		return
	}

	weight := ComputeWeight(ht.config, m)

	entry.mu.Lock()
	entry.health = domain.InstanceHealth{
		ResponseTimeMs: m.ResponseTimeMs,
		ErrorRate:      m.ErrorRate,
		CPUUsage:       m.CPUUsage,
		MemoryUsage:    m.MemoryUsage,
		LastCheckedAt:  ht.now(),
	}
	entry.mu.Unlock()
	entry.storeWeight(weight)

	ht.logger.WithField("instance_id", id).
		WithField("weight", weight).
		Debug("Instance weight refreshed")
}

// ComputeWeight maps a metrics sample to a selection weight in [0,1]:
//
//	wR*(1-min(resp/1000,1)) + wE*(1-errorRate) + wU*(1-(cpu+mem)/2)
func ComputeWeight(cfg domain.HealthConfig, m domain.InstanceMetrics) float64 {
	latency := 1 - math.Min(m.ResponseTimeMs/1000, 1)
	errorsTerm := 1 - m.ErrorRate
	usage := 1 - (m.CPUUsage+m.MemoryUsage)/2

	return clamp01(cfg.ResponseWeight*latency + cfg.ErrorWeight*errorsTerm + cfg.UsageWeight*usage)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Start runs Refresh once and then on every configured interval until ctx is
// cancelled or Stop is called.
func (ht *HealthTracker) Start(ctx context.Context) error {
	if ht.config.Interval <= 0 {
		return fmt.Errorf("health tracker interval must be positive, got %v", ht.config.Interval)
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()

	if ht.running {
		return fmt.Errorf("health tracker is already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	ht.cancel = cancel
	ht.done = make(chan struct{})
	ht.running = true

	ht.logger.Infof("Starting health tracker with interval %v", ht.config.Interval)
	go ht.loop(loopCtx, ht.done)

	return nil
}

// Stop cancels the refresh loop and waits for it to exit.
func (ht *HealthTracker) Stop() {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	if !ht.running {
		return
	}

	ht.cancel()
	<-ht.done
	ht.running = false
	ht.logger.Info("Health tracker stopped")
}

// IsRunning returns true while the refresh loop is active
func (ht *HealthTracker) IsRunning() bool {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	return ht.running
}

func (ht *HealthTracker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(ht.config.Interval)
	defer ticker.Stop()

	ht.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			ht.logger.Debug("Health tracker loop stopped")
			return
		case <-ticker.C:
			ht.Refresh(ctx)
		}
	}
}
