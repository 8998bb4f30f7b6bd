package service

import (
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/mir00r/traffic-resilience/internal/domain"
	rerrors "github.com/mir00r/traffic-resilience/internal/errors"
	"github.com/mir00r/traffic-resilience/pkg/logger"
	"golang.org/x/time/rate"
)

// WeightProvider exposes the current selection weight of an instance.
// HealthTracker satisfies it.
type WeightProvider interface {
	WeightOf(instanceID string) float64
}

// SmartLoadBalancer picks instances at random, proportionally to their
// health weight. It keeps no per-call locks: weights are read atomically and
// all other state is local to the call.
type SmartLoadBalancer struct {
	weights  WeightProvider
	recorder domain.MetricsRecorder
	logger   *logger.Logger

	// random returns a value in [0,1). Replaced in tests.
	random func() float64

	degradedLog rate.Sometimes

	selections atomic.Int64
	degraded   atomic.Int64
}

// NewSmartLoadBalancer creates a balancer reading weights from weights. recorder may be nil.
func NewSmartLoadBalancer(weights WeightProvider, recorder domain.MetricsRecorder, log *logger.Logger) *SmartLoadBalancer {
	return &SmartLoadBalancer{
		weights:     weights,
		recorder:    recorder,
		logger:      log.LoadBalancerLogger(),
		random:      rand.Float64,
		degradedLog: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Select returns one instance from instances. Instances with a positive
// weight are chosen by weighted random draw; when none has a positive weight
// the choice falls back to uniform random over the whole list. Only an empty
// list is an error.
func (lb *SmartLoadBalancer) Select(instances []domain.ServiceInstance) (domain.ServiceInstance, error) {
	if len(instances) == 0 {
		return domain.ServiceInstance{}, rerrors.ErrNoInstances
	}
	lb.selections.Add(1)

	// Read each weight once so the filter and the walk agree even if a
	// refresh lands mid-selection.
	weights := make([]float64, len(instances))
	var total float64
	for i, inst := range instances {
		w := lb.weights.WeightOf(inst.ID)
		if w > 0 {
			weights[i] = w
			total += w
		}
	}

	if total <= 0 {
		return lb.selectDegraded(instances), nil
	}

	r := lb.random() * total
	var cumulative float64
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cumulative += w
		if cumulative > r {
			return instances[i], nil
		}
		last = i
	}

	// Only reachable through float rounding at the upper edge.
	return instances[last], nil
}

func (lb *SmartLoadBalancer) selectDegraded(instances []domain.ServiceInstance) domain.ServiceInstance {
	lb.degraded.Add(1)
	if lb.recorder != nil {
		lb.recorder.IncrementCounter(domain.CounterBalancerDegraded)
	}

	lb.degradedLog.Do(func() {
		lb.logger.WithField("candidates", len(instances)).
			Warn("All instances scored unhealthy, selecting uniformly at random")
	})

	idx := int(lb.random() * float64(len(instances)))
	if idx >= len(instances) {
		idx = len(instances) - 1
	}
	return instances[idx]
}

// GetStats returns balancer statistics
func (lb *SmartLoadBalancer) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"selections":          lb.selections.Load(),
		"degraded_selections": lb.degraded.Load(),
	}
}
