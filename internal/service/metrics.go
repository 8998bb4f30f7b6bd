package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mir00r/traffic-resilience/internal/domain"
	"github.com/mir00r/traffic-resilience/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is the instrumentation scope of every resilience instrument.
const MeterName = "github.com/mir00r/traffic-resilience"

// Metrics implements domain.MetricsRecorder. Every counter is kept in memory
// for the admin API and mirrored into OpenTelemetry instruments.
type Metrics struct {
	meter  metric.Meter
	logger *logger.Logger

	counters        sync.Map // name -> *int64
	breakerSuccess  sync.Map // service id -> *int64
	breakerFailure  sync.Map // service id -> *int64
	otelCounters    sync.Map // name -> metric.Int64Counter
	latencyHist     metric.Float64Histogram
	latencyMu       sync.Mutex
	latencyByTarget map[string]*LatencyStats
}

// LatencyStats holds the latency distribution for one service
type LatencyStats struct {
	Count       int64   `json:"count"`
	TotalMs     float64 `json:"total_ms"`
	MinMs       float64 `json:"min_ms"`
	MaxMs       float64 `json:"max_ms"`
	Under10ms   int64   `json:"under_10ms"`
	Under100ms  int64   `json:"under_100ms"`
	Under1000ms int64   `json:"under_1000ms"`
	Over1000ms  int64   `json:"over_1000ms"`
}

// AverageMs returns the mean latency in milliseconds
func (s LatencyStats) AverageMs() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.TotalMs / float64(s.Count)
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters         map[string]int64        `json:"counters"`
	CircuitSuccesses map[string]int64        `json:"circuit_successes"`
	CircuitFailures  map[string]int64        `json:"circuit_failures"`
	Latency          map[string]LatencyStats `json:"latency"`
}

// NewMetrics creates a metrics recorder. A nil meter falls back to a no-op
// OpenTelemetry meter so the in-memory counters still work.
func NewMetrics(meter metric.Meter, log *logger.Logger) *Metrics {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(MeterName)
	}

	m := &Metrics{
		meter:           meter,
		logger:          log.MetricsLogger(),
		latencyByTarget: make(map[string]*LatencyStats),
	}

	hist, err := meter.Float64Histogram("gateway_request_duration_ms",
		metric.WithDescription("Latency of routed downstream calls."),
		metric.WithUnit("ms"))
	if err != nil {
		m.logger.WithError(err).Warn("Failed to create latency histogram, using no-op")
		hist, _ = noop.NewMeterProvider().Meter(MeterName).Float64Histogram("gateway_request_duration_ms")
	}
	m.latencyHist = hist

	return m
}

// IncrementCounter increments a named counter
func (m *Metrics) IncrementCounter(name string) {
	m.add(name)
}

// RecordCircuitBreakerSuccess records a successful guarded call for a service
func (m *Metrics) RecordCircuitBreakerSuccess(serviceID string) {
	atomic.AddInt64(loadOrCreate(&m.breakerSuccess, serviceID), 1)
	m.add(domain.CounterCircuitSuccess, attribute.String("service_id", serviceID))
}

// RecordCircuitBreakerFailure records a failed guarded call for a service
func (m *Metrics) RecordCircuitBreakerFailure(serviceID string) {
	atomic.AddInt64(loadOrCreate(&m.breakerFailure, serviceID), 1)
	m.add(domain.CounterCircuitFailure, attribute.String("service_id", serviceID))
}

// RecordLatency records the duration of a routed call
func (m *Metrics) RecordLatency(serviceName string, d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	m.latencyHist.Record(context.Background(), ms,
		metric.WithAttributes(attribute.String("service", serviceName)))

	m.latencyMu.Lock()
	defer m.latencyMu.Unlock()

	stats, ok := m.latencyByTarget[serviceName]
	if !ok {
		stats = &LatencyStats{MinMs: ms, MaxMs: ms}
		m.latencyByTarget[serviceName] = stats
	}
	stats.Count++
	stats.TotalMs += ms
	if ms < stats.MinMs {
		stats.MinMs = ms
	}
	if ms > stats.MaxMs {
		stats.MaxMs = ms
	}
	switch {
	case ms < 10:
		stats.Under10ms++
	case ms < 100:
		stats.Under100ms++
	case ms < 1000:
		stats.Under1000ms++
	default:
		stats.Over1000ms++
	}
}

// Counter returns the current value of a named counter
func (m *Metrics) Counter(name string) int64 {
	if v, ok := m.counters.Load(name); ok {
		return atomic.LoadInt64(v.(*int64))
	}
	return 0
}

// Snapshot returns a copy of all counters
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:         collect(&m.counters),
		CircuitSuccesses: collect(&m.breakerSuccess),
		CircuitFailures:  collect(&m.breakerFailure),
		Latency:          make(map[string]LatencyStats),
	}

	m.latencyMu.Lock()
	for name, stats := range m.latencyByTarget {
		snap.Latency[name] = *stats
	}
	m.latencyMu.Unlock()

	return snap
}

// CounterNames returns the names of all counters seen so far, sorted
func (m *Metrics) CounterNames() []string {
	var names []string
	m.counters.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}

func (m *Metrics) add(name string, attrs ...attribute.KeyValue) {
	atomic.AddInt64(loadOrCreate(&m.counters, name), 1)

	counter, err := m.otelCounter(name)
	if err != nil {
		m.logger.WithError(err).WithField("counter", name).Debug("OpenTelemetry counter unavailable")
		return
	}
	counter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) otelCounter(name string) (metric.Int64Counter, error) {
	if c, ok := m.otelCounters.Load(name); ok {
		return c.(metric.Int64Counter), nil
	}
	c, err := m.meter.Int64Counter(name)
	if err != nil {
		return nil, err
	}
	actual, _ := m.otelCounters.LoadOrStore(name, c)
	return actual.(metric.Int64Counter), nil
}

func loadOrCreate(m *sync.Map, key string) *int64 {
	if v, ok := m.Load(key); ok {
		return v.(*int64)
	}
	v, _ := m.LoadOrStore(key, new(int64))
	return v.(*int64)
}

func collect(m *sync.Map) map[string]int64 {
	out := make(map[string]int64)
	m.Range(func(k, v any) bool {
		out[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	return out
}
