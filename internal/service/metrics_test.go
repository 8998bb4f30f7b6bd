package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/mir00r/traffic-resilience/internal/domain"
)

// TestMetricsCounters tests the in-memory counters
func TestMetricsCounters(t *testing.T) {
	t.Parallel()

	m := NewMetrics(nil, createTestLogger())

	m.IncrementCounter(domain.CounterCacheMiss)
	m.IncrementCounter(domain.CounterCacheMiss)
	m.RecordCircuitBreakerSuccess("orders")
	m.RecordCircuitBreakerFailure("orders")
	m.RecordCircuitBreakerFailure("orders")

	assert.Equal(t, int64(2), m.Counter(domain.CounterCacheMiss))
	assert.Equal(t, int64(0), m.Counter("never_incremented"))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.CircuitSuccesses["orders"])
	assert.Equal(t, int64(2), snap.CircuitFailures["orders"])
	assert.Equal(t, int64(2), snap.Counters[domain.CounterCircuitFailure])

	assert.Equal(t, []string{
		domain.CounterCacheMiss,
		domain.CounterCircuitFailure,
		domain.CounterCircuitSuccess,
	}, m.CounterNames())
}

// TestMetricsLatency tests latency aggregation per service
func TestMetricsLatency(t *testing.T) {
	t.Parallel()

	m := NewMetrics(nil, createTestLogger())
	m.RecordLatency("orders", 5*time.Millisecond)
	m.RecordLatency("orders", 50*time.Millisecond)
	m.RecordLatency("orders", 2*time.Second)

	stats := m.Snapshot().Latency["orders"]
	assert.Equal(t, int64(3), stats.Count)
	assert.Equal(t, 5.0, stats.MinMs)
	assert.Equal(t, 2000.0, stats.MaxMs)
	assert.Equal(t, int64(1), stats.Under10ms)
	assert.Equal(t, int64(1), stats.Under100ms)
	assert.Equal(t, int64(1), stats.Over1000ms)
	assert.InDelta(t, 685.0, stats.AverageMs(), 1e-9)
}

// TestMetricsExportsToOpenTelemetry tests that counters reach the meter provider
func TestMetricsExportsToOpenTelemetry(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m := NewMetrics(provider.Meter(MeterName), createTestLogger())
	m.RecordCircuitBreakerFailure("orders")
	m.RecordCircuitBreakerFailure("orders")
	m.RecordLatency("orders", 10*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		assert.Equal(t, MeterName, sm.Scope.Name)
		for _, md := range sm.Metrics {
			found[md.Name] = md.Data
		}
	}

	require.Contains(t, found, domain.CounterCircuitFailure)
	sum, ok := found[domain.CounterCircuitFailure].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)

	service, ok := sum.DataPoints[0].Attributes.Value("service_id")
	require.True(t, ok)
	assert.Equal(t, "orders", service.AsString())

	assert.Contains(t, found, "gateway_request_duration_ms")
}
