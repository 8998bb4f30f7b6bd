package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mir00r/traffic-resilience/internal/domain"
	"github.com/mir00r/traffic-resilience/internal/middleware"
	"github.com/mir00r/traffic-resilience/internal/service"
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

type zeroMetrics struct{}

func (zeroMetrics) GetInstanceMetrics(context.Context, string) (domain.InstanceMetrics, error) {
	return domain.InstanceMetrics{}, nil
}

func newTestAdmin(t *testing.T) (*AdminHandler, *service.CircuitBreaker, *service.HealthTracker) {
	t.Helper()

	log := createTestLogger()
	metrics := service.NewMetrics(nil, log)
	breaker := service.NewCircuitBreaker(domain.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		HalfOpenRetries:  1,
	}, metrics, log)
	tracker := service.NewHealthTracker(domain.DefaultHealthConfig(), zeroMetrics{}, metrics, log)

	return NewAdminHandler(breaker, tracker, nil, metrics, log), breaker, tracker
}

func openCircuit(breaker *service.CircuitBreaker, id string) {
	_, _ = service.Execute(context.Background(), breaker, id,
		func(context.Context) (int, error) { return 0, errors.New("down") },
		func(context.Context, error) (int, error) { return 0, nil })
}

// TestAdminCircuitEndpoints tests listing, inspecting and resetting circuits
func TestAdminCircuitEndpoints(t *testing.T) {
	t.Parallel()

	admin, breaker, _ := newTestAdmin(t)
	router := admin.Router(nil)
	openCircuit(breaker, "orders")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/admin/circuits", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var circuits []map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &circuits))
	require.Len(t, circuits, 1)
	assert.Equal(t, "orders", circuits[0]["service_id"])
	assert.Equal(t, "OPEN", circuits[0]["state"])

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/admin/circuits/orders", nil))
	assert.Contains(t, recorder.Body.String(), `"failures":1`)

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/admin/circuits/orders/reset", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"state":"CLOSED"`)
	assert.Equal(t, domain.CircuitClosed, breaker.GetState("orders"))

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/admin/circuits/orders/reset", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

// TestAdminHealthEndpoint tests degraded reporting with open circuits
func TestAdminHealthEndpoint(t *testing.T) {
	t.Parallel()

	admin, breaker, tracker := newTestAdmin(t)
	router := admin.Router(nil)
	tracker.Register("i-1")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	var health HealthResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 1, health.Instances)
	assert.NotEmpty(t, recorder.Header().Get("X-Request-ID"))

	openCircuit(breaker, "orders")
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, 1, health.OpenCircuits)
}

// TestAdminInstancesAndMetrics tests the tracker and metrics views
func TestAdminInstancesAndMetrics(t *testing.T) {
	t.Parallel()

	admin, breaker, tracker := newTestAdmin(t)
	router := admin.Router(nil)
	tracker.Register("i-1")
	openCircuit(breaker, "orders")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/admin/instances", nil))
	var instances []domain.InstanceStatus
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &instances))
	require.Len(t, instances, 1)
	assert.Equal(t, 1.0, instances[0].Weight)

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/admin/metrics", nil))
	var snap service.MetricsSnapshot
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.CircuitFailures["orders"])
}

// TestAdminCacheStatsDisabled tests the cache endpoint without a cache
func TestAdminCacheStatsDisabled(t *testing.T) {
	t.Parallel()

	admin, _, _ := newTestAdmin(t)
	recorder := httptest.NewRecorder()
	admin.Router(nil).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/admin/cache/stats", nil))

	assert.Equal(t, http.StatusNotFound, recorder.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, body.Code)
	assert.NotEmpty(t, body.RequestID)
}

// TestAdminRateLimited tests the optional rate limiter on admin routes
func TestAdminRateLimited(t *testing.T) {
	t.Parallel()

	admin, _, _ := newTestAdmin(t)
	router := admin.Router(middleware.NewRateLimiter(1, 2, createTestLogger()))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		router.ServeHTTP(recorder, req)
		codes = append(codes, recorder.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
