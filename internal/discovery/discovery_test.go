package discovery

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

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

// TestHTTPRegistryDiscover tests decoding of the registry response
func TestHTTPRegistryDiscover(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/services/orders":
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			_ = json.NewEncoder(w).Encode(HTTPServiceResponse{
				Service: "orders",
				Instances: []domain.ServiceInstance{
					{ID: "orders-1", Address: "10.0.0.1", Port: 8080, Tags: map[string]string{"zone": "a"}},
				},
			})
		case "/services/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	registry, err := NewHTTPRegistry(server.URL+"/", time.Second, createTestLogger())
	require.NoError(t, err)

	instances, err := registry.Discover(context.Background(), "orders")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "orders-1", instances[0].ID)
	assert.Equal(t, "a", instances[0].Tags["zone"])

	instances, err = registry.Discover(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, instances)

	_, err = registry.Discover(context.Background(), "broken")
	require.Error(t, err)
	assert.ErrorIs(t, err, rerrors.ErrDiscoveryFailure)
}

// TestHTTPRegistryValidation tests constructor validation
func TestHTTPRegistryValidation(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPRegistry("", time.Second, createTestLogger())
	assert.Error(t, err)
}

// TestHTTPMetricsSource tests polling an instance metrics endpoint
func TestHTTPMetricsSource(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metrics" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(domain.InstanceMetrics{
			ResponseTimeMs: 120,
			ErrorRate:      0.05,
			CPUUsage:       0.4,
			MemoryUsage:    0.6,
		})
	}))
	defer server.Close()

	host, portStr, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	source := NewHTTPMetricsSource("", time.Second, createTestLogger())

	_, err = source.GetInstanceMetrics(context.Background(), "i-1")
	assert.Error(t, err, "Untracked instances have no address")

	source.Observe(domain.ServiceInstance{ID: "i-1", Address: host, Port: port})
	m, err := source.GetInstanceMetrics(context.Background(), "i-1")
	require.NoError(t, err)
	assert.Equal(t, domain.InstanceMetrics{ResponseTimeMs: 120, ErrorRate: 0.05, CPUUsage: 0.4, MemoryUsage: 0.6}, m)

	source.Forget("i-1")
	_, err = source.GetInstanceMetrics(context.Background(), "i-1")
	assert.Error(t, err)
}

// TestHTTPMetricsSourceErrorStatus tests non-2xx responses
func TestHTTPMetricsSourceErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	host, portStr, _ := net.SplitHostPort(server.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	source := NewHTTPMetricsSource("/metrics", time.Second, createTestLogger())
	source.Observe(domain.ServiceInstance{ID: "i-1", Address: host, Port: port})

	_, err := source.GetInstanceMetrics(context.Background(), "i-1")
	assert.Error(t, err)
}
