package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mir00r/traffic-resilience/internal/domain"
	"github.com/mir00r/traffic-resilience/pkg/logger"
)

// HTTPMetricsSource implements domain.MetricsSource by polling each
// instance's metrics endpoint. Instances must be tracked before their
// metrics can be fetched.
type HTTPMetricsSource struct {
	path   string
	client *http.Client
	logger *logger.Logger

	mu        sync.RWMutex
	instances map[string]domain.ServiceInstance
}

// NewHTTPMetricsSource creates a metrics source reading path on every instance
func NewHTTPMetricsSource(path string, timeout time.Duration, log *logger.Logger) *HTTPMetricsSource {
	if path == "" {
		path = "/metrics"
	}
	return &HTTPMetricsSource{
		path: path,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				DisableCompression:  true,
				MaxIdleConnsPerHost: 2,
			},
		},
		logger:    log.WithField("component", "http_metrics_source"),
		instances: make(map[string]domain.ServiceInstance),
	}
}

// Observe records the address of an instance so its metrics can be polled.
func (s *HTTPMetricsSource) Observe(instance domain.ServiceInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[instance.ID] = instance
}

// Forget drops an instance
func (s *HTTPMetricsSource) Forget(instanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, instanceID)
}

// GetInstanceMetrics fetches the current metrics sample of an instance
func (s *HTTPMetricsSource) GetInstanceMetrics(ctx context.Context, instanceID string) (domain.InstanceMetrics, error) {
	s.mu.RLock()
	inst, ok := s.instances[instanceID]
	s.mu.RUnlock()
	if !ok {
		return domain.InstanceMetrics{}, fmt.Errorf("instance %s has no known address", instanceID)
	}

	target := fmt.Sprintf("http://%s:%d%s", inst.Address, inst.Port, s.path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return domain.InstanceMetrics{}, fmt.Errorf("failed to create metrics request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return domain.InstanceMetrics{}, fmt.Errorf("metrics request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.InstanceMetrics{}, fmt.Errorf("metrics request failed with status %d", resp.StatusCode)
	}

	var m domain.InstanceMetrics
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return domain.InstanceMetrics{}, fmt.Errorf("failed to decode metrics: %w", err)
	}

	s.logger.InstanceLogger(inst.ID, target).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Debug("Fetched instance metrics")

	return m, nil
}
