// Package discovery provides HTTP clients for the external collaborators the
// resilience components consume: a service registry and a per-instance
// metrics endpoint.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mir00r/traffic-resilience/internal/domain"
	rerrors "github.com/mir00r/traffic-resilience/internal/errors"
	"github.com/mir00r/traffic-resilience/pkg/logger"
)

const userAgent = "TrafficResilience/1.0"

// HTTPRegistry implements domain.ServiceRegistry against a registry that
// serves GET {endpoint}/services/{name}.
type HTTPRegistry struct {
	endpoint string
	client   *http.Client
	logger   *logger.Logger
}

// HTTPServiceResponse represents the expected HTTP response format
type HTTPServiceResponse struct {
	Service   string                   `json:"service"`
	Instances []domain.ServiceInstance `json:"instances"`
}

// NewHTTPRegistry creates a registry client for endpoint
func NewHTTPRegistry(endpoint string, timeout time.Duration, log *logger.Logger) (*HTTPRegistry, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("registry endpoint cannot be empty")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid registry endpoint %q: %w", endpoint, err)
	}

	return &HTTPRegistry{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   log.WithField("component", "http_registry"),
	}, nil
}

// Discover fetches the current instances of serviceName
func (h *HTTPRegistry) Discover(ctx context.Context, serviceName string) ([]domain.ServiceInstance, error) {
	target := h.endpoint + "/services/" + url.PathEscape(serviceName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, rerrors.NewDiscoveryError(serviceName, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return []domain.ServiceInstance{}, nil
	case resp.StatusCode != http.StatusOK:
		return nil, rerrors.NewDiscoveryError(serviceName,
			fmt.Errorf("registry responded with status %s", resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rerrors.NewDiscoveryError(serviceName, fmt.Errorf("failed to read response: %w", err))
	}

	var response HTTPServiceResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, rerrors.NewDiscoveryError(serviceName, fmt.Errorf("failed to parse instances: %w", err))
	}

	h.logger.WithFields(map[string]interface{}{
		"service":   serviceName,
		"instances": len(response.Instances),
	}).Debug("Discovered service instances")

	return response.Instances, nil
}
