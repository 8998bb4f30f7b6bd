package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	rerrors "github.com/mir00r/traffic-resilience/internal/errors"
	"github.com/mir00r/traffic-resilience/internal/gateway"
	"github.com/mir00r/traffic-resilience/pkg/logger"
)

const maxRequestBody = 1 << 20

// GatewayHandler exposes Gateway.RouteRequest over HTTP at
// /route/{service}/{path}. GET requests are cacheable.
type GatewayHandler struct {
	gateway  *gateway.Gateway
	cacheTTL time.Duration
	logger   *logger.Logger
}

// NewGatewayHandler creates a gateway handler
func NewGatewayHandler(gw *gateway.Gateway, cacheTTL time.Duration, logger *logger.Logger) *GatewayHandler {
	return &GatewayHandler{
		gateway:  gw,
		cacheTTL: cacheTTL,
		logger:   logger.GatewayLogger(),
	}
}

// Register mounts the gateway routes on r
func (h *GatewayHandler) Register(r *mux.Router) {
	r.PathPrefix("/route/{service}").HandlerFunc(h.ServeHTTP)
}

// ServeHTTP routes the request to the named service
func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	serviceName := mux.Vars(r)["service"]
	path := strings.TrimPrefix(r.URL.Path, "/route/"+serviceName)
	if path == "" {
		path = "/"
	}
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	resp, err := h.gateway.RouteRequest(r.Context(), serviceName, gateway.Request{
		Method:    r.Method,
		Path:      path,
		Headers:   headers,
		Body:      body,
		Cacheable: r.Method == http.MethodGet,
		CacheTTL:  h.cacheTTL,
	})
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	if resp.InstanceID != "" {
		w.Header().Set("X-Instance-ID", resp.InstanceID)
	}
	if resp.FromCache {
		w.Header().Set("X-Cache", "HIT")
	}
	if resp.Degraded {
		w.Header().Set("X-Degraded", "true")
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		h.logger.WithError(err).Debug("Failed to write response body")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rerrors.ErrNoInstances), errors.Is(err, rerrors.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, rerrors.ErrDiscoveryFailure):
		return http.StatusBadGateway
	case rerrors.GetErrorCode(err) == rerrors.ErrCodeOperationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
