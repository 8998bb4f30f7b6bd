// Package handler exposes the admin HTTP API over the resilience components.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mir00r/traffic-resilience/internal/cache"
	"github.com/mir00r/traffic-resilience/internal/domain"
	"github.com/mir00r/traffic-resilience/internal/middleware"
	"github.com/mir00r/traffic-resilience/internal/service"
	"github.com/mir00r/traffic-resilience/pkg/logger"
)

// AdminHandler provides administrative API endpoints
type AdminHandler struct {
	breaker   *service.CircuitBreaker
	tracker   *service.HealthTracker
	cache     *cache.MultiLevelCache
	metrics   *service.Metrics
	logger    *logger.Logger
	startTime time.Time
}

// NewAdminHandler creates a new admin handler. cache may be nil when caching
// is disabled.
func NewAdminHandler(
	breaker *service.CircuitBreaker,
	tracker *service.HealthTracker,
	cache *cache.MultiLevelCache,
	metrics *service.Metrics,
	logger *logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		breaker:   breaker,
		tracker:   tracker,
		cache:     cache,
		metrics:   metrics,
		logger:    logger.AdminLogger(),
		startTime: time.Now(),
	}
}

// CircuitResponse represents a circuit in API responses
type CircuitResponse struct {
	ServiceID string `json:"service_id"`
	domain.CircuitStats
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status       string    `json:"status"`
	Uptime       string    `json:"uptime"`
	OpenCircuits int       `json:"open_circuits"`
	Instances    int       `json:"instances"`
	Timestamp    time.Time `json:"timestamp"`
}

// ErrorResponse represents error responses
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      int       `json:"code"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Router builds the admin routes behind the logging, recovery and optional
// rate limiting middleware.
func (h *AdminHandler) Router(limiter *middleware.RateLimiter) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RecoveryMiddleware(h.logger))
	r.Use(middleware.LoggingMiddleware(h.logger))
	if limiter != nil {
		r.Use(limiter.Middleware())
	}

	r.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/circuits", h.ListCircuitsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/circuits/{id}", h.GetCircuitHandler).Methods(http.MethodGet)
	admin.HandleFunc("/circuits/{id}/reset", h.ResetCircuitHandler).Methods(http.MethodPost)
	admin.HandleFunc("/cache/stats", h.CacheStatsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/instances", h.ListInstancesHandler).Methods(http.MethodGet)
	admin.HandleFunc("/metrics", h.MetricsHandler).Methods(http.MethodGet)

	return r
}

// ListCircuitsHandler handles GET /admin/circuits
func (h *AdminHandler) ListCircuitsHandler(w http.ResponseWriter, r *http.Request) {
	response := make([]CircuitResponse, 0)
	for _, id := range h.breaker.ServiceIDs() {
		response = append(response, CircuitResponse{ServiceID: id, CircuitStats: h.breaker.Stats(id)})
	}
	h.writeJSON(w, http.StatusOK, response)
}

// GetCircuitHandler handles GET /admin/circuits/{id}
func (h *AdminHandler) GetCircuitHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.writeJSON(w, http.StatusOK, CircuitResponse{ServiceID: id, CircuitStats: h.breaker.Stats(id)})
}

// ResetCircuitHandler handles POST /admin/circuits/{id}/reset
func (h *AdminHandler) ResetCircuitHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.breaker.Reset(id)

	h.logger.WithFields(map[string]interface{}{
		"service_id": id,
		"request_id": middleware.RequestIDFrom(r.Context()),
	}).Info("Circuit reset via admin API")

	h.writeJSON(w, http.StatusOK, CircuitResponse{ServiceID: id, CircuitStats: h.breaker.Stats(id)})
}

// CacheStatsHandler handles GET /admin/cache/stats
func (h *AdminHandler) CacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeErrorResponse(w, r, "Cache is not enabled", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

// ListInstancesHandler handles GET /admin/instances
func (h *AdminHandler) ListInstancesHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.tracker.Snapshot())
}

// MetricsHandler handles GET /admin/metrics
func (h *AdminHandler) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}

// HealthHandler handles GET /health
func (h *AdminHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	open := 0
	for _, stats := range h.breaker.States() {
		if stats.State == domain.CircuitOpen {
			open++
		}
	}

	status := "healthy"
	if open > 0 {
		status = "degraded"
	}

	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:       status,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		OpenCircuits: open,
		Instances:    len(h.tracker.Snapshot()),
		Timestamp:    time.Now().UTC(),
	})
}

func (h *AdminHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

// writeErrorResponse writes a standardized error response
func (h *AdminHandler) writeErrorResponse(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.writeJSON(w, statusCode, ErrorResponse{
		Error:     message,
		Code:      statusCode,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.RequestIDFrom(r.Context()),
	})
}
