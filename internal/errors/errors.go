package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a specific error type for better error handling
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD_FAILED"
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Selection and discovery errors
	ErrCodeNoInstances     ErrorCode = "NO_INSTANCES_AVAILABLE"
	ErrCodeDiscoveryFailed ErrorCode = "DISCOVERY_FAILED"

	// Resilience signals
	ErrCodeCircuitBreakerOpen ErrorCode = "CIRCUIT_BREAKER_OPEN"
	ErrCodeOperationFailed    ErrorCode = "OPERATION_FAILED"
	ErrCodeOperationTimeout   ErrorCode = "OPERATION_TIMEOUT"

	// Recoverable collaborator failures
	ErrCodeDistributedCache ErrorCode = "DISTRIBUTED_CACHE_FAILED"
	ErrCodeMetricsFetch     ErrorCode = "METRICS_FETCH_FAILED"
	ErrCodeCacheMiss        ErrorCode = "CACHE_MISS"

	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// Sentinels for errors.Is comparisons. Matching is by code.
var (
	ErrNoInstances      = &ResilienceError{Code: ErrCodeNoInstances, Component: "load_balancer", Message: "no instances to select from"}
	ErrCircuitOpen      = &ResilienceError{Code: ErrCodeCircuitBreakerOpen, Component: "circuit_breaker", Message: "circuit breaker is open"}
	ErrCacheMiss        = &ResilienceError{Code: ErrCodeCacheMiss, Component: "cache", Message: "key not found"}
	ErrDiscoveryFailure = &ResilienceError{Code: ErrCodeDiscoveryFailed, Component: "registry", Message: "discovery failed"}
)

// ResilienceError represents a structured error with context
type ResilienceError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Component string                 `json:"component,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *ResilienceError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.Component, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *ResilienceError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error code
func (e *ResilienceError) Is(target error) bool {
	if t, ok := target.(*ResilienceError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithMetadata adds metadata to the error
func (e *ResilienceError) WithMetadata(key string, value interface{}) *ResilienceError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// IsRetryable returns true if the error might be resolved by retrying
func (e *ResilienceError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeOperationTimeout, ErrCodeDistributedCache, ErrCodeMetricsFetch, ErrCodeDiscoveryFailed:
		return true
	default:
		return false
	}
}

// NewError creates a new ResilienceError
func NewError(code ErrorCode, component, message string) *ResilienceError {
	return &ResilienceError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WrapError wraps an existing error with ResilienceError structure
func WrapError(err error, code ErrorCode, component, message string) *ResilienceError {
	if err == nil {
		return nil
	}

	return &ResilienceError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
		Details:   err.Error(),
	}
}

// NewNoInstancesError creates an error when a selection has no candidates
func NewNoInstancesError(serviceName string) *ResilienceError {
	return NewError(
		ErrCodeNoInstances,
		"load_balancer",
		fmt.Sprintf("No instances available for service %q", serviceName),
	).WithMetadata("service", serviceName)
}

// NewCircuitOpenError creates a circuit breaker error
func NewCircuitOpenError(serviceID string) *ResilienceError {
	return NewError(
		ErrCodeCircuitBreakerOpen,
		"circuit_breaker",
		fmt.Sprintf("Circuit breaker is open for service %s", serviceID),
	).WithMetadata("service_id", serviceID)
}

// NewDistributedCacheError wraps a failure of the remote cache tier
func NewDistributedCacheError(op, key string, cause error) *ResilienceError {
	return WrapError(cause, ErrCodeDistributedCache, "distributed_cache",
		fmt.Sprintf("%s failed", op)).
		WithMetadata("operation", op).
		WithMetadata("key", key)
}

// NewMetricsFetchError wraps a failure to read instance metrics
func NewMetricsFetchError(instanceID string, cause error) *ResilienceError {
	return WrapError(cause, ErrCodeMetricsFetch, "health_tracker",
		fmt.Sprintf("Failed to fetch metrics for instance %s", instanceID)).
		WithMetadata("instance_id", instanceID)
}

// NewDiscoveryError wraps a registry lookup failure
func NewDiscoveryError(serviceName string, cause error) *ResilienceError {
	return WrapError(cause, ErrCodeDiscoveryFailed, "registry",
		fmt.Sprintf("Failed to discover service %q", serviceName)).
		WithMetadata("service", serviceName)
}

// NewConfigError reports an invalid configuration value
func NewConfigError(field, reason string) *ResilienceError {
	return NewError(ErrCodeInvalidConfig, "config", fmt.Sprintf("%s: %s", field, reason)).
		WithMetadata("field", field)
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var rErr *ResilienceError
	if errors.As(err, &rErr) {
		return rErr.Code
	}
	return ErrCodeInternalError
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var rErr *ResilienceError
	if errors.As(err, &rErr) {
		return rErr.IsRetryable()
	}
	return false
}
