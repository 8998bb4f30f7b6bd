package domain

import (
	"context"
	"time"
)

// ServiceInstance identifies a callable backend of a named service. Instances
// are owned by the service registry and treated as read-only here.
type ServiceInstance struct {
	ID      string            `json:"id" yaml:"id"`
	Address string            `json:"address" yaml:"address"`
	Port    int               `json:"port" yaml:"port"`
	Tags    map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// InstanceMetrics is a raw metrics sample reported for an instance.
type InstanceMetrics struct {
	ResponseTimeMs float64 `json:"response_time_ms"`
	ErrorRate      float64 `json:"error_rate"`
	CPUUsage       float64 `json:"cpu_usage"`
	MemoryUsage    float64 `json:"memory_usage"`
}

// InstanceHealth is the last metrics sample accepted for an instance.
type InstanceHealth struct {
	ResponseTimeMs float64   `json:"response_time_ms"`
	ErrorRate      float64   `json:"error_rate"`
	CPUUsage       float64   `json:"cpu_usage"`
	MemoryUsage    float64   `json:"memory_usage"`
	LastCheckedAt  time.Time `json:"last_checked_at"`
}

// InstanceStatus pairs an instance's health with its current selection weight.
type InstanceStatus struct {
	InstanceID string         `json:"instance_id"`
	Health     InstanceHealth `json:"health"`
	Weight     float64        `json:"weight"`
}

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// CircuitClosed lets calls pass through
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls and serves the fallback
	CircuitOpen
	// CircuitHalfOpen lets a limited number of trial calls through
	CircuitHalfOpen
)

// String returns the string representation of CircuitState
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state by name in JSON and YAML output.
func (s CircuitState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CircuitStats is a snapshot of the per-service breaker counters.
type CircuitStats struct {
	Failures      int          `json:"failures"`
	Successes     int          `json:"successes"`
	LastFailureAt time.Time    `json:"last_failure_at"`
	LastSuccessAt time.Time    `json:"last_success_at"`
	State         CircuitState `json:"state"`
}

// CacheEntry is a value held in the local cache tier.
type CacheEntry struct {
	Value     []byte
	ExpiresAt time.Time
}

// Expired reports whether the entry is logically absent at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// CacheStats holds monotonic cache counters.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// WritePattern controls how a cache write reaches the distributed tier.
type WritePattern string

const (
	// WriteThrough writes both tiers and waits for both
	WriteThrough WritePattern = "write-through"
	// WriteBehind writes the local tier and propagates in the background
	WriteBehind WritePattern = "write-behind"
)

// Valid reports whether p is a known write pattern.
func (p WritePattern) Valid() bool {
	return p == WriteThrough || p == WriteBehind
}

// SetOptions controls a single multi-level cache write. Zero values fall back
// to the cache's configured defaults.
type SetOptions struct {
	LocalTTL       time.Duration
	DistributedTTL time.Duration
	WritePattern   WritePattern
}

// ServiceRegistry resolves a service name to its current instances.
type ServiceRegistry interface {
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
}

// MetricsSource reports raw metrics for an instance.
type MetricsSource interface {
	GetInstanceMetrics(ctx context.Context, instanceID string) (InstanceMetrics, error)
}

// MetricsRecorder receives counters emitted by the resilience components.
type MetricsRecorder interface {
	IncrementCounter(name string)
	RecordCircuitBreakerSuccess(serviceID string)
	RecordCircuitBreakerFailure(serviceID string)
	RecordLatency(serviceName string, d time.Duration)
}

// KVStore is the remote key/value protocol the distributed cache tier speaks.
// Get returns (nil, nil) when the key does not exist.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
	MSet(ctx context.Context, values map[string][]byte, ttl time.Duration) error
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
