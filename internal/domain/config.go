package domain

import "time"

// HealthConfig configures the instance health tracker
type HealthConfig struct {
	Interval       time.Duration `json:"interval" yaml:"interval"`
	MetricsTimeout time.Duration `json:"metrics_timeout" yaml:"metrics_timeout"`
	ResponseWeight float64       `json:"response_weight" yaml:"response_weight"`
	ErrorWeight    float64       `json:"error_weight" yaml:"error_weight"`
	UsageWeight    float64       `json:"usage_weight" yaml:"usage_weight"`
}

// DefaultHealthConfig returns the tracker defaults: 10s refresh, 0.4/0.3/0.3.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Interval:       10 * time.Second,
		MetricsTimeout: 2 * time.Second,
		ResponseWeight: 0.4,
		ErrorWeight:    0.3,
		UsageWeight:    0.3,
	}
}

// CircuitBreakerConfig defines configuration for the circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
	ResetTimeout     time.Duration `json:"reset_timeout" yaml:"reset_timeout"`
	HalfOpenRetries  int           `json:"half_open_retries" yaml:"half_open_retries"`
	OperationTimeout time.Duration `json:"operation_timeout" yaml:"operation_timeout"`
}

// DefaultCircuitBreakerConfig returns 5 failures, 60s reset, 3 half-open retries.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		HalfOpenRetries:  3,
		OperationTimeout: 30 * time.Second,
	}
}

// CacheConfig defines configuration for the multi-level cache
type CacheConfig struct {
	LocalMaxEntries  int           `json:"local_max_entries" yaml:"local_max_entries"`
	LocalTTL         time.Duration `json:"local_ttl" yaml:"local_ttl"`
	DistributedTTL   time.Duration `json:"distributed_ttl" yaml:"distributed_ttl"`
	WritePattern     WritePattern  `json:"write_pattern" yaml:"write_pattern"`
	KeyPrefix        string        `json:"key_prefix" yaml:"key_prefix"`
	OperationTimeout time.Duration `json:"operation_timeout" yaml:"operation_timeout"`
}

// DefaultCacheConfig returns the cache defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		LocalMaxEntries:  1000,
		LocalTTL:         5 * time.Minute,
		DistributedTTL:   time.Hour,
		WritePattern:     WriteThrough,
		KeyPrefix:        "tr:",
		OperationTimeout: 500 * time.Millisecond,
	}
}

// RedisConfig defines how to reach the distributed cache tier
type RedisConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Addr         string        `json:"addr" yaml:"addr"`
	Password     string        `json:"-" yaml:"password"`
	DB           int           `json:"db" yaml:"db"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// DefaultRedisConfig returns a local Redis with short timeouts.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      true,
		Addr:         "localhost:6379",
		PoolSize:     10,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}
}
