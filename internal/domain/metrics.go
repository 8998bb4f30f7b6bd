package domain

// Counter names emitted through MetricsRecorder.IncrementCounter.
const (
	CounterCircuitSuccess  = "circuit_breaker_success_total"
	CounterCircuitFailure  = "circuit_breaker_failure_total"
	CounterCircuitFallback = "circuit_breaker_fallback_total"

	CounterBalancerDegraded = "load_balancer_degraded_total"
	CounterHealthFetchError = "health_metrics_fetch_failure_total"

	CounterCacheLocalHit        = "cache_local_hit_total"
	CounterCacheDistributedHit  = "cache_distributed_hit_total"
	CounterCacheMiss            = "cache_miss_total"
	CounterCacheDistributedFail = "cache_distributed_failure_total"
	CounterCacheWriteBehind     = "cache_write_behind_total"

	CounterGatewayRequests = "gateway_requests_total"
)
