/*
Package domain contains the entities, configuration and collaborator
interfaces shared by the traffic-resilience components.

Entities:

ServiceInstance identifies a callable backend and is owned by the external
registry. InstanceHealth and the derived weight are owned by the health
tracker. CircuitStats is a snapshot of one service's breaker. CacheEntry and
CacheStats describe the local cache tier.

Collaborators:

The components never reach out to the outside world directly. They consume
small interfaces that the process wires up at start:

	ServiceRegistry  Discover(ctx, serviceName) ([]ServiceInstance, error)
	MetricsSource    GetInstanceMetrics(ctx, instanceID) (InstanceMetrics, error)
	MetricsRecorder  counters for breaker outcomes and cache behaviour
	KVStore          remote get/set/del/mget/mset/incrby/expire

Filters:

InstanceFilter narrows a candidate list before selection while keeping input
order, which the balancer relies on for its tie-break:

	canary := (&domain.TagFilter{Tags: map[string]string{"track": "canary"}}).Filter(instances)
*/
package domain
