/*
Package service implements the in-process resilience components: the
instance health tracker, the health-weighted load balancer, the per-service
circuit breaker and the metrics recorder they report to.

Health Tracker:
HealthTracker turns raw instance metrics into a selection weight in [0,1].
Weights start at 1.0 on registration and are recomputed on every refresh
tick. A failed metrics fetch zeroes the instance's weight.

	tracker := service.NewHealthTracker(cfg.Health, metricsSource, metrics, log)
	tracker.Register("orders-1")
	if err := tracker.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer tracker.Stop()

Smart Load Balancer:
SmartLoadBalancer draws an instance at random with probability proportional
to its weight. Zero-weight instances are skipped; if every instance is at
zero it degrades to a uniform draw over the full list instead of failing.

	lb := service.NewSmartLoadBalancer(tracker, metrics, log)
	instance, err := lb.Select(instances)

Circuit Breaker:
CircuitBreaker keeps one CLOSED/OPEN/HALF_OPEN state machine per service id.
Execute is generic over the operation's result type and never returns the
operation's own error: failures and open circuits are answered by the
fallback.

	resp, err := service.Execute(ctx, breaker, "orders",
		func(ctx context.Context) (Response, error) { return call(ctx) },
		func(ctx context.Context, cause error) (Response, error) { return cached, nil },
	)

Thread Safety:
The weight table and circuit table are sync.Maps keyed by id. Weights are
read and written atomically; each circuit has its own mutex, so no lock is
shared across services.
*/
package service
