// Package gateway composes discovery, load balancing, circuit breaking and
// caching into a single request path for downstream service calls.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mir00r/traffic-resilience/internal/cache"
	"github.com/mir00r/traffic-resilience/internal/domain"
	rerrors "github.com/mir00r/traffic-resilience/internal/errors"
	"github.com/mir00r/traffic-resilience/internal/service"
	"github.com/mir00r/traffic-resilience/pkg/logger"
)

// Request is a call routed to one instance of a downstream service.
type Request struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`
	// Tags restricts selection to instances carrying all of them.
	Tags map[string]string `json:"tags,omitempty"`
	// Cacheable responses are looked up in and stored to the cache.
	Cacheable bool          `json:"cacheable"`
	CacheTTL  time.Duration `json:"cache_ttl,omitempty"`
}

// Response is the outcome of a routed call.
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       []byte            `json:"body,omitempty"`
	InstanceID string            `json:"instance_id,omitempty"`
	Degraded   bool              `json:"degraded,omitempty"`
	FromCache  bool              `json:"-"`
}

// Downstream performs the actual call against a selected instance.
type Downstream interface {
	Call(ctx context.Context, instance domain.ServiceInstance, req Request) (Response, error)
}

// DownstreamFunc adapts a function to Downstream
type DownstreamFunc func(ctx context.Context, instance domain.ServiceInstance, req Request) (Response, error)

// Call implements Downstream
func (f DownstreamFunc) Call(ctx context.Context, instance domain.ServiceInstance, req Request) (Response, error) {
	return f(ctx, instance, req)
}

// InstanceObserver is notified of every discovered instance before selection
// and of every instance that no service lists any more.
type InstanceObserver interface {
	Observe(instance domain.ServiceInstance)
	Forget(instanceID string)
}

// Gateway routes requests to downstream services
type Gateway struct {
	registry   domain.ServiceRegistry
	tracker    *service.HealthTracker
	balancer   *service.SmartLoadBalancer
	breaker    *service.CircuitBreaker
	cache      *cache.MultiLevelCache
	downstream Downstream
	recorder   domain.MetricsRecorder
	observers  []InstanceObserver
	filters    []domain.InstanceFilter
	logger     *logger.Logger

	// known holds the instance ids of the last discovery of each service.
	mu    sync.Mutex
	known map[string]map[string]struct{}
}

// Option configures optional Gateway collaborators
type Option func(*Gateway)

// WithCache enables response caching for cacheable requests
func WithCache(c *cache.MultiLevelCache) Option {
	return func(g *Gateway) { g.cache = c }
}

// WithObservers registers instance observers
func WithObservers(observers ...InstanceObserver) Option {
	return func(g *Gateway) { g.observers = append(g.observers, observers...) }
}

// WithFilters narrows every discovered instance list before selection
func WithFilters(filters ...domain.InstanceFilter) Option {
	return func(g *Gateway) { g.filters = append(g.filters, filters...) }
}

// New creates a gateway. recorder may be nil.
func New(
	registry domain.ServiceRegistry,
	tracker *service.HealthTracker,
	balancer *service.SmartLoadBalancer,
	breaker *service.CircuitBreaker,
	downstream Downstream,
	recorder domain.MetricsRecorder,
	log *logger.Logger,
	opts ...Option,
) *Gateway {
	g := &Gateway{
		registry:   registry,
		tracker:    tracker,
		balancer:   balancer,
		breaker:    breaker,
		downstream: downstream,
		recorder:   recorder,
		logger:     log.GatewayLogger(),
		known:      make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RouteRequest discovers the instances of serviceName, selects one, and calls
// it under the service's circuit breaker. Cacheable requests are served from
// and stored to the cache when one is configured.
func (g *Gateway) RouteRequest(ctx context.Context, serviceName string, req Request) (Response, error) {
	start := time.Now()
	requestID := uuid.NewString()
	log := g.logger.RequestLogger(requestID, serviceName, req.Method, req.Path)

	if g.recorder != nil {
		g.recorder.IncrementCounter(domain.CounterGatewayRequests)
		defer func() {
			g.recorder.RecordLatency(serviceName, time.Since(start))
		}()
	}

	key := CacheKey(serviceName, req)
	if g.cacheable(req) {
		if resp, ok := cache.GetJSON[Response](ctx, g.cache, key); ok {
			resp.FromCache = true
			log.Debug("Served response from cache")
			return resp, nil
		}
	}

	instances, err := g.registry.Discover(ctx, serviceName)
	if err != nil {
		log.WithError(err).Warn("Service discovery failed")
		if rerrors.GetErrorCode(err) == rerrors.ErrCodeDiscoveryFailed {
			return Response{}, err
		}
		return Response{}, rerrors.NewDiscoveryError(serviceName, err)
	}

	g.syncInstances(serviceName, instances)

	filters := g.filters
	if len(req.Tags) > 0 {
		filters = append(filters[:len(filters):len(filters)], &domain.TagFilter{Tags: req.Tags})
	}
	for _, f := range filters {
		instances = f.Filter(instances)
	}

	instance, err := g.balancer.Select(instances)
	if err != nil {
		log.WithError(err).Warn("No instance available")
		return Response{}, rerrors.NewNoInstancesError(serviceName)
	}
	log = log.InstanceLogger(instance.ID, fmt.Sprintf("%s:%d", instance.Address, instance.Port))

	call := func(ctx context.Context) (Response, error) {
		resp, err := g.downstream.Call(ctx, instance, req)
		if err != nil {
			return Response{}, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return Response{}, fmt.Errorf("instance %s returned status %d", instance.ID, resp.StatusCode)
		}
		resp.InstanceID = instance.ID
		return resp, nil
	}

	resp, err := service.Execute(ctx, g.breaker, serviceName, call, degradedResponse)
	if err != nil {
		log.WithError(err).Warn("Request failed")
		return Response{}, err
	}

	if resp.Degraded {
		log.Debug("Served degraded response")
		return resp, nil
	}

	if g.cacheable(req) && resp.StatusCode < http.StatusMultipleChoices {
		opts := domain.SetOptions{LocalTTL: req.CacheTTL, DistributedTTL: req.CacheTTL}
		if err := cache.SetJSON(ctx, g.cache, key, resp, opts); err != nil {
			log.WithError(err).Warn("Failed to cache response")
		}
	}

	log.WithField("status_code", resp.StatusCode).Debug("Request routed")
	return resp, nil
}

func (g *Gateway) cacheable(req Request) bool {
	return g.cache != nil && req.Cacheable
}

// syncInstances starts tracking the discovered instances of serviceName and
// stops tracking the ones that vanished from it, unless another service still
// lists them.
func (g *Gateway) syncInstances(serviceName string, instances []domain.ServiceInstance) {
	g.mu.Lock()
	defer g.mu.Unlock()

	current := make(map[string]struct{}, len(instances))
	for _, inst := range instances {
		current[inst.ID] = struct{}{}
		for _, o := range g.observers {
			o.Observe(inst)
		}
		g.tracker.Register(inst.ID)
	}

	previous := g.known[serviceName]
	g.known[serviceName] = current

	for id := range previous {
		if _, ok := current[id]; ok || g.listedElsewhere(serviceName, id) {
			continue
		}
		g.tracker.Deregister(id)
		for _, o := range g.observers {
			o.Forget(id)
		}
		g.logger.WithFields(map[string]interface{}{
			"service":     serviceName,
			"instance_id": id,
		}).Info("Instance left discovery, stopped tracking")
	}
}

// listedElsewhere must be called with g.mu held.
func (g *Gateway) listedElsewhere(serviceName, id string) bool {
	for name, ids := range g.known {
		if name == serviceName {
			continue
		}
		if _, ok := ids[id]; ok {
			return true
		}
	}
	return false
}

// CacheKey builds the cache key of a routed request. Tag-restricted requests
// get their sorted tags appended so responses of differently tagged instances
// never share an entry.
func CacheKey(serviceName string, req Request) string {
	key := serviceName + ":" + req.Method + ":" + req.Path
	if len(req.Tags) == 0 {
		return key
	}

	pairs := make([]string, 0, len(req.Tags))
	for k, v := range req.Tags {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return key + "|" + strings.Join(pairs, ",")
}

func degradedResponse(_ context.Context, _ error) (Response, error) {
	return Response{StatusCode: http.StatusServiceUnavailable, Degraded: true}, nil
}
