package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/mir00r/traffic-resilience/internal/cache"
	"github.com/mir00r/traffic-resilience/internal/config"
	"github.com/mir00r/traffic-resilience/internal/discovery"
	"github.com/mir00r/traffic-resilience/internal/domain"
	"github.com/mir00r/traffic-resilience/internal/gateway"
	"github.com/mir00r/traffic-resilience/internal/handler"
	"github.com/mir00r/traffic-resilience/internal/middleware"
	"github.com/mir00r/traffic-resilience/internal/repository"
	"github.com/mir00r/traffic-resilience/internal/server"
	"github.com/mir00r/traffic-resilience/internal/service"
	"github.com/mir00r/traffic-resilience/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

// app holds the wired components of the process
type app struct {
	metrics  *service.Metrics
	tracker  *service.HealthTracker
	breaker  *service.CircuitBreaker
	cache    *cache.MultiLevelCache
	redis    *cache.RedisStore
	gateway  *gateway.Gateway
	admin    *handler.AdminHandler
	gwRoutes *handler.GatewayHandler
}

func main() {
	if checkIfAdminMode() {
		runAdminProcess()
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.ToLoggerConfig())
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(startupFields(cfg)).Info("Starting traffic resilience gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize components")
	}

	if err := a.tracker.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start health tracker")
	}
	if a.cache != nil {
		go purgeExpired(ctx, a.cache.Local(), cfg.Cache.LocalTTL, log)
	}

	var srv *server.Server
	if cfg.Admin.Enabled {
		var limiter *middleware.RateLimiter
		if cfg.Admin.RateLimit > 0 {
			limiter = middleware.NewRateLimiter(cfg.Admin.RateLimit, cfg.Admin.RateBurst, log)
		}
		router := a.admin.Router(limiter)
		a.gwRoutes.Register(router)

		srv = server.New("admin", getPort(cfg.Admin.Port), router, server.Options{
			ReadTimeout:  cfg.Admin.ReadTimeout,
			WriteTimeout: cfg.Admin.WriteTimeout,
		}, log)

		go func() {
			if err := srv.Start(); err != nil {
				log.WithError(err).Fatal("Admin server failed")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}

	a.tracker.Stop()

	if a.cache != nil {
		if err := a.cache.Close(shutdownCtx); err != nil {
			log.WithError(err).Error("Pending cache writes were not flushed")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.WithError(err).Warn("Error closing redis client")
		}
	}

	log.Info("Traffic resilience gateway stopped gracefully")
}

// buildApp wires the resilience components from cfg
func buildApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	metrics := service.NewMetrics(otel.GetMeterProvider().Meter(service.MeterName), log)

	metricsSource := discovery.NewHTTPMetricsSource(cfg.Registry.MetricsPath, cfg.Health.MetricsTimeout, log)
	tracker := service.NewHealthTracker(cfg.Health, metricsSource, metrics, log)
	balancer := service.NewSmartLoadBalancer(tracker, metrics, log)
	breaker := service.NewCircuitBreaker(cfg.CircuitBreaker, metrics, log)

	registry, err := buildRegistry(cfg, log)
	if err != nil {
		return nil, err
	}
	for _, instances := range cfg.Registry.Services {
		for _, inst := range instances {
			metricsSource.Observe(inst)
			tracker.Register(inst.ID)
		}
	}

	a := &app{
		metrics: metrics,
		tracker: tracker,
		breaker: breaker,
	}

	var opts []gateway.Option
	opts = append(opts, gateway.WithObservers(metricsSource))
	if cfg.Redis.Enabled {
		store := cache.NewRedisStore(cache.NewRedisClient(cfg.Redis))
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
		if err := store.Ping(pingCtx); err != nil {
			// The distributed tier degrades to misses until Redis is reachable.
			log.WithError(err).WithField("addr", cfg.Redis.Addr).Warn("Redis is not reachable")
		}
		cancel()

		local := cache.NewLocalCache(cfg.Cache.LocalMaxEntries, cfg.Cache.LocalTTL)
		remote := cache.NewDistributedCache(store, cfg.Cache, log)
		a.redis = store
		a.cache = cache.NewMultiLevelCache(local, remote, cfg.Cache, metrics, log)
		opts = append(opts, gateway.WithCache(a.cache))
	}

	downstream := gateway.NewHTTPDownstream(cfg.CircuitBreaker.OperationTimeout)
	a.gateway = gateway.New(registry, tracker, balancer, breaker, downstream, metrics, log, opts...)
	a.admin = handler.NewAdminHandler(breaker, tracker, a.cache, metrics, log)
	a.gwRoutes = handler.NewGatewayHandler(a.gateway, cfg.Cache.LocalTTL, log)

	return a, nil
}

// buildRegistry picks the HTTP registry when an endpoint is configured and
// falls back to the static services otherwise.
func buildRegistry(cfg *config.Config, log *logger.Logger) (domain.ServiceRegistry, error) {
	if cfg.Registry.Endpoint != "" {
		return discovery.NewHTTPRegistry(cfg.Registry.Endpoint, cfg.Registry.Timeout, log)
	}

	registry := repository.NewInMemoryRegistry()
	for name, instances := range cfg.Registry.Services {
		if err := registry.RegisterAll(name, instances); err != nil {
			return nil, fmt.Errorf("failed to register service %s: %w", name, err)
		}
	}
	log.WithFields(map[string]interface{}{
		"services":  len(registry.Services()),
		"instances": registry.Count(),
	}).Info("Loaded static service registry")
	return registry, nil
}

func registryKind(cfg *config.Config) string {
	if cfg.Registry.Endpoint != "" {
		return "http"
	}
	return "static"
}

// purgeExpired drops expired local entries every interval so idle keys do not
// hold capacity until they are read again.
func purgeExpired(ctx context.Context, local *cache.LocalCache, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := local.DeleteExpired(); n > 0 {
				log.WithField("removed", n).Debug("Purged expired local cache entries")
			}
		}
	}
}
