package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/mir00r/traffic-resilience/internal/cache"
	"github.com/mir00r/traffic-resilience/internal/config"
	"github.com/mir00r/traffic-resilience/internal/discovery"
	"github.com/mir00r/traffic-resilience/internal/service"
	"github.com/mir00r/traffic-resilience/pkg/logger"
)

// runHealthCheck fetches metrics of every static instance once and prints
// the resulting selection weight.
func runHealthCheck() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.ToLoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	source := discovery.NewHTTPMetricsSource(cfg.Registry.MetricsPath, cfg.Health.MetricsTimeout, log)
	tracker := service.NewHealthTracker(cfg.Health, source, service.NewMetrics(nil, log), log)
	for _, instances := range cfg.Registry.Services {
		for _, inst := range instances {
			source.Observe(inst)
			tracker.Register(inst.ID)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	tracker.Refresh(ctx)

	snapshot := tracker.Snapshot()
	fmt.Printf("Checked %d instances\n", len(snapshot))
	for _, status := range snapshot {
		fmt.Printf("  %s: weight=%.3f response=%.0fms errors=%.2f\n",
			status.InstanceID, status.Weight, status.Health.ResponseTimeMs, status.Health.ErrorRate)
	}
	return nil
}

// runCachePing checks the distributed cache tier is reachable
func runCachePing() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Redis.Enabled {
		fmt.Println("Redis is disabled")
		return nil
	}

	store := cache.NewRedisStore(cache.NewRedisClient(cfg.Redis))
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("redis %s is not reachable: %w", cfg.Redis.Addr, err)
	}
	fmt.Printf("Redis %s is reachable\n", cfg.Redis.Addr)
	return nil
}

// runConfigValidation validates the current configuration
func runConfigValidation() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	names := make([]string, 0, len(cfg.Registry.Services))
	for name := range cfg.Registry.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Configuration validation passed")
	fmt.Printf("Health interval: %s\n", cfg.Health.Interval)
	fmt.Printf("Circuit breaker: threshold=%d reset=%s half_open=%d\n",
		cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.ResetTimeout, cfg.CircuitBreaker.HalfOpenRetries)
	fmt.Printf("Cache: %s local=%d entries\n", cfg.Cache.WritePattern, cfg.Cache.LocalMaxEntries)
	fmt.Printf("Services: %v\n", names)
	return nil
}

// runAdminProcess handles admin process execution
func runAdminProcess() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: traffic-resilience -admin <command>")
		fmt.Println("Commands:")
		fmt.Println("  health-check    - Fetch instance metrics once and print weights")
		fmt.Println("  cache-ping      - Check the distributed cache is reachable")
		fmt.Println("  validate-config - Validate configuration")
		os.Exit(1)
	}

	command := os.Args[2]
	var err error

	switch command {
	case "health-check":
		err = runHealthCheck()
	case "cache-ping":
		err = runCachePing()
	case "validate-config", "validate":
		err = runConfigValidation()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command failed: %v\n", err)
		os.Exit(1)
	}
}

// checkIfAdminMode checks if running in admin mode
func checkIfAdminMode() bool {
	for _, arg := range os.Args {
		if arg == "-admin" {
			return true
		}
	}
	return false
}
