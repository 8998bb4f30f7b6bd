package main

import (
	"os"
	"runtime"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/mir00r/traffic-resilience/internal/config"
)

const version = "1.0.0"

// startupFields describes the process and the resilience settings it runs
// with, logged once at startup.
func startupFields(cfg *config.Config) logrus.Fields {
	instances := 0
	for _, list := range cfg.Registry.Services {
		instances += len(list)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return logrus.Fields{
		"version":           version,
		"pid":               os.Getpid(),
		"hostname":          hostname,
		"go_version":        runtime.Version(),
		"registry":          registryKind(cfg),
		"static_services":   len(cfg.Registry.Services),
		"static_instances":  instances,
		"health_interval":   cfg.Health.Interval.String(),
		"failure_threshold": cfg.CircuitBreaker.FailureThreshold,
		"reset_timeout":     cfg.CircuitBreaker.ResetTimeout.String(),
		"redis_enabled":     cfg.Redis.Enabled,
		"write_pattern":     string(cfg.Cache.WritePattern),
	}
}

// getPort lets the PORT environment variable override the admin port
func getPort(defaultPort int) int {
	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 && port <= 65535 {
			return port
		}
	}
	return defaultPort
}
