package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/mir00r/traffic-resilience/internal/domain"
	"github.com/mir00r/traffic-resilience/pkg/logger"
)

const weightSumTolerance = 1e-6

// Config represents the main configuration structure
type Config struct {
	Logging        LoggingConfig               `yaml:"logging"`
	Health         domain.HealthConfig         `yaml:"health"`
	CircuitBreaker domain.CircuitBreakerConfig `yaml:"circuit_breaker"`
	Cache          domain.CacheConfig          `yaml:"cache"`
	Redis          domain.RedisConfig          `yaml:"redis"`
	Registry       RegistryConfig              `yaml:"registry"`
	Admin          AdminConfig                 `yaml:"admin"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// RegistryConfig describes where service instances come from. Static services
// are served from memory; an endpoint switches discovery to the HTTP registry.
type RegistryConfig struct {
	Services    map[string][]domain.ServiceInstance `yaml:"services"`
	Endpoint    string                              `yaml:"endpoint"`
	Timeout     time.Duration                       `yaml:"timeout"`
	MetricsPath string                              `yaml:"metrics_path"`
}

// AdminConfig contains admin API configuration
type AdminConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RateLimit    float64       `yaml:"rate_limit"`
	RateBurst    int           `yaml:"rate_burst"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Health:         domain.DefaultHealthConfig(),
		CircuitBreaker: domain.DefaultCircuitBreakerConfig(),
		Cache:          domain.DefaultCacheConfig(),
		Redis:          domain.DefaultRedisConfig(),
		Registry: RegistryConfig{
			Services:    map[string][]domain.ServiceInstance{},
			Timeout:     2 * time.Second,
			MetricsPath: "/metrics",
		},
		Admin: AdminConfig{
			Enabled:      true,
			Port:         8081,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			RateLimit:    50,
			RateBurst:    100,
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate validates the configuration for correctness
func (c *Config) Validate() error {
	h := c.Health
	for name, w := range map[string]float64{
		"response_weight": h.ResponseWeight,
		"error_weight":    h.ErrorWeight,
		"usage_weight":    h.UsageWeight,
	} {
		if w < 0 || w > 1 || math.IsNaN(w) {
			return fmt.Errorf("health.%s must be within [0, 1]: %v", name, w)
		}
	}
	if sum := h.ResponseWeight + h.ErrorWeight + h.UsageWeight; math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("health weights must sum to 1, got %v", sum)
	}
	if h.Interval <= 0 {
		return fmt.Errorf("health.interval must be positive")
	}
	if h.MetricsTimeout <= 0 {
		return fmt.Errorf("health.metrics_timeout must be positive")
	}

	cb := c.CircuitBreaker
	if cb.FailureThreshold <= 0 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be positive")
	}
	if cb.ResetTimeout <= 0 {
		return fmt.Errorf("circuit_breaker.reset_timeout must be positive")
	}
	if cb.HalfOpenRetries <= 0 {
		return fmt.Errorf("circuit_breaker.half_open_retries must be positive")
	}
	if cb.OperationTimeout < 0 {
		return fmt.Errorf("circuit_breaker.operation_timeout cannot be negative")
	}

	cc := c.Cache
	if cc.LocalMaxEntries <= 0 {
		return fmt.Errorf("cache.local_max_entries must be positive")
	}
	if cc.LocalTTL <= 0 || cc.DistributedTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if !cc.WritePattern.Valid() {
		return fmt.Errorf("unsupported cache write pattern: %s", cc.WritePattern)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr cannot be empty when redis is enabled")
	}

	for name, instances := range c.Registry.Services {
		seen := make(map[string]bool, len(instances))
		for i, inst := range instances {
			if inst.ID == "" {
				return fmt.Errorf("registry.services.%s[%d]: id cannot be empty", name, i)
			}
			if seen[inst.ID] {
				return fmt.Errorf("registry.services.%s[%d]: duplicate id '%s'", name, i, inst.ID)
			}
			seen[inst.ID] = true
			if inst.Port <= 0 || inst.Port > 65535 {
				return fmt.Errorf("registry.services.%s[%d]: invalid port %d", name, i, inst.Port)
			}
		}
	}

	if c.Admin.Enabled && (c.Admin.Port <= 0 || c.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", c.Admin.Port)
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	validOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output: %s", c.Logging.Output)
	}

	return nil
}

// ToLoggerConfig converts the logging section to a logger configuration
func (c *Config) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
		File:   c.Logging.File,
	}
}

// SaveToFile saves the configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filename, err)
	}

	return nil
}
