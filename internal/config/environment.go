package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mir00r/traffic-resilience/internal/domain"
	rerrors "github.com/mir00r/traffic-resilience/internal/errors"
)

// LoadConfig loads configuration with priority: env vars > config file > defaults
func LoadConfig() (*Config, error) {
	config := DefaultConfig()

	configFile := getEnv("CONFIG_FILE", "config.yaml")
	if _, err := os.Stat(configFile); err == nil {
		loaded, err := LoadFromFile(configFile)
		if err != nil {
			return nil, rerrors.WrapError(err, rerrors.ErrCodeConfigLoad, "config",
				fmt.Sprintf("failed to load %s", configFile))
		}
		config = loaded
	}

	if err := ApplyEnvironment(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, rerrors.WrapError(err, rerrors.ErrCodeInvalidConfig, "config", "invalid configuration")
	}

	return config, nil
}

// ApplyEnvironment overrides config with TR_* environment variables. A
// malformed value is an error rather than being silently ignored.
func ApplyEnvironment(config *Config) error {
	if level := getEnv("TR_LOG_LEVEL", ""); level != "" {
		config.Logging.Level = level
	}
	if format := getEnv("TR_LOG_FORMAT", ""); format != "" {
		config.Logging.Format = format
	}

	if addr := getEnv("TR_REDIS_ADDR", ""); addr != "" {
		config.Redis.Addr = addr
	}
	if password := getEnv("TR_REDIS_PASSWORD", ""); password != "" {
		config.Redis.Password = password
	}
	if enabled := getEnv("TR_REDIS_ENABLED", ""); enabled != "" {
		config.Redis.Enabled = strings.ToLower(enabled) == "true"
	}

	if endpoint := getEnv("TR_REGISTRY_ENDPOINT", ""); endpoint != "" {
		config.Registry.Endpoint = endpoint
	}

	var err error
	set := func(key string, apply func(string) error) {
		if err != nil {
			return
		}
		if v := getEnv(key, ""); v != "" {
			if applyErr := apply(v); applyErr != nil {
				err = rerrors.NewConfigError(key, applyErr.Error())
			}
		}
	}

	set("TR_CB_FAILURE_THRESHOLD", intSetter(&config.CircuitBreaker.FailureThreshold))
	set("TR_CB_HALF_OPEN_RETRIES", intSetter(&config.CircuitBreaker.HalfOpenRetries))
	set("TR_CB_RESET_TIMEOUT", durationSetter(&config.CircuitBreaker.ResetTimeout))
	set("TR_CB_OPERATION_TIMEOUT", durationSetter(&config.CircuitBreaker.OperationTimeout))
	set("TR_HEALTH_INTERVAL", durationSetter(&config.Health.Interval))
	set("TR_LOCAL_CACHE_SIZE", intSetter(&config.Cache.LocalMaxEntries))
	set("TR_LOCAL_TTL", durationSetter(&config.Cache.LocalTTL))
	set("TR_DISTRIBUTED_TTL", durationSetter(&config.Cache.DistributedTTL))
	set("TR_ADMIN_PORT", intSetter(&config.Admin.Port))
	set("TR_WRITE_PATTERN", func(v string) error {
		p := domain.WritePattern(strings.ToLower(v))
		if !p.Valid() {
			return fmt.Errorf("unknown write pattern %q", v)
		}
		config.Cache.WritePattern = p
		return nil
	})

	return err
}

func intSetter(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func durationSetter(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

// getEnv gets environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
