package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger and carries a set of fields that are attached
// to every entry it writes.
type Logger struct {
	*logrus.Logger
	fields logrus.Fields
}

// Config holds logger configuration
type Config struct {
	Level  string
	Format string
	Output string
	File   string
}

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// New creates a new logger instance with the given configuration
func New(config Config) (*Logger, error) {
	base := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	base.SetLevel(level)

	switch config.Format {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	default:
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
		})
	}

	var output io.Writer
	switch config.Output {
	case "stderr":
		output = os.Stderr
	case "file":
		if config.File == "" {
			config.File = "traffic-resilience.log"
		}
		if err := os.MkdirAll(filepath.Dir(config.File), 0755); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, err
		}
		output = file
	default:
		output = os.Stdout
	}
	base.SetOutput(output)

	return &Logger{
		Logger: base,
		fields: make(logrus.Fields),
	}, nil
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	base.SetLevel(logrus.PanicLevel)
	return &Logger{Logger: base, fields: make(logrus.Fields)}
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(logrus.Fields{key: value})
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields logrus.Fields) *Logger {
	merged := make(logrus.Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	return &Logger{
		Logger: l.Logger,
		fields: merged,
	}
}

// WithError adds an error field to the logger context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// Fields returns a copy of the fields carried by this logger.
func (l *Logger) Fields() logrus.Fields {
	out := make(logrus.Fields, len(l.fields))
	for k, v := range l.fields {
		out[k] = v
	}
	return out
}

func (l *Logger) entry() *logrus.Entry {
	return l.Logger.WithFields(l.fields)
}

// Debug logs a debug message
func (l *Logger) Debug(args ...interface{}) { l.entry().Debug(args...) }

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) { l.entry().Debugf(format, args...) }

// Info logs an info message
func (l *Logger) Info(args ...interface{}) { l.entry().Info(args...) }

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) { l.entry().Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(args ...interface{}) { l.entry().Warn(args...) }

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) { l.entry().Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(args ...interface{}) { l.entry().Error(args...) }

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry().Errorf(format, args...) }

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(args ...interface{}) { l.entry().Fatal(args...) }

// Fatalf logs a formatted fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) { l.entry().Fatalf(format, args...) }

// RequestLogger creates a logger for a single routed request
func (l *Logger) RequestLogger(requestID, serviceName, method, path string) *Logger {
	return l.WithFields(logrus.Fields{
		"request_id": requestID,
		"service":    serviceName,
		"method":     method,
		"path":       path,
	})
}

// InstanceLogger creates a logger with service-instance specific fields
func (l *Logger) InstanceLogger(instanceID, address string) *Logger {
	return l.WithFields(logrus.Fields{
		"instance_id": instanceID,
		"address":     address,
	})
}

// HealthTrackerLogger creates a logger for the instance health tracker
func (l *Logger) HealthTrackerLogger() *Logger {
	return l.WithField("component", "health_tracker")
}

// LoadBalancerLogger creates a logger for the smart load balancer
func (l *Logger) LoadBalancerLogger() *Logger {
	return l.WithField("component", "load_balancer")
}

// CircuitBreakerLogger creates a logger for the circuit breaker
func (l *Logger) CircuitBreakerLogger() *Logger {
	return l.WithField("component", "circuit_breaker")
}

// CacheLogger creates a logger for a named cache tier
func (l *Logger) CacheLogger(tier string) *Logger {
	return l.WithFields(logrus.Fields{
		"component": "cache",
		"tier":      tier,
	})
}

// GatewayLogger creates a logger for the gateway orchestrator
func (l *Logger) GatewayLogger() *Logger {
	return l.WithField("component", "gateway")
}

// MetricsLogger creates a logger with metrics specific fields
func (l *Logger) MetricsLogger() *Logger {
	return l.WithField("component", "metrics")
}

// AdminLogger creates a logger for the admin API
func (l *Logger) AdminLogger() *Logger {
	return l.WithField("component", "admin_api")
}
