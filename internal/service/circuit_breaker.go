package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mir00r/traffic-resilience/internal/domain"
	rerrors "github.com/mir00r/traffic-resilience/internal/errors"
	"github.com/mir00r/traffic-resilience/pkg/logger"
)

// Operation is the guarded downstream call.
type Operation[T any] func(ctx context.Context) (T, error)

// Fallback produces the result served when the operation fails or the
// circuit is open. cause is the operation error or the open-circuit signal.
type Fallback[T any] func(ctx context.Context, cause error) (T, error)

// CircuitBreaker keeps one CLOSED/OPEN/HALF_OPEN state machine per service
// id. Circuits are created lazily and each is guarded by its own mutex, so
// calls for different services never contend.
type CircuitBreaker struct {
	config   domain.CircuitBreakerConfig
	recorder domain.MetricsRecorder
	logger   *logger.Logger
	now      func() time.Time

	circuits sync.Map // service id -> *circuit
}

type circuit struct {
	mu sync.Mutex

	state         domain.CircuitState
	failures      int
	successes     int
	lastFailureAt time.Time
	lastSuccessAt time.Time

	// generation changes on every transition; trials admitted under an older
	// generation do not touch inFlight.
	generation uint64
	inFlight   int
}

// admission describes how a call was let through.
type admission struct {
	trial      bool
	generation uint64
}

// NewCircuitBreaker creates a circuit breaker. recorder may be nil.
func NewCircuitBreaker(config domain.CircuitBreakerConfig, recorder domain.MetricsRecorder, log *logger.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		config:   config,
		recorder: recorder,
		logger:   log.CircuitBreakerLogger(),
		now:      time.Now,
	}
}

// Execute runs op through the circuit of serviceID. Any operation failure,
// timeout, panic or open circuit is answered by fallback; only an error from
// fallback itself is returned.
func Execute[T any](ctx context.Context, cb *CircuitBreaker, serviceID string, op Operation[T], fallback Fallback[T]) (T, error) {
	c := cb.circuitFor(serviceID)

	adm, ok := cb.admit(c, serviceID)
	if !ok {
		return invokeFallback(ctx, cb, serviceID, rerrors.NewCircuitOpenError(serviceID), fallback)
	}

	result, err := runGuarded(ctx, cb.config.OperationTimeout, op)
	if err != nil {
		cb.onFailure(c, serviceID, adm, err)
		return invokeFallback(ctx, cb, serviceID, err, fallback)
	}

	cb.onSuccess(c, serviceID, adm)
	return result, nil
}

// runGuarded runs op under the caller's context, adding timeout when the
// caller set no deadline. A call that outlives its context is reported as the
// context error even if op ignores cancellation.
func runGuarded[T any](ctx context.Context, timeout time.Duration, op Operation[T]) (T, error) {
	opCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out.err = fmt.Errorf("operation panicked: %v", r)
			}
			done <- out
		}()
		out.value, out.err = op(opCtx)
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-opCtx.Done():
		var zero T
		return zero, rerrors.WrapError(opCtx.Err(), rerrors.ErrCodeOperationTimeout,
			"circuit_breaker", "operation did not complete in time")
	}
}

func invokeFallback[T any](ctx context.Context, cb *CircuitBreaker, serviceID string, cause error, fallback Fallback[T]) (T, error) {
	if cb.recorder != nil {
		cb.recorder.IncrementCounter(domain.CounterCircuitFallback)
	}
	cb.logger.WithError(cause).WithField("service_id", serviceID).Debug("Serving fallback")

	if fallback == nil {
		var zero T
		return zero, cause
	}
	return fallback(ctx, cause)
}

func (cb *CircuitBreaker) circuitFor(serviceID string) *circuit {
	if v, ok := cb.circuits.Load(serviceID); ok {
		return v.(*circuit)
	}
	v, _ := cb.circuits.LoadOrStore(serviceID, &circuit{state: domain.CircuitClosed})
	return v.(*circuit)
}

// admit decides whether a call may reach the operation. An OPEN circuit whose
// reset timeout has elapsed moves to HALF_OPEN here, on the first call after
// the cool-down.
func (cb *CircuitBreaker) admit(c *circuit, serviceID string) (admission, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == domain.CircuitOpen {
		if cb.now().Sub(c.lastFailureAt) < cb.config.ResetTimeout {
			return admission{}, false
		}
		cb.transition(c, serviceID, domain.CircuitHalfOpen)
	}

	switch c.state {
	case domain.CircuitClosed:
		return admission{}, true
	case domain.CircuitHalfOpen:
		if c.inFlight+c.successes >= cb.config.HalfOpenRetries {
			return admission{}, false
		}
		c.inFlight++
		return admission{trial: true, generation: c.generation}, true
	default:
		return admission{}, false
	}
}

func (cb *CircuitBreaker) onSuccess(c *circuit, serviceID string, adm admission) {
	if cb.recorder != nil {
		cb.recorder.RecordCircuitBreakerSuccess(serviceID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastSuccessAt = cb.now()

	switch c.state {
	case domain.CircuitClosed:
		c.failures = 0
	case domain.CircuitHalfOpen:
		if !adm.trial || adm.generation != c.generation {
			return
		}
		c.inFlight--
		c.successes++
		if c.successes >= cb.config.HalfOpenRetries {
			cb.transition(c, serviceID, domain.CircuitClosed)
		}
	}
}

func (cb *CircuitBreaker) onFailure(c *circuit, serviceID string, adm admission, err error) {
	if cb.recorder != nil {
		cb.recorder.RecordCircuitBreakerFailure(serviceID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A call admitted before the circuit opened must not extend the open window.
	if c.state == domain.CircuitOpen {
		return
	}

	c.failures++
	c.lastFailureAt = cb.now()

	switch c.state {
	case domain.CircuitClosed:
		if c.failures >= cb.config.FailureThreshold {
			cb.logger.WithError(err).WithFields(map[string]interface{}{
				"service_id":        serviceID,
				"failures":          c.failures,
				"failure_threshold": cb.config.FailureThreshold,
			}).Warn("Circuit breaker opening due to failures")
			cb.transition(c, serviceID, domain.CircuitOpen)
		}
	case domain.CircuitHalfOpen:
		if adm.trial && adm.generation == c.generation {
			c.inFlight--
		}
		cb.logger.WithError(err).WithField("service_id", serviceID).
			Warn("Trial call failed, circuit breaker opening again")
		cb.transition(c, serviceID, domain.CircuitOpen)
	}
}

// transition must be called with c.mu held.
func (cb *CircuitBreaker) transition(c *circuit, serviceID string, to domain.CircuitState) {
	from := c.state
	c.state = to
	c.generation++
	c.inFlight = 0

	switch to {
	case domain.CircuitClosed:
		c.failures = 0
		c.successes = 0
	case domain.CircuitHalfOpen, domain.CircuitOpen:
		c.successes = 0
	}

	cb.logger.WithFields(map[string]interface{}{
		"service_id": serviceID,
		"from":       from.String(),
		"to":         to.String(),
	}).Info("Circuit breaker state changed")
}

// GetState returns the state of a service's circuit. Unknown ids are CLOSED.
func (cb *CircuitBreaker) GetState(serviceID string) domain.CircuitState {
	return cb.Stats(serviceID).State
}

// Stats returns a snapshot of a service's circuit counters.
func (cb *CircuitBreaker) Stats(serviceID string) domain.CircuitStats {
	v, ok := cb.circuits.Load(serviceID)
	if !ok {
		return domain.CircuitStats{State: domain.CircuitClosed}
	}
	return v.(*circuit).snapshot()
}

// States returns the snapshot of every known circuit, keyed by service id.
func (cb *CircuitBreaker) States() map[string]domain.CircuitStats {
	out := make(map[string]domain.CircuitStats)
	cb.circuits.Range(func(k, v any) bool {
		out[k.(string)] = v.(*circuit).snapshot()
		return true
	})
	return out
}

// ServiceIDs returns the ids of all known circuits, sorted
func (cb *CircuitBreaker) ServiceIDs() []string {
	var ids []string
	cb.circuits.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// Reset forgets a service's circuit; the next call starts CLOSED with zero counters.
func (cb *CircuitBreaker) Reset(serviceID string) {
	if _, loaded := cb.circuits.LoadAndDelete(serviceID); loaded {
		cb.logger.WithField("service_id", serviceID).Info("Circuit breaker reset")
	}
}

func (c *circuit) snapshot() domain.CircuitStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CircuitStats{
		Failures:      c.failures,
		Successes:     c.successes,
		LastFailureAt: c.lastFailureAt,
		LastSuccessAt: c.lastSuccessAt,
		State:         c.state,
	}
}
