package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesByCode(t *testing.T) {
	err := NewCircuitOpenError("orders")

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.NotErrorIs(t, err, ErrNoInstances)
	assert.ErrorIs(t, fmt.Errorf("routing: %w", err), ErrCircuitOpen)
	assert.Equal(t, "orders", err.Metadata["service_id"])
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, ErrCodeOperationFailed, "x", "y"))

	wrapped := WrapError(context.DeadlineExceeded, ErrCodeOperationTimeout, "circuit_breaker", "operation timed out")
	require.NotNil(t, wrapped)
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
	assert.Equal(t, context.DeadlineExceeded.Error(), wrapped.Details)
	assert.Contains(t, wrapped.Error(), "[OPERATION_TIMEOUT] circuit_breaker: operation timed out")
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeNoInstances, GetErrorCode(NewNoInstancesError("orders")))
	assert.Equal(t, ErrCodeDiscoveryFailed, GetErrorCode(fmt.Errorf("ctx: %w", NewDiscoveryError("orders", errors.New("dns")))))
	assert.Equal(t, ErrCodeInternalError, GetErrorCode(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{NewDistributedCacheError("get", "k", errors.New("conn refused")), true},
		{NewMetricsFetchError("i-1", errors.New("timeout")), true},
		{NewDiscoveryError("orders", errors.New("dns")), true},
		{NewCircuitOpenError("orders"), false},
		{NewConfigError("field", "bad"), false},
		{errors.New("plain"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryable(tt.err), tt.err.Error())
	}
}
