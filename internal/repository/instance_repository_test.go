package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mir00r/traffic-resilience/internal/domain"
)

// TestInMemoryRegistryDiscover tests registration and ordered discovery
func TestInMemoryRegistryDiscover(t *testing.T) {
	t.Parallel()

	registry := NewInMemoryRegistry()
	require.NoError(t, registry.RegisterAll("orders", []domain.ServiceInstance{
		{ID: "orders-2", Address: "10.0.0.2", Port: 8080},
		{ID: "orders-1", Address: "10.0.0.1", Port: 8080},
	}))
	require.NoError(t, registry.Register("billing", domain.ServiceInstance{ID: "billing-1", Address: "10.0.1.1", Port: 9090}))

	instances, err := registry.Discover(context.Background(), "orders")
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, "orders-1", instances[0].ID)
	assert.Equal(t, "orders-2", instances[1].ID)

	unknown, err := registry.Discover(context.Background(), "unknown")
	require.NoError(t, err, "Unknown services should not be an error")
	assert.Empty(t, unknown)

	assert.Equal(t, []string{"billing", "orders"}, registry.Services())
	assert.Equal(t, 3, registry.Count())
}

// TestInMemoryRegistryReplaceAndDeregister tests updates and removal
func TestInMemoryRegistryReplaceAndDeregister(t *testing.T) {
	t.Parallel()

	registry := NewInMemoryRegistry()
	require.NoError(t, registry.Register("orders", domain.ServiceInstance{ID: "orders-1", Port: 8080}))
	require.NoError(t, registry.Register("orders", domain.ServiceInstance{ID: "orders-1", Port: 9090}))

	instances, _ := registry.Discover(context.Background(), "orders")
	require.Len(t, instances, 1)
	assert.Equal(t, 9090, instances[0].Port, "Registering a known id should replace it")

	require.NoError(t, registry.Deregister("orders", "orders-1"))
	assert.Error(t, registry.Deregister("orders", "orders-1"))
	assert.Empty(t, registry.Services())
}

// TestInMemoryRegistryValidation tests input validation
func TestInMemoryRegistryValidation(t *testing.T) {
	t.Parallel()

	registry := NewInMemoryRegistry()
	assert.Error(t, registry.Register("", domain.ServiceInstance{ID: "x"}))
	assert.Error(t, registry.Register("orders", domain.ServiceInstance{}))
	assert.Error(t, registry.RegisterAll("orders", []domain.ServiceInstance{{ID: "a"}, {}}))
	assert.Equal(t, 0, registry.Count(), "A rejected batch should register nothing")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := registry.Discover(ctx, "orders")
	assert.ErrorIs(t, err, context.Canceled)
}
