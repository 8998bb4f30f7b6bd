package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mir00r/traffic-resilience/internal/domain"
)

// InMemoryRegistry implements domain.ServiceRegistry using in-memory storage
type InMemoryRegistry struct {
	mu       sync.RWMutex
	services map[string]map[string]domain.ServiceInstance
}

// NewInMemoryRegistry creates an empty registry
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		services: make(map[string]map[string]domain.ServiceInstance),
	}
}

// Discover returns the instances of a service ordered by id. An unknown
// service yields an empty list, not an error.
func (r *InMemoryRegistry) Discover(ctx context.Context, serviceName string) ([]domain.ServiceInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	instances := make([]domain.ServiceInstance, 0, len(r.services[serviceName]))
	for _, inst := range r.services[serviceName] {
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].ID < instances[j].ID })
	return instances, nil
}

// Register adds or replaces an instance of a service
func (r *InMemoryRegistry) Register(serviceName string, instance domain.ServiceInstance) error {
	if serviceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if instance.ID == "" {
		return fmt.Errorf("instance ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.services[serviceName] == nil {
		r.services[serviceName] = make(map[string]domain.ServiceInstance)
	}
	r.services[serviceName][instance.ID] = instance
	return nil
}

// RegisterAll adds several instances of a service in a single operation
func (r *InMemoryRegistry) RegisterAll(serviceName string, instances []domain.ServiceInstance) error {
	for i, inst := range instances {
		if inst.ID == "" {
			return fmt.Errorf("instance at index %d has empty ID", i)
		}
	}
	for _, inst := range instances {
		if err := r.Register(serviceName, inst); err != nil {
			return err
		}
	}
	return nil
}

// Deregister removes an instance of a service
func (r *InMemoryRegistry) Deregister(serviceName, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[serviceName][instanceID]; !exists {
		return fmt.Errorf("instance '%s' of service '%s' not found", instanceID, serviceName)
	}
	delete(r.services[serviceName], instanceID)
	if len(r.services[serviceName]) == 0 {
		delete(r.services, serviceName)
	}
	return nil
}

// Services returns the names of all registered services, sorted
func (r *InMemoryRegistry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the total number of registered instances
func (r *InMemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, instances := range r.services {
		count += len(instances)
	}
	return count
}
