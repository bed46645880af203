package engine

import (
	"context"
	"errors"
	"sync"
)

// Factory builds an engine for a tenant. Hosts supply one to Registry so
// every tenant gets the same wiring (store, clock, config, subsystems).
type Factory func(tenantID string) *Engine

// Registry owns the engines of a multi-tenant host. Engines are created
// lazily on first use and restored from their snapshot store once.
type Registry struct {
	factory Factory

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewRegistry creates an empty registry around the given factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		engines: make(map[string]*Engine),
	}
}

// Get returns the tenant's engine, creating and restoring it on first call.
// Concurrent calls for the same tenant observe the same instance.
func (r *Registry) Get(ctx context.Context, tenantID string) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[tenantID]; ok {
		return e, nil
	}

	e := r.factory(tenantID)
	if err := e.Restore(ctx); err != nil {
		return nil, err
	}
	r.engines[tenantID] = e
	return e, nil
}

// Peek returns the tenant's engine if it is already loaded.
func (r *Registry) Peek(tenantID string) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[tenantID]
	return e, ok
}

// Tenants lists the currently loaded tenant IDs.
func (r *Registry) Tenants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	return ids
}

// Remove closes the tenant's engine and drops it from the registry. The next
// Get rebuilds it from the snapshot store.
func (r *Registry) Remove(ctx context.Context, tenantID string) error {
	r.mu.Lock()
	e, ok := r.engines[tenantID]
	delete(r.engines, tenantID)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return e.Close(ctx)
}

// Shutdown closes every loaded engine, flushing pending snapshots.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	engines := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	r.engines = make(map[string]*Engine)
	r.mu.Unlock()

	var errs []error
	for _, e := range engines {
		if err := e.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
