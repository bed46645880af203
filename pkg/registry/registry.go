// Package registry holds the target-subsystem dispatch table: the sole seam
// through which the engine reaches downstream systems (CRM, billing, field
// operations, support). Subsystems are registered at startup; in production
// their handlers bind to real RPC/HTTP calls.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/orbitel/journey/pkg/domain"
)

// HandlerFunc executes one subsystem action. It receives the handoff data
// and returns result data to merge back into the handoff.
type HandlerFunc func(ctx context.Context, data map[string]any) (map[string]any, error)

// ActionSpec declares one action a subsystem accepts.
type ActionSpec struct {
	// RequiredFields must be present in the handoff data before execution.
	RequiredFields []string
	Handler        HandlerFunc
}

// Subsystem declares a named downstream system and the actions it accepts.
type Subsystem struct {
	Name    string
	Actions map[string]ActionSpec
}

// Registry manages the available subsystems. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	subsystems map[string]Subsystem
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		subsystems: make(map[string]Subsystem),
	}
}

// Register adds a subsystem to the registry.
// If a subsystem with the same name exists, it is overwritten.
func (r *Registry) Register(s Subsystem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subsystems[s.Name] = s
}

// Lookup returns the subsystem declaration for a name.
func (r *Registry) Lookup(name string) (Subsystem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subsystems[name]
	return s, ok
}

// Names returns the registered subsystem names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.subsystems))
	for name := range r.subsystems {
		names = append(names, name)
	}
	return names
}

// RequiredFields returns the declared required fields for a subsystem
// action. An unknown subsystem yields domain.ErrSubsystemNotFound; an
// unknown action yields no requirements.
func (r *Registry) RequiredFields(subsystem, action string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.subsystems[subsystem]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSubsystemNotFound, subsystem)
	}
	return s.Actions[action].RequiredFields, nil
}

// Execute looks up a subsystem action and invokes its handler.
func (r *Registry) Execute(ctx context.Context, subsystem, action string, data map[string]any) (map[string]any, error) {
	r.mu.RLock()
	s, ok := r.subsystems[subsystem]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSubsystemNotFound, subsystem)
	}
	spec, ok := s.Actions[action]
	if !ok || spec.Handler == nil {
		return nil, fmt.Errorf("subsystem %s: unknown action %q", subsystem, action)
	}

	return spec.Handler(ctx, data)
}
