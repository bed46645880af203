// Package memory provides the in-memory snapshot store, the default for
// tests and single-process deployments.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/orbitel/journey/pkg/domain"
)

// Store implements ports.SnapshotStore in memory.
// Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore creates an empty in-memory snapshot store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Save persists the snapshot, overwriting any prior one for the tenant.
// Snapshots are serialized on write so later mutation of the argument
// cannot leak into the store.
func (s *Store) Save(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.TenantID == "" {
		return fmt.Errorf("save snapshot: tenant id is required")
	}
	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[snap.TenantID] = blob
	return nil
}

// Load retrieves the snapshot for a tenant.
func (s *Store) Load(ctx context.Context, tenantID string) (*domain.Snapshot, error) {
	s.mu.RLock()
	blob, ok := s.data[tenantID]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes the snapshot for a tenant.
func (s *Store) Delete(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, tenantID)
	return nil
}

// List returns tenant IDs with stored snapshots.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenants := make([]string, 0, len(s.data))
	for id := range s.data {
		tenants = append(tenants, id)
	}
	return tenants, nil
}
