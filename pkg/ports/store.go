package ports

import (
	"context"

	"github.com/orbitel/journey/pkg/domain"
)

// SnapshotStore persists tenant engine snapshots as opaque blobs.
// The engine treats the store as a write-through capability; it never
// assumes a particular storage technology.
type SnapshotStore interface {
	// Save persists the snapshot for its tenant, overwriting any prior one.
	Save(ctx context.Context, snap *domain.Snapshot) error

	// Load retrieves the snapshot for a tenant.
	// Returns domain.ErrSnapshotNotFound if none exists.
	Load(ctx context.Context, tenantID string) (*domain.Snapshot, error)

	// Delete removes the snapshot for a tenant.
	Delete(ctx context.Context, tenantID string) error

	// List returns the tenant IDs that currently have snapshots.
	List(ctx context.Context) ([]string, error)
}
