package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a previously acquired lock.
type UnlockFunc func(ctx context.Context) error

// TenantLocker serializes snapshot writes for a tenant across engine
// replicas. Single-process deployments can leave it nil.
type TenantLocker interface {
	// Lock acquires the lock for tenantID, blocking until acquired or the
	// context is done. The lock auto-expires after ttl as a crash guard.
	Lock(ctx context.Context, tenantID string, ttl time.Duration) (UnlockFunc, error)
}
