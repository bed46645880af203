package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/orbitel/journey/pkg/ports"
)

var (
	// ErrLockAcquire is returned when the lock cannot be acquired.
	ErrLockAcquire = errors.New("failed to acquire tenant lock")
)

// Locker implements ports.TenantLocker using Redis SET NX PX, so that only
// one engine replica at a time persists a given tenant's snapshot.
type Locker struct {
	client *backend.Client
	prefix string
}

// NewLocker creates a Redis-backed tenant locker.
func NewLocker(client *backend.Client, prefix string) *Locker {
	return &Locker{
		client: client,
		prefix: prefix,
	}
}

// Lock acquires the lock for a tenant, polling until the context expires.
// The returned unlock function releases the lock only if this holder still
// owns it, checked atomically with a Lua script.
func (l *Locker) Lock(ctx context.Context, tenantID string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + tenantID
	val := uuid.NewString()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		success, err := l.client.SetNX(ctx, lockKey, val, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis error acquiring lock: %w", err)
		}
		if success {
			return func(ctx context.Context) error {
				script := `
					if redis.call("get", KEYS[1]) == ARGV[1] then
						return redis.call("del", KEYS[1])
					else
						return 0
					end
				`
				return l.client.Eval(ctx, script, []string{lockKey}, val).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockAcquire, ctx.Err())
		case <-ticker.C:
		}
	}
}
