package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitel/journey/pkg/adapters/redis"
	"github.com/orbitel/journey/pkg/domain"
	"github.com/orbitel/journey/pkg/ports"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunSnapshotStoreContract(t, redis.NewStore(client))
}

func TestRedisStore_TTLExpiration(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewStore(client, redis.WithTTL(time.Second))
	ctx := context.Background()

	snap := &domain.Snapshot{TenantID: "tenant-ttl", TakenAt: time.Now().UTC()}
	require.NoError(t, store.Save(ctx, snap))

	tenants, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, tenants, "tenant-ttl")

	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, "tenant-ttl")
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)

	tenants, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, tenants)
}

func TestRedisStore_CustomPrefix(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewStore(client, redis.WithPrefix("orbit:snap:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.Snapshot{TenantID: "acme"}))
	assert.True(t, mr.Exists("orbit:snap:acme"))

	tenants, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, tenants)
}

func TestLocker(t *testing.T) {
	_, client := newClient(t)
	locker := redis.NewLocker(client, "journey:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "tenant-a", time.Minute)
	require.NoError(t, err)

	// A second holder cannot acquire while the lock is held.
	shortCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(shortCtx, "tenant-a", time.Minute)
	assert.ErrorIs(t, err, redis.ErrLockAcquire)

	// A different tenant's lock is independent.
	unlockB, err := locker.Lock(ctx, "tenant-b", time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlockB(ctx))

	// After release the lock is free again.
	require.NoError(t, unlock(ctx))
	unlock2, err := locker.Lock(ctx, "tenant-a", time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))
}
