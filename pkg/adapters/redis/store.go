// Package redis provides a Redis-backed snapshot store so tenant state
// survives process restarts and can be shared across replicas.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/orbitel/journey/pkg/domain"
)

const defaultPrefix = "journey:snapshot:"

// Store implements ports.SnapshotStore on top of a Redis client.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides the key prefix snapshots are stored under.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithTTL expires snapshots after d. Zero (the default) keeps them forever.
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// NewStore wraps an existing Redis client. The caller owns the client's
// lifecycle; Close is not this store's job.
func NewStore(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(tenantID string) string {
	return s.prefix + tenantID
}

// Save persists the snapshot as a JSON blob under the tenant's key.
func (s *Store) Save(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.TenantID == "" {
		return fmt.Errorf("save snapshot: tenant id is required")
	}
	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(snap.TenantID), blob, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis save snapshot: %w", err)
	}
	return nil
}

// Load retrieves and decodes the snapshot for a tenant.
func (s *Store) Load(ctx context.Context, tenantID string) (*domain.Snapshot, error) {
	blob, err := s.client.Get(ctx, s.key(tenantID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis load snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes the snapshot for a tenant.
func (s *Store) Delete(ctx context.Context, tenantID string) error {
	if err := s.client.Del(ctx, s.key(tenantID)).Err(); err != nil {
		return fmt.Errorf("redis delete snapshot: %w", err)
	}
	return nil
}

// List scans for stored tenant IDs. SCAN is used instead of KEYS so a large
// shared Redis is never blocked.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var tenants []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		tenants = append(tenants, iter.Val()[len(s.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis list snapshots: %w", err)
	}
	return tenants, nil
}
