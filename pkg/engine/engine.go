// Package engine composes the per-tenant runtime: event bus, subsystem
// registry, handoff manager and orchestrator, plus optional snapshot
// persistence. Hosts own engine lifecycles through the Registry; nothing
// here is a process-wide singleton.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/orbitel/journey/internal/logging"
	"github.com/orbitel/journey/pkg/bus"
	"github.com/orbitel/journey/pkg/domain"
	"github.com/orbitel/journey/pkg/handoff"
	"github.com/orbitel/journey/pkg/orchestrator"
	"github.com/orbitel/journey/pkg/ports"
	"github.com/orbitel/journey/pkg/registry"
)

const (
	// DefaultSaveDebounce batches bursts of mutations into one snapshot write.
	DefaultSaveDebounce = 2 * time.Second

	// lockTTL bounds how long a crashed replica can hold a tenant lock.
	lockTTL = 30 * time.Second
)

// Engine is one tenant's isolated journey runtime.
type Engine struct {
	Tenant       string
	Bus          *bus.Bus
	Subsystems   *registry.Registry
	Handoffs     *handoff.Manager
	Orchestrator *orchestrator.Orchestrator

	store  ports.SnapshotStore
	locker ports.TenantLocker
	clock  ports.Clock
	logger *slog.Logger

	debounce time.Duration

	mu      sync.Mutex
	pending ports.Timer
	closed  bool
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	store        ports.SnapshotStore
	locker       ports.TenantLocker
	clock        ports.Clock
	logger       *slog.Logger
	cfg          orchestrator.Config
	historyLimit int
	debounce     time.Duration
}

// WithSnapshotStore enables snapshot persistence through store.
func WithSnapshotStore(store ports.SnapshotStore) Option {
	return func(o *options) { o.store = store }
}

// WithLocker guards snapshot writes with a tenant lock, for multi-replica
// deployments sharing one store.
func WithLocker(locker ports.TenantLocker) Option {
	return func(o *options) { o.locker = locker }
}

// WithClock substitutes the time source.
func WithClock(clock ports.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithLogger sets the structured logger shared by all components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithConfig sets the orchestrator configuration.
func WithConfig(cfg orchestrator.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithHistoryLimit bounds the event bus history.
func WithHistoryLimit(n int) Option {
	return func(o *options) { o.historyLimit = n }
}

// WithSaveDebounce sets the quiet period before a mutated engine snapshots.
func WithSaveDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// New assembles an engine for a tenant. Call Restore afterwards to rehydrate
// from a snapshot store, or use Registry.Get which does both.
func New(tenantID string, opts ...Option) *Engine {
	o := &options{
		clock:        ports.SystemClock{},
		logger:       logging.NewNop(),
		cfg:          orchestrator.Config{AutoProgress: true},
		historyLimit: bus.DefaultHistoryLimit,
		debounce:     DefaultSaveDebounce,
	}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger.With("tenant", tenantID)

	e := &Engine{
		Tenant:   tenantID,
		store:    o.store,
		locker:   o.locker,
		clock:    o.clock,
		logger:   logger,
		debounce: o.debounce,
	}

	e.Bus = bus.New(tenantID,
		bus.WithHistoryLimit(o.historyLimit),
		bus.WithLogger(logger),
		bus.WithClock(o.clock),
	)
	e.Subsystems = registry.New()
	e.Handoffs = handoff.NewManager(e.Bus, e.Subsystems,
		handoff.WithClock(o.clock),
		handoff.WithLogger(logger),
	)
	e.Orchestrator = orchestrator.New(e.Bus, e.Handoffs, o.cfg,
		orchestrator.WithClock(o.clock),
		orchestrator.WithLogger(logger),
		orchestrator.WithMutationHook(e.scheduleSave),
	)

	return e
}

// Restore rehydrates the engine from its snapshot store. A missing snapshot
// is not an error; the engine simply starts empty.
func (e *Engine) Restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	snap, err := e.store.Load(ctx, e.Tenant)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore tenant %s: %w", e.Tenant, err)
	}
	e.Orchestrator.ImportSnapshot(snap)
	e.logger.Info("engine restored", "journeys", len(snap.Journeys), "templates", len(snap.Templates))
	return nil
}

// Flush writes a snapshot immediately, cancelling any pending debounced save.
func (e *Engine) Flush(ctx context.Context) error {
	if e.store == nil {
		return nil
	}

	e.mu.Lock()
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
	e.mu.Unlock()

	return e.save(ctx)
}

// Close flushes pending state and stops future saves. The engine's maps stay
// readable; Close only concerns persistence.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
	e.mu.Unlock()

	if e.store == nil {
		return nil
	}
	return e.save(ctx)
}

// scheduleSave arms the debounce timer on the first mutation of a burst.
// Subsequent mutations within the window ride the same timer.
func (e *Engine) scheduleSave() {
	if e.store == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.pending != nil {
		return
	}
	e.pending = e.clock.AfterFunc(e.debounce, func() {
		e.mu.Lock()
		e.pending = nil
		closed := e.closed
		e.mu.Unlock()
		if closed {
			return
		}
		if err := e.save(context.Background()); err != nil {
			e.logger.Error("snapshot save failed", "err", err)
		}
	})
}

func (e *Engine) save(ctx context.Context) error {
	if e.locker != nil {
		unlock, err := e.locker.Lock(ctx, e.Tenant, lockTTL)
		if err != nil {
			return fmt.Errorf("lock tenant %s: %w", e.Tenant, err)
		}
		defer func() {
			if uerr := unlock(ctx); uerr != nil {
				e.logger.Warn("tenant unlock failed", "err", uerr)
			}
		}()
	}

	snap := e.Orchestrator.ExportSnapshot()
	if err := e.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("save tenant %s: %w", e.Tenant, err)
	}
	e.logger.Debug("snapshot saved", "journeys", len(snap.Journeys))
	return nil
}
