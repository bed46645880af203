// Package handoff mediates and tracks delegated work to named external
// subsystems, enforcing data-contract validation and timeout bounds.
package handoff

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orbitel/journey/internal/logging"
	"github.com/orbitel/journey/pkg/bus"
	"github.com/orbitel/journey/pkg/domain"
	"github.com/orbitel/journey/pkg/ports"
	"github.com/orbitel/journey/pkg/registry"
)

// DefaultTimeout bounds how long a handoff may stay pending.
const DefaultTimeout = 5 * time.Minute

// TimeoutError is the fixed reason recorded on a timed-out handoff.
const TimeoutError = "handoff timed out"

// Spec describes a handoff to create.
type Spec struct {
	JourneyID string
	From      string
	To        string
	StepID    string
	Action    string
	Kind      domain.HandoffKind
	Data      map[string]any
	Assignee  string
}

// Manager creates, validates, executes and tracks handoffs.
//
// Records are retained after reaching a terminal status so that failures stay
// auditable and retryable; the "active set" exposed by Active is the subset
// that is still pending or in progress.
type Manager struct {
	bus      *bus.Bus
	registry *registry.Registry
	clock    ports.Clock
	timeout  time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	handoffs map[string]*domain.HandoffRecord
	timers   map[string]ports.Timer
}

// Option configures the Manager.
type Option func(*Manager)

// WithTimeout overrides the pending-handoff timeout window.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithClock injects a clock for timestamps and timeout timers.
func WithClock(c ports.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithLogger configures a structured logger for the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a handoff manager bound to an event bus and a
// subsystem dispatch table. It subscribes to qualifying domain events to
// auto-create handoffs (see bindEvents).
func NewManager(b *bus.Bus, reg *registry.Registry, opts ...Option) *Manager {
	m := &Manager{
		bus:      b,
		registry: reg,
		clock:    ports.SystemClock{},
		timeout:  DefaultTimeout,
		logger:   logging.NewNop(),
		handoffs: make(map[string]*domain.HandoffRecord),
		timers:   make(map[string]ports.Timer),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.bindEvents()
	return m
}

// Create validates and stores a new handoff. Unknown target subsystems fail
// synchronously with no state mutation. Missing required fields persist the
// record directly in the failed status, with the missing fields listed, and
// no execution dispatch ever occurs. Valid handoffs start their timeout
// timer, publish handoff:started, and, when the kind is automatic,
// execute immediately.
func (m *Manager) Create(ctx context.Context, spec Spec) (*domain.HandoffRecord, error) {
	if _, ok := m.registry.Lookup(spec.To); !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSubsystemNotFound, spec.To)
	}
	required, err := m.registry.RequiredFields(spec.To, spec.Action)
	if err != nil {
		return nil, err
	}

	data := spec.Data
	if data == nil {
		data = make(map[string]any)
	}

	h := &domain.HandoffRecord{
		ID:             uuid.NewString(),
		JourneyID:      spec.JourneyID,
		From:           spec.From,
		To:             spec.To,
		StepID:         spec.StepID,
		Action:         spec.Action,
		Status:         domain.HandoffPending,
		Kind:           spec.Kind,
		Data:           data,
		RequiredFields: required,
		Assignee:       spec.Assignee,
		StartedAt:      m.clock.Now(),
	}

	if missing := h.MissingFields(); len(missing) > 0 {
		h.Status = domain.HandoffFailed
		h.Result = domain.ResultFailure
		h.ErrorMessage = "validation failed"
		for _, f := range missing {
			h.ValidationErrors = append(h.ValidationErrors, "missing required field: "+f)
		}
		now := m.clock.Now()
		h.CompletedAt = &now

		m.mu.Lock()
		m.handoffs[h.ID] = h
		m.mu.Unlock()

		m.logger.Warn("handoff validation failed",
			"handoff_id", h.ID, "to", h.To, "missing", missing)
		return clone(h), nil
	}

	m.mu.Lock()
	m.handoffs[h.ID] = h
	m.timers[h.ID] = m.clock.AfterFunc(m.timeout, func() { m.expire(h.ID) })
	m.mu.Unlock()

	m.publishStarted(h)

	if spec.Kind == domain.HandoffAutomatic {
		return m.Process(ctx, h.ID)
	}
	return clone(h), nil
}

// Process executes a pending handoff against its target subsystem. The
// record transitions to in_progress, then to completed (merging result data)
// or failed (carrying the error). Either way the timeout is cleared and
// handoff:completed is published. The execution error, if any, is returned
// alongside the terminal record.
func (m *Manager) Process(ctx context.Context, id string) (*domain.HandoffRecord, error) {
	m.mu.Lock()
	h, ok := m.handoffs[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrHandoffNotFound, id)
	}
	if h.Status != domain.HandoffPending {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrHandoffNotPending, id, h.Status)
	}
	h.Status = domain.HandoffInProgress
	m.stopTimer(id)
	m.mu.Unlock()

	result, execErr := m.registry.Execute(ctx, h.To, h.Action, h.Data)

	m.mu.Lock()
	now := m.clock.Now()
	h.CompletedAt = &now
	if execErr != nil {
		h.Status = domain.HandoffFailed
		h.Result = domain.ResultFailure
		h.ErrorMessage = execErr.Error()
	} else {
		h.Status = domain.HandoffCompleted
		h.Result = domain.ResultSuccess
		for k, v := range result {
			h.Data[k] = v
		}
	}
	m.mu.Unlock()

	m.publishCompleted(h)

	if execErr != nil {
		m.logger.Warn("handoff execution failed",
			"handoff_id", h.ID, "to", h.To, "action", h.Action, "err", execErr)
		return clone(h), execErr
	}
	return clone(h), nil
}

// Approve clears an approval_required handoff for execution.
func (m *Manager) Approve(ctx context.Context, id, notes string) (*domain.HandoffRecord, error) {
	m.mu.Lock()
	h, ok := m.handoffs[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrHandoffNotFound, id)
	}
	if h.Kind != domain.HandoffApprovalRequired {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrHandoffNotApproval, id)
	}
	if h.Status != domain.HandoffPending {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrHandoffNotPending, id, h.Status)
	}
	if notes != "" {
		h.Data["approval_notes"] = notes
	}
	m.mu.Unlock()

	return m.Process(ctx, id)
}

// Reject terminates an approval_required handoff without execution.
func (m *Manager) Reject(id, reason string) (*domain.HandoffRecord, error) {
	m.mu.Lock()
	h, ok := m.handoffs[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrHandoffNotFound, id)
	}
	if h.Kind != domain.HandoffApprovalRequired {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrHandoffNotApproval, id)
	}
	if h.Status != domain.HandoffPending {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrHandoffNotPending, id, h.Status)
	}

	h.Status = domain.HandoffFailed
	h.Result = domain.ResultFailure
	h.ErrorMessage = "Rejected: " + reason
	now := m.clock.Now()
	h.CompletedAt = &now
	m.stopTimer(id)
	m.mu.Unlock()

	m.publishCompleted(h)
	return clone(h), nil
}

// RetryFailed resets each named failed handoff to pending, clearing prior
// error and validation state, and reprocesses it. Handoffs that are missing
// or not failed are skipped. No implicit retry ever occurs without this call.
func (m *Manager) RetryFailed(ctx context.Context, ids []string) []*domain.HandoffRecord {
	var out []*domain.HandoffRecord
	for _, id := range ids {
		m.mu.Lock()
		h, ok := m.handoffs[id]
		if !ok || h.Status != domain.HandoffFailed {
			m.mu.Unlock()
			continue
		}
		h.Status = domain.HandoffPending
		h.Result = ""
		h.ErrorMessage = ""
		h.ValidationErrors = nil
		h.CompletedAt = nil
		h.StartedAt = m.clock.Now()
		m.timers[id] = m.clock.AfterFunc(m.timeout, func() { m.expire(id) })
		m.mu.Unlock()

		processed, err := m.Process(ctx, id)
		if err != nil {
			m.logger.Warn("handoff retry failed", "handoff_id", id, "err", err)
		}
		if processed != nil {
			out = append(out, processed)
		}
	}
	return out
}

// BulkProcess processes a batch of pending handoffs independently; one
// handoff's failure does not prevent others from completing.
func (m *Manager) BulkProcess(ctx context.Context, ids []string) []*domain.HandoffRecord {
	var out []*domain.HandoffRecord
	for _, id := range ids {
		h, err := m.Process(ctx, id)
		if err != nil && h == nil {
			m.logger.Warn("bulk process skipped handoff", "handoff_id", id, "err", err)
			continue
		}
		out = append(out, h)
	}
	return out
}

// Get returns a handoff by ID.
func (m *Manager) Get(id string) (*domain.HandoffRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handoffs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrHandoffNotFound, id)
	}
	return clone(h), nil
}

// Active returns handoffs that are still pending or in progress.
func (m *Manager) Active() []*domain.HandoffRecord {
	return m.filter(func(h *domain.HandoffRecord) bool { return !h.Terminal() })
}

// PendingApprovals returns approval_required handoffs awaiting a decision.
func (m *Manager) PendingApprovals() []*domain.HandoffRecord {
	return m.filter(func(h *domain.HandoffRecord) bool {
		return h.Kind == domain.HandoffApprovalRequired && h.Status == domain.HandoffPending
	})
}

// Failed returns handoffs in the failed status.
func (m *Manager) Failed() []*domain.HandoffRecord {
	return m.filter(func(h *domain.HandoffRecord) bool { return h.Status == domain.HandoffFailed })
}

func (m *Manager) filter(keep func(*domain.HandoffRecord) bool) []*domain.HandoffRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.HandoffRecord
	for _, h := range m.handoffs {
		if keep(h) {
			out = append(out, clone(h))
		}
	}
	return out
}

// expire force-fails a handoff that stayed pending past its timeout window.
func (m *Manager) expire(id string) {
	m.mu.Lock()
	h, ok := m.handoffs[id]
	if !ok || h.Status != domain.HandoffPending {
		m.mu.Unlock()
		return
	}
	h.Status = domain.HandoffFailed
	h.Result = domain.ResultFailure
	h.ErrorMessage = TimeoutError
	now := m.clock.Now()
	h.CompletedAt = &now
	delete(m.timers, id)
	m.mu.Unlock()

	m.logger.Warn("handoff timed out", "handoff_id", id, "to", h.To)
	m.publishCompleted(h)
}

// stopTimer must be called with m.mu held.
func (m *Manager) stopTimer(id string) {
	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}
}

func (m *Manager) publishStarted(h *domain.HandoffRecord) {
	payload, _ := domain.EncodePayload(domain.HandoffStartedPayload{
		HandoffID: h.ID,
		From:      h.From,
		To:        h.To,
		Kind:      h.Kind,
	})
	if _, err := m.bus.Publish(&domain.JourneyEvent{
		Type:      domain.EventHandoffStarted,
		Source:    "handoff_manager",
		JourneyID: h.JourneyID,
		Payload:   payload,
	}); err != nil {
		m.logger.Warn("failed to publish handoff:started", "handoff_id", h.ID, "err", err)
	}
}

func (m *Manager) publishCompleted(h *domain.HandoffRecord) {
	var durationMS float64
	if h.CompletedAt != nil {
		durationMS = float64(h.CompletedAt.Sub(h.StartedAt).Milliseconds())
	}
	payload, _ := domain.EncodePayload(domain.HandoffCompletedPayload{
		HandoffID:  h.ID,
		To:         h.To,
		StepID:     h.StepID,
		Status:     h.Status,
		Result:     h.Result,
		Error:      h.ErrorMessage,
		DurationMS: durationMS,
	})
	if _, err := m.bus.Publish(&domain.JourneyEvent{
		Type:      domain.EventHandoffCompleted,
		Source:    "handoff_manager",
		JourneyID: h.JourneyID,
		Payload:   payload,
	}); err != nil {
		m.logger.Warn("failed to publish handoff:completed", "handoff_id", h.ID, "err", err)
	}
}

func clone(h *domain.HandoffRecord) *domain.HandoffRecord {
	c := *h
	c.Data = make(map[string]any, len(h.Data))
	for k, v := range h.Data {
		c.Data[k] = v
	}
	c.RequiredFields = append([]string(nil), h.RequiredFields...)
	c.ValidationErrors = append([]string(nil), h.ValidationErrors...)
	if h.CompletedAt != nil {
		t := *h.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
