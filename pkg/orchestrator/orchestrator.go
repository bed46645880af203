// Package orchestrator owns the authoritative state of all journeys for a
// tenant and drives each one through its template via a step state machine.
//
// Mutation entry points run to completion under a single mutex; events and
// handoff requests are issued only after the mutex is released, so bus
// subscribers may safely call back into the orchestrator.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orbitel/journey/internal/logging"
	"github.com/orbitel/journey/pkg/bus"
	"github.com/orbitel/journey/pkg/domain"
	"github.com/orbitel/journey/pkg/handoff"
	"github.com/orbitel/journey/pkg/ports"
)

// Source is the subsystem name the orchestrator stamps on its events.
const Source = "journey_orchestrator"

// Defaults for Config fields left at zero.
const (
	DefaultMaxActiveJourneys = 100
	DefaultNotificationDelay = 2 * time.Second
)

// Config controls engine-wide orchestration behavior.
type Config struct {
	// MaxActiveJourneys is the ceiling of simultaneously active journeys.
	// StartJourney rejects new journeys once the ceiling is reached.
	MaxActiveJourneys int

	// AutoProgress enables automatic step processing globally. A template's
	// settings must also enable it for its journeys to auto-progress.
	AutoProgress bool

	// NotificationDelay is the fixed delay before a notification step
	// auto-advances.
	NotificationDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxActiveJourneys <= 0 {
		c.MaxActiveJourneys = DefaultMaxActiveJourneys
	}
	if c.NotificationDelay <= 0 {
		c.NotificationDelay = DefaultNotificationDelay
	}
	return c
}

// Orchestrator drives journeys through their templates.
type Orchestrator struct {
	bus      *bus.Bus
	handoffs *handoff.Manager
	clock    ports.Clock
	cfg      Config
	logger   *slog.Logger
	onMutate func()

	mu        sync.Mutex
	journeys  map[string]*domain.Journey
	templates map[string]*domain.JourneyTemplate
	triggers  map[string]*domain.Trigger
	timers    map[string]ports.Timer
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithClock injects a clock for timestamps and step timers.
func WithClock(c ports.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithLogger configures a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMutationHook registers a callback invoked after every state mutation.
// The engine uses it to schedule debounced snapshot persistence.
func WithMutationHook(fn func()) Option {
	return func(o *Orchestrator) {
		o.onMutate = fn
	}
}

// New creates an orchestrator bound to an event bus and a handoff manager,
// and subscribes its reactive triggers (see bindEvents).
func New(b *bus.Bus, handoffs *handoff.Manager, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		bus:       b,
		handoffs:  handoffs,
		clock:     ports.SystemClock{},
		cfg:       cfg.withDefaults(),
		logger:    logging.NewNop(),
		journeys:  make(map[string]*domain.Journey),
		templates: make(map[string]*domain.JourneyTemplate),
		triggers:  make(map[string]*domain.Trigger),
		timers:    make(map[string]ports.Timer),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.bindEvents()
	return o
}

// LoadTemplate registers a template. Journeys referencing it may start once
// it is loaded; its embedded triggers are registered as well. Templates are
// immutable at runtime; reloading an ID replaces the blueprint for future
// journeys only.
func (o *Orchestrator) LoadTemplate(tpl *domain.JourneyTemplate) error {
	if tpl == nil || tpl.ID == "" {
		return fmt.Errorf("load template: id is required")
	}
	if len(tpl.Steps) == 0 {
		return fmt.Errorf("load template %s: at least one step is required", tpl.ID)
	}

	cp := *tpl
	cp.Steps = append([]domain.Step(nil), tpl.Steps...)
	sort.SliceStable(cp.Steps, func(i, j int) bool { return cp.Steps[i].Order < cp.Steps[j].Order })

	o.mu.Lock()
	o.templates[cp.ID] = &cp
	for i := range cp.Triggers {
		trg := cp.Triggers[i]
		if trg.TemplateID == "" {
			trg.TemplateID = cp.ID
		}
		o.triggers[trg.ID] = &trg
	}
	o.mu.Unlock()

	o.notifyMutation()
	o.logger.Debug("template loaded", "template_id", cp.ID, "steps", len(cp.Steps))
	return nil
}

// RegisterTrigger binds an inbound event type to a template.
func (o *Orchestrator) RegisterTrigger(trg *domain.Trigger) error {
	if trg == nil || trg.ID == "" || trg.EventType == "" || trg.TemplateID == "" {
		return fmt.Errorf("register trigger: id, event_type and template_id are required")
	}

	o.mu.Lock()
	if _, ok := o.templates[trg.TemplateID]; !ok {
		o.mu.Unlock()
		return fmt.Errorf("register trigger %s: %w: %s", trg.ID, domain.ErrTemplateNotFound, trg.TemplateID)
	}
	cp := *trg
	o.triggers[cp.ID] = &cp
	o.mu.Unlock()

	o.notifyMutation()
	return nil
}

// StartJourney creates a journey at the template's first step and begins
// processing it when auto-progress is enabled both globally and by the
// template's settings. Fails when the template is unknown or the active
// journey ceiling is reached.
func (o *Orchestrator) StartJourney(ctx context.Context, templateID string, jctx map[string]any, customerID, leadID string) (*domain.Journey, error) {
	o.mu.Lock()
	tpl, ok := o.templates[templateID]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("start journey: %w: %s", domain.ErrTemplateNotFound, templateID)
	}
	if o.activeCountLocked() >= o.cfg.MaxActiveJourneys {
		o.mu.Unlock()
		return nil, fmt.Errorf("start journey: %w (ceiling %d)", domain.ErrConcurrencyLimit, o.cfg.MaxActiveJourneys)
	}

	first := tpl.FirstStep()
	now := o.clock.Now()

	merged := make(map[string]any, len(tpl.DefaultContext)+len(jctx))
	for k, v := range tpl.DefaultContext {
		merged[k] = v
	}
	for k, v := range jctx {
		merged[k] = v
	}

	j := &domain.Journey{
		ID:             uuid.NewString(),
		Name:           tpl.Name,
		Type:           tpl.Type,
		CustomerID:     customerID,
		LeadID:         leadID,
		TenantID:       o.bus.TenantID(),
		TemplateID:     tpl.ID,
		Stage:          first.Stage,
		Status:         domain.JourneyActive,
		CurrentStep:    first.ID,
		TotalSteps:     len(tpl.Steps),
		Context:        merged,
		Metadata:       map[string]any{"template_id": tpl.ID},
		StartedAt:      now,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	o.journeys[j.ID] = j
	auto := o.cfg.AutoProgress && tpl.Settings.AutoProgress
	o.mu.Unlock()

	o.notifyMutation()
	o.publishJourneyStarted(j, first)
	o.logger.Info("journey started",
		"journey_id", j.ID, "template_id", tpl.ID, "customer_id", customerID, "lead_id", leadID)

	if auto {
		o.processStep(ctx, j.ID, first)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if current, ok := o.journeys[j.ID]; ok {
		return current.Clone(), nil
	}
	return j.Clone(), nil
}

// AdvanceStep marks the journey's current step completed and moves to the
// next step, either by explicit ID or by template order. Unmet entry
// conditions on the target step reject the call without mutating the
// journey. Without a next step the journey completes.
func (o *Orchestrator) AdvanceStep(ctx context.Context, journeyID, explicitStepID string) error {
	return o.advance(ctx, journeyID, explicitStepID, false, "")
}

// SkipStep records a skip annotation for the step, marks it completed and
// delegates to the advance machinery. The template must allow skipping.
func (o *Orchestrator) SkipStep(ctx context.Context, journeyID, stepID, reason string) error {
	o.mu.Lock()
	j, ok := o.journeys[journeyID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("skip step: %w: %s", domain.ErrJourneyNotFound, journeyID)
	}
	if j.Terminal() {
		o.mu.Unlock()
		return fmt.Errorf("skip step: %w", domain.ErrJourneyTerminal)
	}
	tpl := o.templates[j.TemplateID]
	if tpl == nil {
		o.mu.Unlock()
		return fmt.Errorf("skip step: %w: %s", domain.ErrTemplateNotFound, j.TemplateID)
	}
	if !tpl.Settings.AllowSkip {
		o.mu.Unlock()
		return fmt.Errorf("skip step: template %s does not allow skipping", tpl.ID)
	}
	step := tpl.StepByID(stepID)
	if step == nil {
		o.mu.Unlock()
		return fmt.Errorf("skip step: step %s not found in template %s", stepID, tpl.ID)
	}

	skips, _ := j.Metadata["skipped_steps"].([]any)
	j.Metadata["skipped_steps"] = append(skips, map[string]any{
		"step_id":    stepID,
		"reason":     reason,
		"skipped_at": o.clock.Now().Format(time.RFC3339),
	})
	j.MarkCompleted(stepID)
	o.mu.Unlock()

	return o.advance(ctx, journeyID, "", true, reason)
}

// PauseJourney moves an active journey to paused, cancelling any pending
// auto-advance timer.
func (o *Orchestrator) PauseJourney(journeyID string) error {
	o.mu.Lock()
	j, ok := o.journeys[journeyID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("pause journey: %w: %s", domain.ErrJourneyNotFound, journeyID)
	}
	if j.Terminal() {
		o.mu.Unlock()
		return fmt.Errorf("pause journey: %w", domain.ErrJourneyTerminal)
	}
	if j.Status != domain.JourneyActive {
		o.mu.Unlock()
		return fmt.Errorf("pause journey: %s is %s", journeyID, j.Status)
	}
	now := o.clock.Now()
	j.Status = domain.JourneyPaused
	j.Metadata["paused_at"] = now.Format(time.RFC3339)
	j.UpdatedAt = now
	o.stopTimerLocked(journeyID)
	o.mu.Unlock()

	o.notifyMutation()
	return nil
}

// ResumeJourney moves a paused journey back to active and re-triggers
// processing of the current step when auto-progress is enabled.
func (o *Orchestrator) ResumeJourney(ctx context.Context, journeyID string) error {
	o.mu.Lock()
	j, ok := o.journeys[journeyID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("resume journey: %w: %s", domain.ErrJourneyNotFound, journeyID)
	}
	if j.Status != domain.JourneyPaused {
		o.mu.Unlock()
		return fmt.Errorf("resume journey: %w: %s is %s", domain.ErrJourneyNotPaused, journeyID, j.Status)
	}
	now := o.clock.Now()
	j.Status = domain.JourneyActive
	delete(j.Metadata, "paused_at")
	j.UpdatedAt = now
	j.LastActivityAt = now

	tpl := o.templates[j.TemplateID]
	var step *domain.Step
	auto := false
	if tpl != nil {
		step = tpl.StepByID(j.CurrentStep)
		auto = o.cfg.AutoProgress && tpl.Settings.AutoProgress
	}
	o.mu.Unlock()

	o.notifyMutation()
	if auto && step != nil {
		o.processStep(ctx, journeyID, step)
	}
	return nil
}

// CompleteJourney forces a journey into the completed terminal state.
func (o *Orchestrator) CompleteJourney(journeyID string) error {
	o.mu.Lock()
	j, ok := o.journeys[journeyID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("complete journey: %w: %s", domain.ErrJourneyNotFound, journeyID)
	}
	if j.Terminal() {
		o.mu.Unlock()
		return fmt.Errorf("complete journey: %w", domain.ErrJourneyTerminal)
	}
	now := o.clock.Now()
	j.Status = domain.JourneyCompleted
	j.Progress = 100
	j.CompletedAt = &now
	j.UpdatedAt = now
	o.stopTimerLocked(journeyID)
	snapshot := j.Clone()
	o.mu.Unlock()

	o.notifyMutation()
	o.publishJourneyCompleted(snapshot)
	return nil
}

// AbandonJourney forces a journey into the abandoned terminal state.
func (o *Orchestrator) AbandonJourney(journeyID, reason string) error {
	o.mu.Lock()
	j, ok := o.journeys[journeyID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("abandon journey: %w: %s", domain.ErrJourneyNotFound, journeyID)
	}
	if j.Terminal() {
		o.mu.Unlock()
		return fmt.Errorf("abandon journey: %w", domain.ErrJourneyTerminal)
	}
	now := o.clock.Now()
	j.Status = domain.JourneyAbandoned
	if reason != "" {
		j.Metadata["abandon_reason"] = reason
	}
	j.CompletedAt = &now
	j.UpdatedAt = now
	o.stopTimerLocked(journeyID)
	o.mu.Unlock()

	o.notifyMutation()
	return nil
}

// UpdateContext merges fields into the journey's context map. External
// collaborators use it to feed data back into a running journey.
func (o *Orchestrator) UpdateContext(journeyID string, patch map[string]any) error {
	o.mu.Lock()
	j, ok := o.journeys[journeyID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("update context: %w: %s", domain.ErrJourneyNotFound, journeyID)
	}
	if j.Terminal() {
		o.mu.Unlock()
		return fmt.Errorf("update context: %w", domain.ErrJourneyTerminal)
	}
	now := o.clock.Now()
	for k, v := range patch {
		j.Context[k] = v
	}
	j.UpdatedAt = now
	j.LastActivityAt = now
	o.mu.Unlock()

	o.notifyMutation()
	return nil
}

// AddTouchpoint appends a touchpoint to the journey's interaction log,
// assigning an ID and timestamp when absent, and publishes touchpoint:added.
func (o *Orchestrator) AddTouchpoint(journeyID string, tp domain.Touchpoint) (*domain.Touchpoint, error) {
	o.mu.Lock()
	j, ok := o.journeys[journeyID]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("add touchpoint: %w: %s", domain.ErrJourneyNotFound, journeyID)
	}
	if j.Terminal() {
		o.mu.Unlock()
		return nil, fmt.Errorf("add touchpoint: %w", domain.ErrJourneyTerminal)
	}
	if tp.ID == "" {
		tp.ID = uuid.NewString()
	}
	if tp.Timestamp.IsZero() {
		tp.Timestamp = o.clock.Now()
	}
	j.Touchpoints = append(j.Touchpoints, tp)
	j.LastActivityAt = tp.Timestamp
	j.UpdatedAt = o.clock.Now()
	customerID := j.CustomerID
	o.mu.Unlock()

	o.notifyMutation()
	payload, _ := domain.EncodePayload(domain.TouchpointAddedPayload{
		TouchpointID: tp.ID,
		Type:         tp.Type,
		Channel:      tp.Channel,
	})
	o.publish(&domain.JourneyEvent{
		Type:       domain.EventTouchpointAdded,
		Source:     Source,
		JourneyID:  journeyID,
		CustomerID: customerID,
		Payload:    payload,
	})
	return &tp, nil
}

// RecordConversion appends a conversion event to the journey's log.
func (o *Orchestrator) RecordConversion(journeyID string, conv domain.Conversion) (*domain.Conversion, error) {
	o.mu.Lock()
	j, ok := o.journeys[journeyID]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("record conversion: %w: %s", domain.ErrJourneyNotFound, journeyID)
	}
	if j.Terminal() {
		o.mu.Unlock()
		return nil, fmt.Errorf("record conversion: %w", domain.ErrJourneyTerminal)
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Timestamp.IsZero() {
		conv.Timestamp = o.clock.Now()
	}
	j.Conversions = append(j.Conversions, conv)
	j.LastActivityAt = conv.Timestamp
	j.UpdatedAt = o.clock.Now()
	o.mu.Unlock()

	o.notifyMutation()
	return &conv, nil
}

// activeCountLocked must be called with o.mu held.
func (o *Orchestrator) activeCountLocked() int {
	n := 0
	for _, j := range o.journeys {
		if j.Status == domain.JourneyActive {
			n++
		}
	}
	return n
}

// stopTimerLocked must be called with o.mu held.
func (o *Orchestrator) stopTimerLocked(journeyID string) {
	if t, ok := o.timers[journeyID]; ok {
		t.Stop()
		delete(o.timers, journeyID)
	}
}

func (o *Orchestrator) notifyMutation() {
	if o.onMutate != nil {
		o.onMutate()
	}
}

func (o *Orchestrator) publish(e *domain.JourneyEvent) {
	if _, err := o.bus.Publish(e); err != nil {
		o.logger.Warn("failed to publish event", "event_type", e.Type, "err", err)
	}
}

func (o *Orchestrator) publishJourneyStarted(j *domain.Journey, first *domain.Step) {
	payload, _ := domain.EncodePayload(domain.JourneyStartedPayload{
		TemplateID: j.TemplateID,
		Stage:      j.Stage,
		FirstStep:  first.ID,
	})
	o.publish(&domain.JourneyEvent{
		Type:       domain.EventJourneyStarted,
		Source:     Source,
		JourneyID:  j.ID,
		CustomerID: j.CustomerID,
		LeadID:     j.LeadID,
		Payload:    payload,
	})
}

func (o *Orchestrator) publishJourneyCompleted(j *domain.Journey) {
	payload, _ := domain.EncodePayload(domain.JourneyCompletedPayload{
		TemplateID: j.TemplateID,
		Stage:      j.Stage,
		Duration:   j.UpdatedAt.Sub(j.StartedAt).String(),
	})
	o.publish(&domain.JourneyEvent{
		Type:       domain.EventJourneyCompleted,
		Source:     Source,
		JourneyID:  j.ID,
		CustomerID: j.CustomerID,
		LeadID:     j.LeadID,
		Payload:    payload,
	})
}
