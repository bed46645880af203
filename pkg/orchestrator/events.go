package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/orbitel/journey/pkg/domain"
)

// bindEvents wires the orchestrator's reactive behavior to the bus:
// registered triggers auto-start journeys from matching inbound events,
// journey:advance events drive the step machine remotely, journey:trigger
// events start a journey from a named template, and handoff:completed
// events resume journeys waiting at integration or approval steps.
func (o *Orchestrator) bindEvents() {
	o.bus.Subscribe(o.onAnyEvent)
	o.bus.SubscribeToType(domain.EventJourneyAdvance, o.onAdvanceEvent)
	o.bus.SubscribeToType(domain.EventJourneyTrigger, o.onTriggerEvent)
	o.bus.SubscribeToType(domain.EventHandoffCompleted, o.onHandoffCompleted)
}

// onAnyEvent matches inbound events against registered triggers. When
// several active triggers bind the same event type, the highest priority
// wins.
func (o *Orchestrator) onAnyEvent(e *domain.JourneyEvent) error {
	o.mu.Lock()
	var matches []*domain.Trigger
	for _, trg := range o.triggers {
		if trg.Active && trg.EventType == e.Type {
			matches = append(matches, trg)
		}
	}
	o.mu.Unlock()

	if len(matches) == 0 {
		return nil
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Priority > matches[j].Priority })
	trg := matches[0]

	jctx := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		jctx[k] = v
	}
	jctx["trigger_event"] = e.Type

	j, err := o.StartJourney(context.Background(), trg.TemplateID, jctx, e.CustomerID, e.LeadID)
	if err != nil {
		return fmt.Errorf("trigger %s: %w", trg.ID, err)
	}
	o.logger.Info("journey auto-started by trigger",
		"trigger_id", trg.ID, "event_type", e.Type, "journey_id", j.ID)
	return nil
}

func (o *Orchestrator) onAdvanceEvent(e *domain.JourneyEvent) error {
	journeyID := e.JourneyID
	if journeyID == "" {
		journeyID, _ = e.Payload["journey_id"].(string)
	}
	if journeyID == "" {
		return fmt.Errorf("journey:advance event without a journey id")
	}
	stepID, _ := e.Payload["step_id"].(string)
	return o.AdvanceStep(context.Background(), journeyID, stepID)
}

func (o *Orchestrator) onTriggerEvent(e *domain.JourneyEvent) error {
	templateID, _ := e.Payload["template_id"].(string)
	if templateID == "" {
		return fmt.Errorf("journey:trigger event without a template id")
	}
	jctx, _ := e.Payload["context"].(map[string]any)
	_, err := o.StartJourney(context.Background(), templateID, jctx, e.CustomerID, e.LeadID)
	return err
}

// onHandoffCompleted advances a journey waiting at the step that spawned the
// handoff. Failed handoffs leave the journey in place: an operator decides
// whether to retry the handoff, skip the step or abandon the journey.
func (o *Orchestrator) onHandoffCompleted(e *domain.JourneyEvent) error {
	if e.JourneyID == "" {
		return nil
	}
	var payload domain.HandoffCompletedPayload
	if err := domain.DecodePayload(e, &payload); err != nil {
		return fmt.Errorf("decode handoff:completed payload: %w", err)
	}
	if payload.Status != domain.HandoffCompleted || payload.StepID == "" {
		return nil
	}

	o.mu.Lock()
	j, ok := o.journeys[e.JourneyID]
	waiting := ok && j.Status == domain.JourneyActive && j.CurrentStep == payload.StepID
	o.mu.Unlock()

	if !waiting {
		return nil
	}

	// Fold the subsystem's results back into the journey context so later
	// steps can condition on them. The handoff's data started as a copy of
	// the context, so this only adds or refreshes keys.
	if rec, err := o.handoffs.Get(payload.HandoffID); err == nil {
		o.mu.Lock()
		if j, ok := o.journeys[e.JourneyID]; ok {
			for k, v := range rec.Data {
				j.Context[k] = v
			}
		}
		o.mu.Unlock()
	}

	return o.AdvanceStep(context.Background(), e.JourneyID, "")
}
