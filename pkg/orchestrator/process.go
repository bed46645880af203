package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/orbitel/journey/pkg/domain"
	"github.com/orbitel/journey/pkg/handoff"
)

// advance is the step state machine core behind AdvanceStep and SkipStep.
// Entry conditions on the target step are evaluated before any mutation, so
// a rejection leaves the journey untouched.
func (o *Orchestrator) advance(ctx context.Context, journeyID, explicitStepID string, skipped bool, skipReason string) error {
	o.mu.Lock()
	j, ok := o.journeys[journeyID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("advance step: %w: %s", domain.ErrJourneyNotFound, journeyID)
	}
	if j.Terminal() {
		o.mu.Unlock()
		return fmt.Errorf("advance step: %w", domain.ErrJourneyTerminal)
	}
	if j.Status != domain.JourneyActive {
		o.mu.Unlock()
		return fmt.Errorf("advance step: journey %s is %s", journeyID, j.Status)
	}
	tpl := o.templates[j.TemplateID]
	if tpl == nil {
		o.mu.Unlock()
		return fmt.Errorf("advance step: %w: %s", domain.ErrTemplateNotFound, j.TemplateID)
	}

	completed := tpl.StepByID(j.CurrentStep)

	var next *domain.Step
	if explicitStepID != "" {
		next = tpl.StepByID(explicitStepID)
		if next == nil {
			o.mu.Unlock()
			return fmt.Errorf("advance step: step %s not found in template %s", explicitStepID, tpl.ID)
		}
	} else {
		next = tpl.NextStep(j.CurrentStep)
	}

	if next != nil {
		if err := domain.EvaluateAll(next.ID, next.Conditions, j.Context); err != nil {
			o.mu.Unlock()
			return fmt.Errorf("advance step: %w", err)
		}
	}

	now := o.clock.Now()
	j.MarkCompleted(j.CurrentStep)
	j.LastActivityAt = now
	j.UpdatedAt = now
	o.stopTimerLocked(journeyID)

	done := next == nil
	if done {
		j.Status = domain.JourneyCompleted
		j.CompletedAt = &now
	} else {
		j.CurrentStep = next.ID
		j.Stage = next.Stage
	}

	auto := o.cfg.AutoProgress && tpl.Settings.AutoProgress
	snapshot := j.Clone()
	o.mu.Unlock()

	o.notifyMutation()

	stepName := ""
	stepID := snapshot.CompletedSteps[len(snapshot.CompletedSteps)-1]
	if completed != nil {
		stepID = completed.ID
		stepName = completed.Name
	}
	payload, _ := domain.EncodePayload(domain.StepCompletedPayload{
		StepID:   stepID,
		StepName: stepName,
		Skipped:  skipped,
		Reason:   skipReason,
	})
	o.publish(&domain.JourneyEvent{
		Type:       domain.EventJourneyStepCompleted,
		Source:     Source,
		JourneyID:  snapshot.ID,
		CustomerID: snapshot.CustomerID,
		LeadID:     snapshot.LeadID,
		Payload:    payload,
	})

	if done {
		o.logger.Info("journey completed", "journey_id", snapshot.ID, "template_id", snapshot.TemplateID)
		o.publishJourneyCompleted(snapshot)
		return nil
	}

	o.logger.Debug("journey advanced",
		"journey_id", snapshot.ID, "step_id", next.ID, "stage", next.Stage, "progress", snapshot.Progress)

	if auto {
		o.processStep(ctx, snapshot.ID, next)
	}
	return nil
}

// processStep applies the step-type processing policy once per activation.
// It must be called without o.mu held.
func (o *Orchestrator) processStep(ctx context.Context, journeyID string, step *domain.Step) {
	switch step.Type {
	case domain.StepManual:
		// The journey stays here until an external caller advances it.

	case domain.StepAutomated:
		o.scheduleAdvance(journeyID, step.ID, step.EstimatedDuration)

	case domain.StepNotification:
		o.mu.Lock()
		j, ok := o.journeys[journeyID]
		var customerID, recipient string
		if ok {
			customerID = j.CustomerID
			recipient = step.Recipient
			if recipient == "" {
				recipient = j.CustomerID
			}
		}
		o.mu.Unlock()
		if !ok {
			return
		}

		payload, _ := domain.EncodePayload(domain.NotificationPayload{
			Message:   step.Message,
			Recipient: recipient,
			StepID:    step.ID,
		})
		o.publish(&domain.JourneyEvent{
			Type:       domain.EventNotificationSend,
			Source:     Source,
			JourneyID:  journeyID,
			CustomerID: customerID,
			Payload:    payload,
		})
		o.scheduleAdvance(journeyID, step.ID, o.cfg.NotificationDelay)

	case domain.StepIntegration:
		o.requestHandoff(ctx, journeyID, step, domain.HandoffManual, "")

	case domain.StepApproval:
		o.requestHandoff(ctx, journeyID, step, domain.HandoffApprovalRequired, step.Assignee)

	default:
		o.failJourney(journeyID, fmt.Sprintf("unknown step type %q for step %s", step.Type, step.ID))
	}
}

// scheduleAdvance defers an automatic advance past the given step. The timer
// callback re-checks that the journey is still active at that step, so a
// manual advance or pause in the meantime wins.
func (o *Orchestrator) scheduleAdvance(journeyID, stepID string, delay time.Duration) {
	o.mu.Lock()
	o.stopTimerLocked(journeyID)
	o.timers[journeyID] = o.clock.AfterFunc(delay, func() {
		o.autoAdvance(journeyID, stepID)
	})
	o.mu.Unlock()
}

func (o *Orchestrator) autoAdvance(journeyID, stepID string) {
	o.mu.Lock()
	j, ok := o.journeys[journeyID]
	if !ok || j.Status != domain.JourneyActive || j.CurrentStep != stepID {
		o.mu.Unlock()
		return
	}
	delete(o.timers, journeyID)
	o.mu.Unlock()

	if err := o.advance(context.Background(), journeyID, "", false, ""); err != nil {
		// Nothing upstream can observe an auto-processing error; the journey
		// absorbs it as a terminal failure.
		o.failJourney(journeyID, err.Error())
	}
}

// requestHandoff delegates an integration or approval step. The journey does
// not block: advancement resumes only when a handoff:completed event for the
// current step arrives. Inline activation failures (unknown subsystem,
// validation) are terminal for the journey.
func (o *Orchestrator) requestHandoff(ctx context.Context, journeyID string, step *domain.Step, kind domain.HandoffKind, assignee string) {
	o.mu.Lock()
	j, ok := o.journeys[journeyID]
	if !ok {
		o.mu.Unlock()
		return
	}
	data := make(map[string]any, len(j.Context)+len(step.Params))
	for k, v := range j.Context {
		data[k] = v
	}
	for k, v := range step.Params {
		data[k] = v
	}
	o.mu.Unlock()

	target := step.Target
	if target == "" && kind == domain.HandoffApprovalRequired {
		target = "approvals"
	}

	rec, err := o.handoffs.Create(ctx, handoff.Spec{
		JourneyID: journeyID,
		From:      Source,
		To:        target,
		StepID:    step.ID,
		Action:    step.Action,
		Kind:      kind,
		Data:      data,
		Assignee:  assignee,
	})
	if err != nil {
		o.failJourney(journeyID, fmt.Sprintf("step %s: %v", step.ID, err))
		return
	}
	if rec.Status == domain.HandoffFailed {
		o.failJourney(journeyID, fmt.Sprintf("step %s: handoff validation failed: %v", step.ID, rec.ValidationErrors))
		return
	}

	o.logger.Debug("handoff requested",
		"journey_id", journeyID, "step_id", step.ID, "to", target, "handoff_id", rec.ID)
}

// failJourney transitions a journey to the failed terminal state, capturing
// the error in metadata for operator inspection.
func (o *Orchestrator) failJourney(journeyID, msg string) {
	o.mu.Lock()
	j, ok := o.journeys[journeyID]
	if !ok || j.Terminal() {
		o.mu.Unlock()
		return
	}
	now := o.clock.Now()
	j.Status = domain.JourneyFailed
	j.Metadata["error"] = msg
	j.CompletedAt = &now
	j.UpdatedAt = now
	o.stopTimerLocked(journeyID)
	o.mu.Unlock()

	o.notifyMutation()
	o.logger.Error("journey failed", "journey_id", journeyID, "err", msg)
}
