package dsl

import (
	"time"

	"github.com/orbitel/journey/pkg/domain"
)

// StepBuilder provides a fluent API for configuring a step.
type StepBuilder struct {
	step    domain.Step
	builder *Builder
}

// Manual marks the step as waiting for an operator to advance it.
func (s *StepBuilder) Manual() *StepBuilder {
	s.step.Type = domain.StepManual
	return s
}

// Automated marks the step as self-advancing after the given duration.
func (s *StepBuilder) Automated(d time.Duration) *StepBuilder {
	s.step.Type = domain.StepAutomated
	s.step.EstimatedDuration = d
	return s
}

// Integration delegates the step to an external subsystem via a handoff.
// The journey halts until the subsystem reports completion.
func (s *StepBuilder) Integration(target, action string) *StepBuilder {
	s.step.Type = domain.StepIntegration
	s.step.Target = target
	s.step.Action = action
	return s
}

// Approval delegates the step via an approval handoff.
func (s *StepBuilder) Approval(action string) *StepBuilder {
	s.step.Type = domain.StepApproval
	s.step.Action = action
	return s
}

// Notification publishes a notification with the given message, then
// auto-advances.
func (s *StepBuilder) Notification(message string) *StepBuilder {
	s.step.Type = domain.StepNotification
	s.step.Message = message
	return s
}

// Name sets the human-readable step name.
func (s *StepBuilder) Name(name string) *StepBuilder {
	s.step.Name = name
	return s
}

// Stage tags the step with a customer lifecycle stage.
func (s *StepBuilder) Stage(stage domain.Stage) *StepBuilder {
	s.step.Stage = stage
	return s
}

// Order overrides the declaration-order position of the step.
func (s *StepBuilder) Order(n int) *StepBuilder {
	s.step.Order = n
	return s
}

// When adds an entry condition. All conditions of a step must hold.
func (s *StepBuilder) When(field string, op domain.Operator, value any) *StepBuilder {
	s.step.Conditions = append(s.step.Conditions, domain.Condition{
		Field:    field,
		Operator: op,
		Value:    value,
	})
	return s
}

// Duration sets the estimated duration without changing the step type.
func (s *StepBuilder) Duration(d time.Duration) *StepBuilder {
	s.step.EstimatedDuration = d
	return s
}

// Param adds a parameter merged into the handoff data for this step.
func (s *StepBuilder) Param(key string, value any) *StepBuilder {
	if s.step.Params == nil {
		s.step.Params = make(map[string]any)
	}
	s.step.Params[key] = value
	return s
}

// Requires declares context fields a handoff for this step must carry.
func (s *StepBuilder) Requires(fields ...string) *StepBuilder {
	s.step.RequiredFields = append(s.step.RequiredFields, fields...)
	return s
}

// Produces declares context fields the subsystem is expected to return.
func (s *StepBuilder) Produces(fields ...string) *StepBuilder {
	s.step.ProducedFields = append(s.step.ProducedFields, fields...)
	return s
}

// Recipient sets who a notification step addresses.
func (s *StepBuilder) Recipient(r string) *StepBuilder {
	s.step.Recipient = r
	return s
}

// Assignee pre-assigns an approval handoff.
func (s *StepBuilder) Assignee(a string) *StepBuilder {
	s.step.Assignee = a
	return s
}

// Build returns the underlying domain.Step.
// This is primarily used by the Builder, but exposed for advanced usage.
func (s *StepBuilder) Build() domain.Step {
	return s.step
}
