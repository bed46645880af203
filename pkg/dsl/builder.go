package dsl

import (
	"fmt"

	"github.com/orbitel/journey/pkg/domain"
	"github.com/orbitel/journey/pkg/templates"
)

// Builder manages template construction.
type Builder struct {
	tpl   domain.JourneyTemplate
	steps []*StepBuilder
	byID  map[string]*StepBuilder
}

// New creates a new template builder.
func New(id string) *Builder {
	return &Builder{
		tpl:  domain.JourneyTemplate{ID: id},
		byID: make(map[string]*StepBuilder),
	}
}

// Name sets the human-readable template name.
func (b *Builder) Name(name string) *Builder {
	b.tpl.Name = name
	return b
}

// Type classifies the template (e.g. "onboarding", "support").
func (b *Builder) Type(t string) *Builder {
	b.tpl.Type = t
	return b
}

// Tenant scopes the template to a tenant.
func (b *Builder) Tenant(tenantID string) *Builder {
	b.tpl.TenantID = tenantID
	return b
}

// Context adds a default context value seeded into every journey.
func (b *Builder) Context(key string, value any) *Builder {
	if b.tpl.DefaultContext == nil {
		b.tpl.DefaultContext = make(map[string]any)
	}
	b.tpl.DefaultContext[key] = value
	return b
}

// AutoProgress enables automatic advancement of automated steps.
func (b *Builder) AutoProgress() *Builder {
	b.tpl.Settings.AutoProgress = true
	return b
}

// AllowSkip allows operators to skip steps of this template.
func (b *Builder) AllowSkip() *Builder {
	b.tpl.Settings.AllowSkip = true
	return b
}

// Notifications enables notification steps for this template.
func (b *Builder) Notifications() *Builder {
	b.tpl.Settings.Notifications = true
	return b
}

// Trigger registers an active trigger starting journeys of this template
// when the event type is published.
func (b *Builder) Trigger(id, eventType string) *Builder {
	b.tpl.Triggers = append(b.tpl.Triggers, domain.Trigger{
		ID:        id,
		EventType: eventType,
		Active:    true,
	})
	return b
}

// Step creates a new step in the template. Steps are ordered in declaration
// order unless Order is set explicitly. If the step already exists, the
// existing builder is returned.
func (b *Builder) Step(id string) *StepBuilder {
	if sb, ok := b.byID[id]; ok {
		return sb
	}
	sb := &StepBuilder{
		step:    domain.Step{ID: id, Type: domain.StepManual},
		builder: b,
	}
	b.steps = append(b.steps, sb)
	b.byID[id] = sb
	return sb
}

// Build compiles and validates the template.
func (b *Builder) Build() (*domain.JourneyTemplate, error) {
	tpl := b.tpl
	tpl.Steps = make([]domain.Step, len(b.steps))
	for i, sb := range b.steps {
		s := sb.step
		if s.Order == 0 {
			s.Order = i + 1
		}
		tpl.Steps[i] = s
	}
	for i := range tpl.Triggers {
		tpl.Triggers[i].TemplateID = tpl.ID
	}

	if err := templates.Validate(&tpl); err != nil {
		return nil, fmt.Errorf("failed to build template: %w", err)
	}
	return &tpl, nil
}
