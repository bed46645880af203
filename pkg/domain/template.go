package domain

import "time"

// StepType constants define how a step executes.
const (
	// StepManual waits for an external caller to advance the journey.
	StepManual = "manual"
	// StepAutomated advances automatically after its estimated duration.
	StepAutomated = "automated"
	// StepIntegration delegates to an external subsystem via a handoff.
	StepIntegration = "integration"
	// StepApproval delegates via an approval_required handoff.
	StepApproval = "approval"
	// StepNotification publishes a notification event, then auto-advances.
	StepNotification = "notification"
)

// Step represents one unit of a template.
type Step struct {
	ID    string `json:"id" yaml:"id" mapstructure:"id"`
	Name  string `json:"name" yaml:"name" mapstructure:"name"`
	Stage Stage  `json:"stage" yaml:"stage" mapstructure:"stage"`
	Order int    `json:"order" yaml:"order" mapstructure:"order"`
	Type  string `json:"type" yaml:"type" mapstructure:"type"` // manual, automated, integration, approval, notification

	// Target names the subsystem an integration/approval step delegates to.
	Target string `json:"target,omitempty" yaml:"target,omitempty" mapstructure:"target"`
	Action string `json:"action,omitempty" yaml:"action,omitempty" mapstructure:"action"`

	// Conditions gate entry into this step. All must hold (logical AND).
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty" mapstructure:"conditions"`

	EstimatedDuration time.Duration `json:"estimated_duration,omitempty" yaml:"estimated_duration,omitempty" mapstructure:"estimated_duration"`

	RequiredFields []string `json:"required_fields,omitempty" yaml:"required_fields,omitempty" mapstructure:"required_fields"`
	ProducedFields []string `json:"produced_fields,omitempty" yaml:"produced_fields,omitempty" mapstructure:"produced_fields"`

	// Params are merged into the journey context when building a handoff.
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params"`

	// Notification configuration (used if Type == "notification").
	Message   string `json:"message,omitempty" yaml:"message,omitempty" mapstructure:"message"`
	Recipient string `json:"recipient,omitempty" yaml:"recipient,omitempty" mapstructure:"recipient"`

	// Assignee pre-assigns an approval handoff (used if Type == "approval").
	Assignee string `json:"assignee,omitempty" yaml:"assignee,omitempty" mapstructure:"assignee"`
}

// TemplateSettings control engine behavior for journeys of a template.
type TemplateSettings struct {
	AutoProgress  bool `json:"auto_progress" yaml:"auto_progress" mapstructure:"auto_progress"`
	AllowSkip     bool `json:"allow_skip" yaml:"allow_skip" mapstructure:"allow_skip"`
	Notifications bool `json:"notifications" yaml:"notifications" mapstructure:"notifications"`
	SLATracking   bool `json:"sla_tracking" yaml:"sla_tracking" mapstructure:"sla_tracking"`
}

// Trigger binds an inbound event type to a template.
type Trigger struct {
	ID         string `json:"id" yaml:"id" mapstructure:"id"`
	EventType  string `json:"event_type" yaml:"event_type" mapstructure:"event_type"`
	TemplateID string `json:"template_id" yaml:"template_id" mapstructure:"template_id"`
	Active     bool   `json:"active" yaml:"active" mapstructure:"active"`
	Priority   int    `json:"priority" yaml:"priority" mapstructure:"priority"`
}

// JourneyTemplate is an immutable-at-runtime blueprint for journeys.
// Templates are loaded once and never mutated once journeys reference them.
type JourneyTemplate struct {
	ID       string `json:"id" yaml:"id" mapstructure:"id"`
	Name     string `json:"name" yaml:"name" mapstructure:"name"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"`
	TenantID string `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty" mapstructure:"tenant_id"`

	// Steps are ordered by their Order field.
	Steps []Step `json:"steps" yaml:"steps" mapstructure:"steps"`

	DefaultContext map[string]any `json:"default_context,omitempty" yaml:"default_context,omitempty" mapstructure:"default_context"`

	Triggers []Trigger `json:"triggers,omitempty" yaml:"triggers,omitempty" mapstructure:"triggers"`

	Settings TemplateSettings `json:"settings" yaml:"settings" mapstructure:"settings"`
}

// FirstStep returns the step with the lowest order, or nil for an empty template.
func (t *JourneyTemplate) FirstStep() *Step {
	var first *Step
	for i := range t.Steps {
		if first == nil || t.Steps[i].Order < first.Order {
			first = &t.Steps[i]
		}
	}
	return first
}

// StepByID returns the step with the given ID, or nil.
func (t *JourneyTemplate) StepByID(id string) *Step {
	for i := range t.Steps {
		if t.Steps[i].ID == id {
			return &t.Steps[i]
		}
	}
	return nil
}

// NextStep returns the step following current in template order, or nil if
// current is the last step.
func (t *JourneyTemplate) NextStep(currentID string) *Step {
	current := t.StepByID(currentID)
	if current == nil {
		return nil
	}
	var next *Step
	for i := range t.Steps {
		s := &t.Steps[i]
		if s.Order <= current.Order {
			continue
		}
		if next == nil || s.Order < next.Order {
			next = s
		}
	}
	return next
}
