package domain

import (
	"math"
	"time"
)

// Stage is a coarse-grained position in the customer lifecycle.
type Stage string

const (
	StageProspect      Stage = "prospect"
	StageLead          Stage = "lead"
	StageQualified     Stage = "qualified"
	StageCustomer      Stage = "customer"
	StageActiveService Stage = "active_service"
	StageSupport       Stage = "support"
	StageRenewal       Stage = "renewal"
	StageChurn         Stage = "churn"
	StageWinBack       Stage = "win_back"
)

// JourneyStatus defines the lifecycle state of a journey instance.
type JourneyStatus string

const (
	JourneyActive    JourneyStatus = "active"
	JourneyPaused    JourneyStatus = "paused"
	JourneyCompleted JourneyStatus = "completed"
	JourneyAbandoned JourneyStatus = "abandoned"
	JourneyFailed    JourneyStatus = "failed"
)

// Touchpoint is a logged customer interaction attached to a journey.
// The log is append-only; entries are never rewritten.
type Touchpoint struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Channel   string         `json:"channel,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Conversion records a conversion event attributed to a journey.
type Conversion struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Value     float64        `json:"value,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Journey represents a running workflow instance.
type Journey struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Type       string `json:"type,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	LeadID     string `json:"lead_id,omitempty"`
	TenantID   string `json:"tenant_id"`
	TemplateID string `json:"template_id"`

	Stage  Stage         `json:"stage"`
	Status JourneyStatus `json:"status"`

	// CurrentStep references a step ID of the owning template, except in
	// terminal states where it is frozen at its last value.
	CurrentStep    string   `json:"current_step"`
	CompletedSteps []string `json:"completed_steps"`
	TotalSteps     int      `json:"total_steps"`

	// Progress is derived: round(100 * len(CompletedSteps) / TotalSteps).
	Progress int `json:"progress"`

	Priority string `json:"priority,omitempty"`
	Assignee string `json:"assignee,omitempty"`

	// Context holds business data threaded through steps (user space).
	Context map[string]any `json:"context"`

	// Metadata holds engine bookkeeping: template id, skip records, pause
	// timestamp, error message. Reserved for the orchestrator.
	Metadata map[string]any `json:"metadata"`

	Touchpoints []Touchpoint `json:"touchpoints"`
	Conversions []Conversion `json:"conversions"`

	StartedAt      time.Time  `json:"started_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Terminal reports whether the journey has reached an absorbing status.
// Terminal journeys never mutate further.
func (j *Journey) Terminal() bool {
	switch j.Status {
	case JourneyCompleted, JourneyAbandoned, JourneyFailed:
		return true
	}
	return false
}

// HasCompleted reports whether stepID is already in the completed list.
func (j *Journey) HasCompleted(stepID string) bool {
	for _, id := range j.CompletedSteps {
		if id == stepID {
			return true
		}
	}
	return false
}

// MarkCompleted appends stepID to the completed list if not already present
// and recalculates progress. Idempotent.
func (j *Journey) MarkCompleted(stepID string) {
	if !j.HasCompleted(stepID) {
		j.CompletedSteps = append(j.CompletedSteps, stepID)
	}
	j.RecalcProgress()
}

// RecalcProgress re-derives the progress percentage from completed steps.
func (j *Journey) RecalcProgress() {
	if j.TotalSteps <= 0 {
		j.Progress = 0
		return
	}
	j.Progress = int(math.Round(100 * float64(len(j.CompletedSteps)) / float64(j.TotalSteps)))
}

// Clone returns a deep copy of the journey so callers cannot mutate
// orchestrator-owned state through a returned pointer.
func (j *Journey) Clone() *Journey {
	c := *j
	c.CompletedSteps = append([]string(nil), j.CompletedSteps...)
	c.Context = cloneMap(j.Context)
	c.Metadata = cloneMap(j.Metadata)
	c.Touchpoints = append([]Touchpoint(nil), j.Touchpoints...)
	c.Conversions = append([]Conversion(nil), j.Conversions...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
