package domain

import "time"

// HandoffStatus defines the lifecycle state of a handoff.
type HandoffStatus string

const (
	HandoffPending    HandoffStatus = "pending"
	HandoffInProgress HandoffStatus = "in_progress"
	HandoffCompleted  HandoffStatus = "completed"
	HandoffFailed     HandoffStatus = "failed"
)

// HandoffKind defines how a handoff is initiated and gated.
type HandoffKind string

const (
	// HandoffAutomatic executes immediately on creation.
	HandoffAutomatic HandoffKind = "automatic"
	// HandoffManual waits for an explicit Process call.
	HandoffManual HandoffKind = "manual"
	// HandoffApprovalRequired waits for Approve or Reject.
	HandoffApprovalRequired HandoffKind = "approval_required"
)

// HandoffResult summarises the outcome of an executed handoff.
type HandoffResult string

const (
	ResultSuccess HandoffResult = "success"
	ResultFailure HandoffResult = "failure"
	ResultPartial HandoffResult = "partial"
)

// HandoffRecord is a unit of delegated, asynchronous work addressed to a
// named external subsystem.
type HandoffRecord struct {
	ID        string `json:"id"`
	JourneyID string `json:"journey_id,omitempty"`
	From      string `json:"from"`
	To        string `json:"to"`
	StepID    string `json:"step_id,omitempty"`
	Action    string `json:"action"`

	Status HandoffStatus `json:"status"`
	Kind   HandoffKind   `json:"kind"`

	Data map[string]any `json:"data"`

	// RequiredFields must all be present in Data before execution.
	RequiredFields []string `json:"required_fields,omitempty"`

	Assignee string `json:"assignee,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Result           HandoffResult `json:"result,omitempty"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	ValidationErrors []string      `json:"validation_errors,omitempty"`
}

// Terminal reports whether the handoff has reached an absorbing status.
// Rejection and timeout both land in HandoffFailed.
func (h *HandoffRecord) Terminal() bool {
	return h.Status == HandoffCompleted || h.Status == HandoffFailed
}

// MissingFields returns the required fields absent from Data, in declaration order.
func (h *HandoffRecord) MissingFields() []string {
	var missing []string
	for _, f := range h.RequiredFields {
		if _, ok := h.Data[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}
