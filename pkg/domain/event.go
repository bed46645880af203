package domain

import (
	"time"

	"github.com/mitchellh/mapstructure"
)

// Event type constants published and consumed by the engine. External
// collaborators may publish any namespaced type; these are the ones the
// engine itself emits or reacts to.
const (
	EventJourneyStarted       = "journey:started"
	EventJourneyStepCompleted = "journey:step_completed"
	EventJourneyCompleted     = "journey:completed"
	EventJourneyAdvance       = "journey:advance"
	EventJourneyTrigger       = "journey:trigger"

	EventHandoffStarted   = "handoff:started"
	EventHandoffCompleted = "handoff:completed"

	EventTouchpointAdded  = "touchpoint:added"
	EventNotificationSend = "notification:send"

	EventLeadConverted = "crm:lead_converted"
	EventLeadQualified = "crm:lead_qualified"
	EventServiceActive = "service:activated"
	EventTicketCreated = "support:ticket_created"
)

// JourneyEvent is an immutable record of something that happened.
type JourneyEvent struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Source     string         `json:"source"`
	JourneyID  string         `json:"journey_id,omitempty"`
	CustomerID string         `json:"customer_id,omitempty"`
	LeadID     string         `json:"lead_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	TenantID   string         `json:"tenant_id"`
	Timestamp  time.Time      `json:"timestamp"`

	Processed        bool     `json:"processed"`
	ProcessingErrors []string `json:"processing_errors,omitempty"`
}

// Typed payloads for engine-emitted events. External events keep open maps;
// these are decoded on demand with DecodePayload.

// JourneyStartedPayload accompanies EventJourneyStarted.
type JourneyStartedPayload struct {
	TemplateID string `json:"template_id" mapstructure:"template_id"`
	Stage      Stage  `json:"stage" mapstructure:"stage"`
	FirstStep  string `json:"first_step" mapstructure:"first_step"`
}

// StepCompletedPayload accompanies EventJourneyStepCompleted.
type StepCompletedPayload struct {
	StepID   string `json:"step_id" mapstructure:"step_id"`
	StepName string `json:"step_name,omitempty" mapstructure:"step_name"`
	Skipped  bool   `json:"skipped,omitempty" mapstructure:"skipped"`
	Reason   string `json:"reason,omitempty" mapstructure:"reason"`
}

// JourneyCompletedPayload accompanies EventJourneyCompleted.
type JourneyCompletedPayload struct {
	TemplateID string `json:"template_id" mapstructure:"template_id"`
	Stage      Stage  `json:"stage" mapstructure:"stage"`
	Duration   string `json:"duration,omitempty" mapstructure:"duration"`
}

// HandoffStartedPayload accompanies EventHandoffStarted.
type HandoffStartedPayload struct {
	HandoffID string      `json:"handoff_id" mapstructure:"handoff_id"`
	From      string      `json:"from" mapstructure:"from"`
	To        string      `json:"to" mapstructure:"to"`
	Kind      HandoffKind `json:"kind" mapstructure:"kind"`
}

// HandoffCompletedPayload accompanies EventHandoffCompleted.
type HandoffCompletedPayload struct {
	HandoffID string        `json:"handoff_id" mapstructure:"handoff_id"`
	To        string        `json:"to" mapstructure:"to"`
	StepID    string        `json:"step_id,omitempty" mapstructure:"step_id"`
	Status    HandoffStatus `json:"status" mapstructure:"status"`
	Result    HandoffResult `json:"result,omitempty" mapstructure:"result"`
	Error     string        `json:"error,omitempty" mapstructure:"error"`

	// DurationMS is the wall time from creation to completion.
	DurationMS float64 `json:"duration_ms,omitempty" mapstructure:"duration_ms"`
}

// TouchpointAddedPayload accompanies EventTouchpointAdded.
type TouchpointAddedPayload struct {
	TouchpointID string `json:"touchpoint_id" mapstructure:"touchpoint_id"`
	Type         string `json:"type" mapstructure:"type"`
	Channel      string `json:"channel,omitempty" mapstructure:"channel"`
}

// NotificationPayload accompanies EventNotificationSend.
type NotificationPayload struct {
	Message   string `json:"message" mapstructure:"message"`
	Recipient string `json:"recipient" mapstructure:"recipient"`
	StepID    string `json:"step_id,omitempty" mapstructure:"step_id"`
}

// DecodePayload decodes an event's open payload map into a typed payload
// struct. Unknown keys are ignored; missing keys stay at zero values.
func DecodePayload(e *JourneyEvent, out any) error {
	return mapstructure.Decode(e.Payload, out)
}

// EncodePayload converts a typed payload into the open map carried on the
// bus, keeping events wire-shaped regardless of producer.
func EncodePayload(in any) (map[string]any, error) {
	var out map[string]any
	if err := mapstructure.Decode(in, &out); err != nil {
		return nil, err
	}
	return out, nil
}
