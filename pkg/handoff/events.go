package handoff

import (
	"context"
	"fmt"

	"github.com/orbitel/journey/pkg/domain"
)

// bindEvents wires the manager's reactive behavior: qualifying domain events
// auto-create handoffs targeting the appropriate downstream subsystem,
// mirroring step-driven handoff creation but triggered purely by event
// content rather than by an active journey step.
func (m *Manager) bindEvents() {
	m.bus.SubscribeToType(domain.EventLeadQualified, func(e *domain.JourneyEvent) error {
		return m.autoCreate(e, "crm", "create_opportunity")
	})

	m.bus.SubscribeToType(domain.EventServiceActive, func(e *domain.JourneyEvent) error {
		return m.autoCreate(e, "billing", "start_billing")
	})

	m.bus.SubscribeToType(domain.EventTicketCreated, func(e *domain.JourneyEvent) error {
		priority, _ := e.Payload["priority"].(string)
		if priority != "critical" && priority != "high" {
			return nil
		}
		return m.autoCreate(e, "support", "escalate")
	})
}

func (m *Manager) autoCreate(e *domain.JourneyEvent, target, action string) error {
	data := make(map[string]any, len(e.Payload))
	for k, v := range e.Payload {
		data[k] = v
	}
	if e.CustomerID != "" {
		data["customer_id"] = e.CustomerID
	}
	if e.LeadID != "" {
		data["lead_id"] = e.LeadID
	}

	h, err := m.Create(context.Background(), Spec{
		JourneyID: e.JourneyID,
		From:      e.Source,
		To:        target,
		Action:    action,
		Kind:      domain.HandoffAutomatic,
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("auto-create handoff for %s: %w", e.Type, err)
	}

	m.logger.Debug("handoff auto-created from event",
		"event_type", e.Type, "handoff_id", h.ID, "to", target, "action", action)
	return nil
}
