package orchestrator

import (
	"github.com/orbitel/journey/pkg/domain"
)

// ExportSnapshot captures the orchestrator's durable state for persistence.
func (o *Orchestrator) ExportSnapshot() *domain.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := &domain.Snapshot{
		TenantID:  o.bus.TenantID(),
		Templates: make(map[string]*domain.JourneyTemplate, len(o.templates)),
		Triggers:  make(map[string]*domain.Trigger, len(o.triggers)),
		TakenAt:   o.clock.Now(),
	}
	for _, j := range o.journeys {
		snap.Journeys = append(snap.Journeys, j.Clone())
	}
	for id, tpl := range o.templates {
		snap.Templates[id] = tpl
	}
	for id, trg := range o.triggers {
		cp := *trg
		snap.Triggers[id] = &cp
	}
	return snap
}

// ImportSnapshot rehydrates orchestrator state from a persisted snapshot.
// Timers are not restored: journeys parked at automated or notification
// steps resume via ResumeJourney or an explicit advance.
func (o *Orchestrator) ImportSnapshot(snap *domain.Snapshot) {
	if snap == nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for id, tpl := range snap.Templates {
		o.templates[id] = tpl
	}
	for id, trg := range snap.Triggers {
		cp := *trg
		o.triggers[id] = &cp
	}
	for _, j := range snap.Journeys {
		o.journeys[j.ID] = j.Clone()
	}
}
