package orchestrator

import (
	"sort"
	"strings"

	"github.com/orbitel/journey/pkg/domain"
)

// Filter selects journeys by exact attribute match. Zero-valued fields are
// ignored; populated fields combine conjunctively.
type Filter struct {
	Status   domain.JourneyStatus
	Stage    domain.Stage
	Type     string
	Priority string
	Assignee string
}

// Metrics summarises the orchestrator's journey population.
type Metrics struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Paused    int `json:"paused"`
	Completed int `json:"completed"`
	Abandoned int `json:"abandoned"`
	Failed    int `json:"failed"`

	// AutomationRate is the ratio of automated-capable steps (automated,
	// integration, notification) to all steps across loaded templates.
	AutomationRate float64 `json:"automation_rate"`
}

// Journeys returns all journeys, oldest first.
func (o *Orchestrator) Journeys() []*domain.Journey {
	return o.collect(func(*domain.Journey) bool { return true })
}

// Journey returns a single journey by ID.
func (o *Orchestrator) Journey(id string) (*domain.Journey, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.journeys[id]
	if !ok {
		return nil, domain.ErrJourneyNotFound
	}
	return j.Clone(), nil
}

// SearchJourneys matches the query case-insensitively against journey name,
// type, stage, customer ID and lead ID.
func (o *Orchestrator) SearchJourneys(query string) []*domain.Journey {
	q := strings.ToLower(query)
	return o.collect(func(j *domain.Journey) bool {
		for _, field := range []string{j.Name, j.Type, string(j.Stage), j.CustomerID, j.LeadID} {
			if field != "" && strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
		return false
	})
}

// FilterJourneys returns journeys matching every populated filter field.
func (o *Orchestrator) FilterJourneys(f Filter) []*domain.Journey {
	return o.collect(func(j *domain.Journey) bool {
		if f.Status != "" && j.Status != f.Status {
			return false
		}
		if f.Stage != "" && j.Stage != f.Stage {
			return false
		}
		if f.Type != "" && j.Type != f.Type {
			return false
		}
		if f.Priority != "" && j.Priority != f.Priority {
			return false
		}
		if f.Assignee != "" && j.Assignee != f.Assignee {
			return false
		}
		return true
	})
}

// Template returns a loaded template by ID.
func (o *Orchestrator) Template(id string) (*domain.JourneyTemplate, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	tpl, ok := o.templates[id]
	if !ok {
		return nil, domain.ErrTemplateNotFound
	}
	return tpl, nil
}

// Metrics derives population counts and the automation rate.
func (o *Orchestrator) Metrics() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()

	var m Metrics
	for _, j := range o.journeys {
		m.Total++
		switch j.Status {
		case domain.JourneyActive:
			m.Active++
		case domain.JourneyPaused:
			m.Paused++
		case domain.JourneyCompleted:
			m.Completed++
		case domain.JourneyAbandoned:
			m.Abandoned++
		case domain.JourneyFailed:
			m.Failed++
		}
	}

	steps, automated := 0, 0
	for _, tpl := range o.templates {
		for _, s := range tpl.Steps {
			steps++
			switch s.Type {
			case domain.StepAutomated, domain.StepIntegration, domain.StepNotification:
				automated++
			}
		}
	}
	if steps > 0 {
		m.AutomationRate = float64(automated) / float64(steps)
	}
	return m
}

func (o *Orchestrator) collect(keep func(*domain.Journey) bool) []*domain.Journey {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []*domain.Journey
	for _, j := range o.journeys {
		if keep(j) {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out
}
