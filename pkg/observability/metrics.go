// Package observability exports engine activity as Prometheus metrics.
// A Collector subscribes to a tenant's event bus and translates lifecycle
// events into counters and histograms; nothing in the engine core depends
// on it.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/orbitel/journey/pkg/bus"
	"github.com/orbitel/journey/pkg/domain"
	"github.com/orbitel/journey/pkg/orchestrator"
)

// Collector holds the metric vectors for one registry. Attach engines with
// Observe; one collector can serve many tenants, labelled per tenant.
type Collector struct {
	JourneysStarted   *prometheus.CounterVec
	JourneysCompleted *prometheus.CounterVec
	StepsCompleted    *prometheus.CounterVec
	HandoffsStarted   *prometheus.CounterVec
	HandoffsCompleted *prometheus.CounterVec
	HandoffDuration   *prometheus.HistogramVec
	Notifications     *prometheus.CounterVec
	AutomationRate    *prometheus.GaugeVec
	EventsTotal       *prometheus.CounterVec
}

// NewCollector creates the metric vectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		JourneysStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_started_total",
			Help: "Journeys started, by template.",
		}, []string{"tenant", "template"}),
		JourneysCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_completed_total",
			Help: "Journeys that reached the completed status.",
		}, []string{"tenant", "template"}),
		StepsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_step_completed_total",
			Help: "Steps completed, including skips.",
		}, []string{"tenant", "skipped"}),
		HandoffsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handoff_started_total",
			Help: "Handoffs dispatched to subsystems.",
		}, []string{"tenant", "to"}),
		HandoffsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handoff_completed_total",
			Help: "Handoffs finished, by result status.",
		}, []string{"tenant", "to", "status"}),
		HandoffDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "handoff_duration_seconds",
			Help:    "Time from handoff creation to completion.",
			Buckets: prometheus.ExponentialBuckets(0.1, 3, 10),
		}, []string{"tenant", "to"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_sent_total",
			Help: "Notification events published.",
		}, []string{"tenant"}),
		AutomationRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "journey_automation_rate",
			Help: "Share of automatable steps across loaded templates.",
		}, []string{"tenant"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_events_total",
			Help: "All events seen on the bus, by type.",
		}, []string{"tenant", "type"}),
	}

	reg.MustRegister(
		c.JourneysStarted,
		c.JourneysCompleted,
		c.StepsCompleted,
		c.HandoffsStarted,
		c.HandoffsCompleted,
		c.HandoffDuration,
		c.Notifications,
		c.AutomationRate,
		c.EventsTotal,
	)
	return c
}

// Observe subscribes the collector to a tenant's bus and returns the
// unsubscribe function.
func (c *Collector) Observe(b *bus.Bus, orch *orchestrator.Orchestrator) bus.UnsubscribeFunc {
	tenant := b.TenantID()
	return b.Subscribe(func(e *domain.JourneyEvent) error {
		c.EventsTotal.WithLabelValues(tenant, e.Type).Inc()

		switch e.Type {
		case domain.EventJourneyStarted:
			var p domain.JourneyStartedPayload
			if err := domain.DecodePayload(e, &p); err == nil {
				c.JourneysStarted.WithLabelValues(tenant, p.TemplateID).Inc()
			}
			c.AutomationRate.WithLabelValues(tenant).Set(orch.Metrics().AutomationRate)

		case domain.EventJourneyCompleted:
			var p domain.JourneyCompletedPayload
			if err := domain.DecodePayload(e, &p); err == nil {
				c.JourneysCompleted.WithLabelValues(tenant, p.TemplateID).Inc()
			}

		case domain.EventJourneyStepCompleted:
			var p domain.StepCompletedPayload
			if err := domain.DecodePayload(e, &p); err == nil {
				c.StepsCompleted.WithLabelValues(tenant, boolLabel(p.Skipped)).Inc()
			}

		case domain.EventHandoffStarted:
			var p domain.HandoffStartedPayload
			if err := domain.DecodePayload(e, &p); err == nil {
				c.HandoffsStarted.WithLabelValues(tenant, p.To).Inc()
			}

		case domain.EventHandoffCompleted:
			var p domain.HandoffCompletedPayload
			if err := domain.DecodePayload(e, &p); err == nil {
				c.HandoffsCompleted.WithLabelValues(tenant, p.To, string(p.Status)).Inc()
				if p.DurationMS > 0 {
					c.HandoffDuration.WithLabelValues(tenant, p.To).Observe(p.DurationMS / 1000)
				}
			}

		case domain.EventNotificationSend:
			c.Notifications.WithLabelValues(tenant).Inc()
		}
		return nil
	})
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
