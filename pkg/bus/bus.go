// Package bus implements the per-tenant, in-process event channel that
// choreographs the journey engine. Delivery is synchronous and ordered;
// a bounded history keeps recent events queryable.
package bus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/orbitel/journey/internal/logging"
	"github.com/orbitel/journey/pkg/domain"
	"github.com/orbitel/journey/pkg/ports"
)

// DefaultHistoryLimit caps retained events when no limit is configured.
const DefaultHistoryLimit = 1000

// Handler processes a delivered event. A returned error is recorded on the
// event's processing errors; it does not roll back the publish.
type Handler func(e *domain.JourneyEvent) error

// UnsubscribeFunc removes a previously registered handler.
type UnsubscribeFunc func()

type subscription struct {
	id int
	fn Handler
}

// Bus is the event channel for one tenant. Safe for concurrent use.
type Bus struct {
	tenantID     string
	historyLimit int
	clock        ports.Clock
	logger       *slog.Logger

	mu       sync.Mutex
	history  []*domain.JourneyEvent
	queue    []*domain.JourneyEvent
	draining bool

	nextSub  int
	wildcard []subscription
	byType   map[string][]subscription
}

// Option configures the Bus.
type Option func(*Bus)

// WithHistoryLimit overrides the retained history cap.
func WithHistoryLimit(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.historyLimit = n
		}
	}
}

// WithLogger configures a structured logger for the bus.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithClock injects a clock, used for event timestamps.
func WithClock(c ports.Clock) Option {
	return func(b *Bus) {
		b.clock = c
	}
}

// New creates an event bus for the given tenant.
func New(tenantID string, opts ...Option) *Bus {
	b := &Bus{
		tenantID:     tenantID,
		historyLimit: DefaultHistoryLimit,
		clock:        ports.SystemClock{},
		logger:       logging.NewNop(),
		byType:       make(map[string][]subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// TenantID returns the tenant this bus belongs to.
func (b *Bus) TenantID() string { return b.tenantID }

// Publish assigns an ID and timestamp to the draft event, appends it to the
// bounded history and delivers it to every matching subscriber in
// registration order. Delivery happens synchronously unless a drain pass is
// already running, in which case the event is queued and handled by the
// outer pass (no reentrant draining).
func (b *Bus) Publish(draft *domain.JourneyEvent) (*domain.JourneyEvent, error) {
	if draft == nil {
		return nil, fmt.Errorf("publish: event is nil")
	}
	if draft.Type == "" {
		return nil, fmt.Errorf("publish: event type is required")
	}

	e := *draft
	e.ID = uuid.NewString()
	e.Timestamp = b.clock.Now()
	e.TenantID = b.tenantID
	e.Processed = false
	e.ProcessingErrors = nil
	event := &e

	b.mu.Lock()
	b.history = append(b.history, event)
	if len(b.history) > b.historyLimit {
		b.history = b.history[len(b.history)-b.historyLimit:]
	}
	b.queue = append(b.queue, event)
	b.mu.Unlock()

	b.drain()
	return event, nil
}

// drain processes queued events one at a time. Only one pass runs at a time;
// events published by handlers are picked up by the running pass.
func (b *Bus) drain() {
	b.mu.Lock()
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true

	for len(b.queue) > 0 {
		event := b.queue[0]
		b.queue = b.queue[1:]

		handlers := make([]subscription, 0, len(b.wildcard)+len(b.byType[event.Type]))
		handlers = append(handlers, b.wildcard...)
		handlers = append(handlers, b.byType[event.Type]...)
		b.mu.Unlock()

		for _, sub := range handlers {
			if err := sub.fn(event); err != nil {
				b.mu.Lock()
				event.ProcessingErrors = append(event.ProcessingErrors, err.Error())
				b.mu.Unlock()
				b.logger.Warn("event handler failed",
					"tenant", b.tenantID,
					"event_type", event.Type,
					"event_id", event.ID,
					"err", err,
				)
			}
		}

		b.mu.Lock()
		event.Processed = true
	}

	b.draining = false
	b.mu.Unlock()
}

// Subscribe registers a handler for every event type.
// The returned function unsubscribes it.
func (b *Bus) Subscribe(fn Handler) UnsubscribeFunc {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	b.wildcard = append(b.wildcard, subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.wildcard = removeSub(b.wildcard, id)
	}
}

// SubscribeToType registers a handler for a specific event type.
func (b *Bus) SubscribeToType(eventType string, fn Handler) UnsubscribeFunc {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	b.byType[eventType] = append(b.byType[eventType], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byType[eventType] = removeSub(b.byType[eventType], id)
	}
}

func removeSub(subs []subscription, id int) []subscription {
	out := subs[:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// History returns up to limit retained events, newest last. A limit <= 0
// returns the full retained window.
func (b *Bus) History(limit int) []*domain.JourneyEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.history
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return append([]*domain.JourneyEvent(nil), events...)
}

// HistoryForJourney returns retained events correlated to a journey.
func (b *Bus) HistoryForJourney(journeyID string) []*domain.JourneyEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*domain.JourneyEvent
	for _, e := range b.history {
		if e.JourneyID == journeyID {
			out = append(out, e)
		}
	}
	return out
}
