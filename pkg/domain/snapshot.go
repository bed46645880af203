package domain

import "time"

// Snapshot is the serializable state of one tenant engine: journeys,
// templates and triggers. It is written to a SnapshotStore on a debounced
// cadence and used to rehydrate an engine on construction.
type Snapshot struct {
	TenantID  string                      `json:"tenant_id"`
	Journeys  []*Journey                  `json:"journeys,omitempty"`
	Templates map[string]*JourneyTemplate `json:"templates,omitempty"`
	Triggers  map[string]*Trigger         `json:"triggers,omitempty"`
	TakenAt   time.Time                   `json:"taken_at"`

	// Encrypted carries the sealed payload when a store middleware encrypts
	// snapshots at rest. An envelope snapshot has this set and the state
	// fields empty.
	Encrypted string `json:"encrypted,omitempty"`
}
