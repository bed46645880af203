package domain

import "errors"

// ErrTemplateNotFound is returned when a template ID is not present in the registry.
var ErrTemplateNotFound = errors.New("template not found")

// ErrJourneyNotFound is returned when a journey ID cannot be found.
var ErrJourneyNotFound = errors.New("journey not found")

// ErrJourneyTerminal is returned when a mutation targets a journey that has
// already reached a terminal status (completed, abandoned or failed).
var ErrJourneyTerminal = errors.New("journey is in a terminal state")

// ErrJourneyNotPaused is returned when resuming a journey that is not paused.
var ErrJourneyNotPaused = errors.New("journey is not paused")

// ErrConcurrencyLimit is returned when starting a journey would exceed the
// configured ceiling of simultaneously active journeys.
var ErrConcurrencyLimit = errors.New("active journey limit reached")

// ErrHandoffNotFound is returned when a handoff ID is not in the active set.
var ErrHandoffNotFound = errors.New("handoff not found")

// ErrHandoffNotPending is returned when execution is attempted on a handoff
// that is not in the pending status.
var ErrHandoffNotPending = errors.New("handoff is not pending")

// ErrHandoffNotApproval is returned when approve/reject is called on a
// handoff whose kind is not approval_required.
var ErrHandoffNotApproval = errors.New("handoff does not require approval")

// ErrSubsystemNotFound is returned when a handoff targets a subsystem that
// was never registered in the dispatch table.
var ErrSubsystemNotFound = errors.New("subsystem not found")

// ErrSnapshotNotFound is returned when a tenant snapshot does not exist in the store.
var ErrSnapshotNotFound = errors.New("snapshot not found")
