/*
Package domain contains the core domain models for the journey engine.

It defines the fundamental entities of the orchestration layer: Journeys,
Templates, Steps, Triggers, Handoffs and Events. This package is kept pure
and free of external dependencies like I/O or persistence, following
Hexagonal Architecture principles.

# Key Entities

  - Journey: A running instance of a workflow template tracking a
    customer or lead through lifecycle stages.
  - JourneyTemplate: An ordered blueprint of steps, triggers and settings
    from which journeys are instantiated.
  - Step: One unit of work in a template, typed by how it executes.
  - HandoffRecord: An asynchronous delegation of work to a named external
    subsystem, with its own lifecycle and timeout.
  - JourneyEvent: An immutable record of something that happened, carried
    on the event bus.
*/
package domain
