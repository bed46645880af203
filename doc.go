/*
Package journey is an embeddable journey orchestration engine for ISP and
telecom operations platforms. It drives customer lifecycle workflows (lead
qualification, onboarding, support escalation, win-back) as state machines,
coordinates with external subsystems through auditable handoffs, and keeps
every tenant's state fully isolated.

# Concept

A journey is an instance of a template: an ordered list of steps, each with
a type that tells the engine how to execute it. Manual steps wait for an
operator, automated steps advance on a timer, notification steps publish an
event, and integration/approval steps delegate to an external subsystem via
the handoff manager and halt the journey until the subsystem reports back.
All coordination flows through a per-tenant event bus, so CRM systems,
provisioning backends and operations tooling react to the same stream the
engine itself consumes.

# Usage

Hosts assemble a per-tenant runtime with New and drive it through its
exported components:

	package main

	import (
		"context"
		"log"

		"github.com/orbitel/journey"
		"github.com/orbitel/journey/pkg/templates"
	)

	func main() {
		eng := journey.New("acme-isp")

		tpl, err := templates.LoadFile("templates/onboarding.yaml")
		if err != nil {
			log.Fatal(err)
		}
		if err := eng.Orchestrator.LoadTemplate(tpl); err != nil {
			log.Fatal(err)
		}

		j, err := eng.Orchestrator.StartJourney(context.Background(),
			tpl.ID, map[string]any{"plan": "fiber_1g"}, "cust-1", "")
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("journey %s at step %s", j.ID, j.CurrentStep)
	}

Multi-tenant hosts use engine.NewRegistry instead of constructing engines
directly; see the pkg/engine package.
*/
package journey
