/*
Package dsl provides a Go DSL (Domain Specific Language) for programmatically
constructing journey templates.

It allows developers to define templates using a type-safe, fluent builder
pattern instead of relying on external YAML files. This is particularly useful
for dynamic template generation, unit testing, and leveraging IDE
autocompletion/type-checking.

Example usage:

	package main

	import (
		"github.com/orbitel/journey/pkg/dsl"
	)

	func main() {
		b := dsl.New("fiber-onboarding").
			Name("Fiber Onboarding").
			Context("plan", "fiber-600").
			AutoProgress()

		b.Step("welcome").
			Manual().
			Name("Welcome call")

		b.Step("provision").
			Integration("provisioning", "activate_service").
			When("plan", "exists", nil)

		b.Step("notify").
			Notification("Your service is live!").
			Recipient("customer")

		tpl, err := b.Build()
		// ... load tpl into an orchestrator
		_ = tpl
		_ = err
	}
*/
package dsl
