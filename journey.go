package journey

import (
	"github.com/orbitel/journey/pkg/engine"
)

// Version is the library version, reported by the CLI.
const Version = "0.3.0"

// New assembles a tenant engine with default settings. It is shorthand for
// engine.New; use that package directly for registries and persistence.
func New(tenantID string, opts ...engine.Option) *engine.Engine {
	return engine.New(tenantID, opts...)
}
