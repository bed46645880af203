// Package middleware wraps a SnapshotStore with cross-cutting persistence
// behavior: encryption at rest and PII masking of customer data. Middlewares
// compose; the engine sees a plain SnapshotStore either way.
package middleware

import "github.com/orbitel/journey/pkg/ports"

// Middleware allows wrapping a SnapshotStore to add behavior.
type Middleware func(ports.SnapshotStore) ports.SnapshotStore

// Chain applies middlewares outermost-first: Chain(store, a, b) wraps store
// with b, then a, so a sees writes before b does.
func Chain(store ports.SnapshotStore, mws ...Middleware) ports.SnapshotStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
