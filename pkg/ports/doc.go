// Package ports defines the boundary interfaces of the journey engine.
//
// The engine core depends only on these interfaces; adapters (memory, redis,
// http) implement them. This keeps persistence and transport swappable
// without touching orchestration logic.
package ports
