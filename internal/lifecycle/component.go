// Package lifecycle orchestrates engine startup and shutdown: the
// audit store, session manager, and API server start in dependency
// order and stop in reverse.
package lifecycle

import "context"

// Component is a managed part of the engine process. Start must be
// idempotent; Stop must respect the context deadline and let in-flight
// work drain.
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Name identifies the component in logs and dependency errors.
	Name() string
}
