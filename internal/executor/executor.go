package executor

import "context"

// Executor generates a single report against an open engine session.
type Executor interface {
	// Run generates the named report with the composed filter applied and
	// returns the raw report text. Implementations are synchronous and may be
	// slow; cancellation of ctx is not required to interrupt work in flight.
	Run(ctx context.Context, reportName, filter string) (string, error)
}

// Engine is a stateful report engine bound to one session. Its internal state
// is an opaque, ordered list of strings; an empty string stands for an absent
// element.
type Engine interface {
	Executor

	// RestoreState loads previously saved state into the engine.
	RestoreState(state []string) error

	// SaveState returns the engine's current state for persistence.
	SaveState() ([]string, error)
}

// EngineFactory creates a fresh engine instance. Engines are not assumed to
// be safe for concurrent use, so each concurrent user obtains its own.
type EngineFactory func() Engine

// Typed is implemented by errors that carry their own failure type name.
type Typed interface {
	FailureType() string
}
