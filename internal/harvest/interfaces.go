package harvest

import (
	"context"
	"time"
)

// Source is one market adapter: a component that can search one external
// data source and return normalized records. Implementations open whatever
// session state they need inside Search and release it on every return path.
type Source interface {
	// Name returns the market identifier (e.g. "amazon").
	Name() string
	// Search runs one term against the market. The result is best effort:
	// zero or more records, possibly repeating items already seen. Any
	// returned error costs the market exactly one zero-yield turn.
	Search(ctx context.Context, term string) ([]Record, error)
}

// Publisher pushes individual records downstream as they are merged.
// Publish errors are logged and counted, never fatal to the run.
type Publisher interface {
	Publish(ctx context.Context, record Record) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Pauser blocks for a delay while honoring context cancellation.
type Pauser interface {
	Pause(ctx context.Context, d time.Duration) error
}
