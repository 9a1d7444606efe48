package harvest

import (
	"context"
)

type runIDKey struct{}

// WithRunID stamps the run identifier onto the context. The orchestrator sets
// it once per run so components below the Source interface (the fetch
// pipeline, archives, progress events) can tag their output without widening
// every signature.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run identifier carried by the context, or "" when
// none was set.
func RunIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok {
		return id
	}
	return ""
}
