// Package sink routes harvest output to its destinations. A Sink receives
// each newly merged record as the run progresses and the aggregate report
// once the run ends.
package sink

import (
	"context"

	"go.uber.org/multierr"

	"github.com/JakeFAU/market-harvester/internal/harvest"
	"github.com/JakeFAU/market-harvester/internal/report"
)

// Sink consumes a harvest. Publish must be safe for concurrent use; the
// orchestrator calls it from the merge path.
type Sink interface {
	harvest.Publisher
	// Flush receives the aggregate report after the run completes.
	Flush(ctx context.Context, rep *report.Report) error
}

// Multi fans every call out to each member sink in order. Errors are
// combined so one failing destination never starves the others.
type Multi []Sink

// Publish forwards the record to every sink.
func (m Multi) Publish(ctx context.Context, rec harvest.Record) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Publish(ctx, rec))
	}
	return err
}

// Flush forwards the report to every sink.
func (m Multi) Flush(ctx context.Context, rep *report.Report) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Flush(ctx, rep))
	}
	return err
}
