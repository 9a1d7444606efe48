// Package memory contains an in-memory sink for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/market-harvester/internal/harvest"
	"github.com/JakeFAU/market-harvester/internal/report"
)

// Sink stores everything it receives for inspection.
type Sink struct {
	mu      sync.RWMutex
	records []harvest.Record
	reports []*report.Report
}

// New returns an empty memory Sink.
func New() *Sink {
	return &Sink{}
}

// Publish records the record.
func (s *Sink) Publish(_ context.Context, rec harvest.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Flush records the report.
func (s *Sink) Flush(_ context.Context, rep *report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, rep)
	return nil
}

// Records returns the published records.
func (s *Sink) Records() []harvest.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]harvest.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Reports returns the flushed reports.
func (s *Sink) Reports() []*report.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*report.Report, len(s.reports))
	copy(out, s.reports)
	return out
}
