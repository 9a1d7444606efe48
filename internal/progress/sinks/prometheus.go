package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/market-harvester/internal/progress"
)

// PrometheusSink exports harvest progress metrics via Prometheus. It owns the
// collectors for stage counts, merged record totals, and round durations.
type PrometheusSink struct {
	events    *prometheus.CounterVec
	added     *prometheus.CounterVec
	roundTime prometheus.Histogram
}

var (
	defaultSinkOnce sync.Once
	defaultSink     *PrometheusSink
	defaultSinkErr  error
)

// NewPrometheusSink registers the collectors against the provided registry.
// A nil registerer uses the default registry; that path registers once per
// process and hands the same sink to every caller.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		defaultSinkOnce.Do(func() {
			defaultSink, defaultSinkErr = newPrometheusSink(prometheus.DefaultRegisterer)
		})
		return defaultSink, defaultSinkErr
	}
	return newPrometheusSink(reg)
}

func newPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_progress_events_total",
			Help: "Progress events observed, partitioned by stage and outcome.",
		}, []string{"stage", "outcome"}),
		added: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_progress_records_added_total",
			Help: "Unique records merged during search stages, partitioned by market.",
		}, []string{"market"}),
		roundTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvester_progress_round_duration_seconds",
			Help:    "Wall time per completed dispatch round.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.events,
		s.added,
		s.roundTime,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch. It is safe for
// concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	outcome := evt.Outcome
	if outcome == "" {
		outcome = "none"
	}
	s.events.WithLabelValues(string(evt.Stage), outcome).Inc()
	if evt.Stage == progress.StageSearchDone && evt.Added > 0 {
		s.added.WithLabelValues(evt.Market).Add(float64(evt.Added))
	}
	if evt.Stage == progress.StageRoundDone && evt.Dur > 0 {
		s.roundTime.Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
