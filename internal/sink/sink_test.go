package sink_test

import (
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/market-harvester/internal/harvest"
	"github.com/JakeFAU/market-harvester/internal/report"
	"github.com/JakeFAU/market-harvester/internal/sink"
	"github.com/JakeFAU/market-harvester/internal/sink/memory"
)

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, harvest.Record) error { return f.err }
func (f failingSink) Flush(context.Context, *report.Report) error   { return f.err }

func TestMultiFansOutToEverySink(t *testing.T) {
	t.Parallel()

	first := memory.New()
	second := memory.New()
	multi := sink.Multi{first, second}

	rec := harvest.Record{Title: "Headphones", URL: "https://example.com/1", Market: "amazon"}
	if err := multi.Publish(context.Background(), rec); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	rep := &report.Report{}
	if err := multi.Flush(context.Background(), rep); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	for i, s := range []*memory.Sink{first, second} {
		if got := len(s.Records()); got != 1 {
			t.Fatalf("sink %d: expected 1 record, got %d", i, got)
		}
		if got := len(s.Reports()); got != 1 {
			t.Fatalf("sink %d: expected 1 report, got %d", i, got)
		}
	}
}

func TestMultiCombinesErrorsWithoutStarving(t *testing.T) {
	t.Parallel()

	boom := errors.New("destination down")
	healthy := memory.New()
	multi := sink.Multi{failingSink{err: boom}, healthy}

	rec := harvest.Record{Title: "Headphones", URL: "https://example.com/1", Market: "amazon"}
	err := multi.Publish(context.Background(), rec)
	if !errors.Is(err, boom) {
		t.Fatalf("expected the failing sink's error, got %v", err)
	}
	if got := len(healthy.Records()); got != 1 {
		t.Fatalf("expected the healthy sink to still receive the record, got %d", got)
	}

	if err := multi.Flush(context.Background(), &report.Report{}); !errors.Is(err, boom) {
		t.Fatalf("expected the failing sink's flush error, got %v", err)
	}
	if got := len(healthy.Reports()); got != 1 {
		t.Fatalf("expected the healthy sink to still receive the report, got %d", got)
	}
}
