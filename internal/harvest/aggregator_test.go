package harvest

import (
	"testing"
)

func TestMergeReturnsOnlyNewRecords(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	batch := []Record{
		{Title: "Headphones", URL: "https://example.com/items/1", Market: "alpha"},
		{Title: "Speaker", URL: "https://example.com/items/2", Market: "alpha"},
		{Title: "Cable", URL: "https://example.com/items/3", Market: "alpha"},
	}

	added := agg.Merge("alpha", batch)
	if len(added) != 3 {
		t.Fatalf("expected 3 added records, got %d", len(added))
	}
	if agg.CountFor("alpha") != 3 || agg.TotalUnique() != 3 {
		t.Fatalf("unexpected counts: market=%d total=%d", agg.CountFor("alpha"), agg.TotalUnique())
	}

	again := agg.Merge("alpha", batch)
	if len(again) != 0 {
		t.Fatalf("expected an idempotent re-merge, got %d added", len(again))
	}
	if agg.TotalUnique() != 3 {
		t.Fatalf("expected the total to stay at 3, got %d", agg.TotalUnique())
	}
	if agg.DiscardedFor("alpha") != 3 {
		t.Fatalf("expected 3 discarded duplicates, got %d", agg.DiscardedFor("alpha"))
	}
}

func TestMergeDropsKeylessRecords(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	added := agg.Merge("alpha", []Record{
		{Title: "No key at all", Market: "alpha"},
		{Title: "Keyed", URL: "https://example.com/items/1", Market: "alpha"},
	})
	if len(added) != 1 {
		t.Fatalf("expected only the keyed record, got %d", len(added))
	}
	if agg.DiscardedFor("alpha") != 1 {
		t.Fatalf("expected the keyless record to be discarded, got %d", agg.DiscardedFor("alpha"))
	}
}

func TestMergeFallsBackToSKUKey(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	first := agg.Merge("alpha", []Record{{Title: "By SKU", Market: "alpha", SKU: "B0TEST01"}})
	if len(first) != 1 {
		t.Fatalf("expected the SKU-keyed record to merge, got %d", len(first))
	}
	second := agg.Merge("alpha", []Record{{Title: "Same SKU", Market: "alpha", SKU: "B0TEST01"}})
	if len(second) != 0 {
		t.Fatalf("expected the duplicate SKU to be discarded, got %d added", len(second))
	}
}

func TestMergeKeepsMarketsIsolated(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	rec := Record{Title: "Cross-listed", URL: "https://example.com/items/1"}

	a := rec
	a.Market = "alpha"
	b := rec
	b.Market = "beta"

	if got := len(agg.Merge("alpha", []Record{a})); got != 1 {
		t.Fatalf("expected alpha merge to add 1, got %d", got)
	}
	if got := len(agg.Merge("beta", []Record{b})); got != 1 {
		t.Fatalf("expected the same URL on another market to be retained, got %d", got)
	}
	if agg.TotalUnique() != 2 {
		t.Fatalf("expected 2 records across markets, got %d", agg.TotalUnique())
	}
	if len(agg.MarketRecords("alpha")) != 1 || len(agg.MarketRecords("beta")) != 1 {
		t.Fatal("expected one record per market")
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	agg.Merge("alpha", []Record{
		{Title: "Original", URL: "https://example.com/items/1", Market: "alpha"},
	})

	recs := agg.Records()
	recs[0].Title = "Mutated"
	if agg.Records()[0].Title != "Original" {
		t.Fatal("Records() must return a copy")
	}

	market := agg.MarketRecords("alpha")
	market[0].Title = "Mutated"
	if agg.MarketRecords("alpha")[0].Title != "Original" {
		t.Fatal("MarketRecords() must return a copy")
	}

	counts := agg.Counts()
	counts["alpha"] = 99
	if agg.CountFor("alpha") != 1 {
		t.Fatal("Counts() must return a fresh map")
	}
}
