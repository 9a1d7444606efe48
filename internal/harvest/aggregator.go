package harvest

import (
	"sync"
)

// Aggregator owns the set of canonical keys seen so far, per market. Merge
// is idempotent: re-merging an already-seen batch adds nothing. Keys are
// never compared across markets, so the same physical item listed on two
// marketplaces is retained twice.
//
// The orchestrator is the only writer; the mutex exists so the status API
// can read counts and snapshots mid-run.
type Aggregator struct {
	mu        sync.RWMutex
	seen      map[string]map[string]struct{}
	records   []Record
	perMarket map[string][]Record
	discarded map[string]int
}

// NewAggregator builds an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		seen:      make(map[string]map[string]struct{}),
		perMarket: make(map[string][]Record),
		discarded: make(map[string]int),
	}
}

// Merge folds a batch into the aggregate and returns only the records that
// were new for that market. Records without a canonical key are dropped.
func (a *Aggregator) Merge(market string, batch []Record) []Record {
	if len(batch) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	keys := a.seen[market]
	if keys == nil {
		keys = make(map[string]struct{})
		a.seen[market] = keys
	}

	var added []Record
	for _, rec := range batch {
		key := rec.Key()
		if key == "" {
			a.discarded[market]++
			continue
		}
		if _, dup := keys[key]; dup {
			a.discarded[market]++
			continue
		}
		keys[key] = struct{}{}
		a.records = append(a.records, rec)
		a.perMarket[market] = append(a.perMarket[market], rec)
		added = append(added, rec)
	}
	return added
}

// CountFor returns the unique record count for one market.
func (a *Aggregator) CountFor(market string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.seen[market])
}

// TotalUnique returns the sum of per-market unique counts.
func (a *Aggregator) TotalUnique() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// Records returns a snapshot of every retained record in merge order.
func (a *Aggregator) Records() []Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Record, len(a.records))
	copy(out, a.records)
	return out
}

// MarketRecords returns a snapshot of one market's retained records.
func (a *Aggregator) MarketRecords(market string) []Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	recs := a.perMarket[market]
	out := make([]Record, len(recs))
	copy(out, recs)
	return out
}

// Counts returns per-market unique counts as a fresh map.
func (a *Aggregator) Counts() map[string]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]int, len(a.seen))
	for market, keys := range a.seen {
		out[market] = len(keys)
	}
	return out
}

// DiscardedFor returns how many batch entries were dropped as duplicates or
// keyless for one market.
func (a *Aggregator) DiscardedFor(market string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.discarded[market]
}
