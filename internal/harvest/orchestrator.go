package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/market-harvester/internal/metrics"
	"github.com/JakeFAU/market-harvester/internal/progress"
	"github.com/JakeFAU/market-harvester/internal/retry"
)

// Deps wires the orchestrator's collaborators. Sources is the only required
// field; everything else falls back to a working default.
type Deps struct {
	// Sources are the market adapters, dispatched in this order every round.
	Sources []Source
	// Aggregator holds the dedup state. A fresh one is created when nil,
	// which is what every production caller wants; tests inject pre-filled
	// ones to exercise resume behavior.
	Aggregator *Aggregator
	// Publisher receives each newly merged record. Optional.
	Publisher Publisher
	// Emitter receives lifecycle progress events. Optional.
	Emitter progress.Emitter
	// Clock supplies timestamps. Optional.
	Clock Clock
	// IDs mints run IDs. Optional.
	IDs IDGenerator
	// Pauser implements the inter-round delay. Optional.
	Pauser Pauser
	// Logger is the structured logger. Optional.
	Logger *zap.Logger
}

// Orchestrator drives the convergence loop: dispatch every search term to
// every active market, merge the results, and repeat until the quota is met
// or the round budget runs out. A single Orchestrator serves one run at a
// time; Run reports an error if called while another run is in flight.
type Orchestrator struct {
	quota   Quota
	sources []Source
	agg     *Aggregator
	pub     Publisher
	emitter progress.Emitter
	clock   Clock
	ids     IDGenerator
	pauser  Pauser
	log     *zap.Logger

	inFlight atomic.Bool

	mu     sync.RWMutex
	status StatusSnapshot
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewOrchestrator validates the quota and dependency set and returns a ready
// Orchestrator. Configuration problems surface here as ConfigError, before
// any round runs.
func NewOrchestrator(quota Quota, deps Deps) (*Orchestrator, error) {
	quota = quota.Normalize()
	if err := quota.Validate(); err != nil {
		return nil, err
	}
	if len(deps.Sources) == 0 {
		return nil, &ConfigError{Field: "sources", Reason: "at least one market adapter is required"}
	}
	names := make(map[string]struct{}, len(deps.Sources))
	for _, src := range deps.Sources {
		if src == nil {
			return nil, &ConfigError{Field: "sources", Reason: "nil adapter"}
		}
		name := src.Name()
		if name == "" {
			return nil, &ConfigError{Field: "sources", Reason: "adapter with empty name"}
		}
		if _, dup := names[name]; dup {
			return nil, &ConfigError{Field: "sources", Reason: fmt.Sprintf("duplicate adapter %q", name)}
		}
		names[name] = struct{}{}
	}

	o := &Orchestrator{
		quota:   quota,
		sources: deps.Sources,
		agg:     deps.Aggregator,
		pub:     deps.Publisher,
		emitter: deps.Emitter,
		clock:   deps.Clock,
		ids:     deps.IDs,
		pauser:  deps.Pauser,
		log:     deps.Logger,
	}
	if o.agg == nil {
		o.agg = NewAggregator()
	}
	if o.emitter == nil {
		o.emitter = progress.NopEmitter{}
	}
	if o.clock == nil {
		o.clock = systemClock{}
	}
	if o.pauser == nil {
		o.pauser = TimerPauser{}
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	return o, nil
}

// Aggregate exposes the dedup state so the status API can serve counts and
// record listings mid-run.
func (o *Orchestrator) Aggregate() *Aggregator {
	return o.agg
}

// Run executes the convergence loop until the quota is met, the round
// budget is spent, or ctx is canceled. Cancellation is honored between
// dispatch groups and returns ctx.Err(); everything short of that is
// absorbed into per-market stats and the run carries on.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer o.inFlight.Store(false)

	runID, err := o.newRunID()
	if err != nil {
		return nil, err
	}
	ctx = WithRunID(ctx, runID)

	started := o.clock.Now()
	o.setRunning(runID, started)
	defer o.clearRunning()

	o.log.Info("harvest run starting",
		zap.String("run_id", runID),
		zap.Int("target_total", o.quota.TargetTotal),
		zap.Int("min_per_market", o.quota.MinPerMarket),
		zap.Int("max_rounds", o.quota.MaxRounds),
		zap.Int("markets", len(o.sources)),
		zap.Strings("terms", o.quota.SearchTerms),
	)
	o.emit(progress.Event{
		RunID: runID,
		TS:    started.UTC(),
		Stage: progress.StageRunStart,
		Total: o.agg.TotalUnique(),
		Note:  fmt.Sprintf("target=%d markets=%d", o.quota.TargetTotal, len(o.sources)),
	})

	stats := make(map[string]*MarketStats, len(o.sources))
	for _, src := range o.sources {
		stats[src.Name()] = &MarketStats{Market: src.Name()}
	}

	rounds := 0
	complete := false
	for {
		if o.quotaMet() {
			complete = true
			break
		}
		if rounds == o.quota.MaxRounds {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, o.failRun(runID, err)
		}

		rounds++
		o.markRound(rounds)
		if err := o.runRound(ctx, runID, rounds, stats); err != nil {
			return nil, o.failRun(runID, err)
		}

		if rounds < o.quota.MaxRounds && !o.quotaMet() {
			if err := o.pauser.Pause(ctx, o.quota.InterRoundDelay); err != nil {
				return nil, o.failRun(runID, err)
			}
		}
	}

	elapsed := o.clock.Now().Sub(started)
	result := &Result{
		RunID:       runID,
		Complete:    complete,
		Rounds:      rounds,
		TotalUnique: o.agg.TotalUnique(),
		StartedAt:   started,
		Duration:    elapsed,
		Markets:     make(map[string]MarketStats, len(o.sources)),
		Records:     o.agg.Records(),
	}
	for _, src := range o.sources {
		st := stats[src.Name()]
		st.Unique = o.agg.CountFor(src.Name())
		st.AtFloor = st.Unique >= o.quota.MinPerMarket
		result.Markets[src.Name()] = *st
	}

	metrics.ObserveRunDuration(elapsed)
	o.log.Info("harvest run finished",
		zap.String("run_id", runID),
		zap.Bool("complete", complete),
		zap.Int("rounds", rounds),
		zap.Int("total_unique", result.TotalUnique),
		zap.Duration("elapsed", elapsed),
	)
	o.emit(progress.Event{
		RunID: runID,
		TS:    o.clock.Now().UTC(),
		Stage: progress.StageRunDone,
		Total: result.TotalUnique,
		Dur:   elapsed,
		Note:  fmt.Sprintf("complete=%t rounds=%d", complete, rounds),
	})
	return result, nil
}

// runRound dispatches every search term to the active markets and merges
// what comes back. Only context errors escape; adapter failures are folded
// into stats.
func (o *Orchestrator) runRound(ctx context.Context, runID string, round int, stats map[string]*MarketStats) error {
	started := o.clock.Now()
	active := o.activeSources()
	o.log.Info("dispatch round starting",
		zap.String("run_id", runID),
		zap.Int("round", round),
		zap.Int("max_rounds", o.quota.MaxRounds),
		zap.Int("active_markets", len(active)),
		zap.Int("total_unique", o.agg.TotalUnique()),
	)

	for _, term := range o.quota.SearchTerms {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, turn := range o.dispatch(ctx, active, term) {
			name := turn.source.Name()
			st := stats[name]
			st.Dispatched++
			if turn.err != nil {
				st.Failures++
				st.LastError = turn.err.Error()
				o.log.Warn("search turn failed",
					zap.String("run_id", runID),
					zap.String("market", name),
					zap.String("term", term),
					zap.String("kind", KindLabel(turn.err)),
					zap.Error(turn.err),
				)
				continue
			}
			added := o.agg.Merge(name, turn.records)
			st.Unique = o.agg.CountFor(name)
			metrics.ObserveMerge(name, len(added), len(turn.records)-len(added))
			o.log.Debug("search batch merged",
				zap.String("run_id", runID),
				zap.String("market", name),
				zap.String("term", term),
				zap.Int("batch", len(turn.records)),
				zap.Int("added", len(added)),
				zap.Int("market_unique", st.Unique),
			)
			o.publish(ctx, name, added)
			o.emit(progress.Event{
				RunID:  runID,
				TS:     o.clock.Now().UTC(),
				Stage:  progress.StageSearchDone,
				Market: name,
				Term:   term,
				Round:  round,
				Added:  len(added),
				Total:  o.agg.TotalUnique(),
			})
		}
	}

	o.touchStatus()
	metrics.ObserveRound()
	elapsed := o.clock.Now().Sub(started)
	o.log.Info("dispatch round finished",
		zap.String("run_id", runID),
		zap.Int("round", round),
		zap.Int("total_unique", o.agg.TotalUnique()),
		zap.Duration("elapsed", elapsed),
	)
	o.emit(progress.Event{
		RunID: runID,
		TS:    o.clock.Now().UTC(),
		Stage: progress.StageRoundDone,
		Round: round,
		Total: o.agg.TotalUnique(),
		Dur:   elapsed,
	})
	return nil
}

type searchTurn struct {
	source  Source
	records []Record
	err     error
}

// dispatch fans one term out to every active source concurrently and waits
// for the whole group. Each goroutine owns one result slot, so no locking
// is needed on the way back.
func (o *Orchestrator) dispatch(ctx context.Context, active []Source, term string) []searchTurn {
	turns := make([]searchTurn, len(active))
	var wg sync.WaitGroup
	for i, src := range active {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			records, err := o.searchOnce(ctx, src, term)
			turns[i] = searchTurn{source: src, records: records, err: err}
		}(i, src)
	}
	wg.Wait()
	return turns
}

// searchOnce runs one adapter invocation under the per-call timeout, retried
// up to the quota's attempt ceiling. A deadline on a single call is just
// another failed attempt; only parent cancellation escapes unretried.
func (o *Orchestrator) searchOnce(ctx context.Context, src Source, term string) ([]Record, error) {
	metrics.IncActiveSearches()
	defer metrics.DecActiveSearches()

	records, err := retry.DoValue(ctx, retry.Options{
		Attempts: o.quota.SearchAttempts,
		Delay:    o.quota.SearchRetryDelay,
	}, func() ([]Record, error) {
		callCtx, cancel := context.WithTimeout(ctx, o.quota.SearchTimeout)
		defer cancel()
		return src.Search(callCtx, term)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		kind := KindTransport
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return nil, NewSourceError(src.Name(), kind, err)
	}
	return records, nil
}

func (o *Orchestrator) publish(ctx context.Context, market string, added []Record) {
	if o.pub == nil {
		return
	}
	for _, rec := range added {
		if err := o.pub.Publish(ctx, rec); err != nil {
			metrics.ObservePublishError(market)
			o.log.Warn("record publish failed",
				zap.String("market", market),
				zap.String("url", rec.URL),
				zap.Error(err),
			)
		}
	}
}

// quotaMet reports whether the global target and every per-market floor are
// satisfied.
func (o *Orchestrator) quotaMet() bool {
	if o.agg.TotalUnique() < o.quota.TargetTotal {
		return false
	}
	for _, src := range o.sources {
		if o.agg.CountFor(src.Name()) < o.quota.MinPerMarket {
			return false
		}
	}
	return true
}

// activeSources returns the markets that still owe records this round: any
// market under its floor, or every market while the global target is unmet.
func (o *Orchestrator) activeSources() []Source {
	total := o.agg.TotalUnique()
	active := make([]Source, 0, len(o.sources))
	for _, src := range o.sources {
		if total < o.quota.TargetTotal || o.agg.CountFor(src.Name()) < o.quota.MinPerMarket {
			active = append(active, src)
		}
	}
	return active
}

func (o *Orchestrator) newRunID() (string, error) {
	if o.ids == nil {
		return fmt.Sprintf("run-%d", o.clock.Now().UnixNano()), nil
	}
	id, err := o.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("new run id: %w", err)
	}
	return id, nil
}

func (o *Orchestrator) failRun(runID string, err error) error {
	o.log.Warn("harvest run aborted",
		zap.String("run_id", runID),
		zap.Error(err),
	)
	o.emit(progress.Event{
		RunID: runID,
		TS:    o.clock.Now().UTC(),
		Stage: progress.StageRunError,
		Total: o.agg.TotalUnique(),
		Note:  err.Error(),
	})
	return err
}

func (o *Orchestrator) emit(evt progress.Event) {
	o.emitter.Emit(evt)
}

// Status returns a point-in-time view of the run, safe to call from other
// goroutines while Run is executing.
func (o *Orchestrator) Status() StatusSnapshot {
	o.mu.RLock()
	snap := o.status
	o.mu.RUnlock()

	counts := o.agg.Counts()
	atFloor := 0
	for _, src := range o.sources {
		if counts[src.Name()] >= o.quota.MinPerMarket {
			atFloor++
		}
	}
	snap.MarketCounts = counts
	snap.TotalUnique = o.agg.TotalUnique()
	snap.MarketsAtFloor = atFloor
	snap.TargetTotal = o.quota.TargetTotal
	snap.MaxRounds = o.quota.MaxRounds
	return snap
}

func (o *Orchestrator) setRunning(runID string, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = StatusSnapshot{RunID: runID, Running: true, StartedAt: at, UpdatedAt: at}
}

func (o *Orchestrator) markRound(round int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.Round = round
	o.status.UpdatedAt = o.clock.Now()
}

func (o *Orchestrator) touchStatus() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.UpdatedAt = o.clock.Now()
}

func (o *Orchestrator) clearRunning() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.Running = false
	o.status.UpdatedAt = o.clock.Now()
}
