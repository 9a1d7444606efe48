// Package progress defines the event structures emitted during a harvest run.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageFetchDone  Stage = "FETCH_DONE"
	StageSearchDone Stage = "SEARCH_DONE"
	StageRoundDone  Stage = "ROUND_DONE"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
)

// Event captures a single component of harvest progress.
type Event struct {
	// RunID identifies the harvest run the event belongs to.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Market scopes fetch and search events to one marketplace.
	Market string
	// Term is the search term driving a search event.
	Term string
	// Round is the dispatch round counter, starting at 1.
	Round int
	// Outcome is a low-cardinality classification (fetch outcome or error
	// kind) for fetch/search completions.
	Outcome string
	// Added counts newly merged records for search/round completions.
	Added int
	// Total carries the cumulative unique record count.
	Total int
	// Dur captures execution latency for fetches, searches, and the run.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageFetchDone:
		if e.Market == "" {
			return errors.New("fetch done requires market")
		}
		if e.Outcome == "" {
			return errors.New("fetch done requires outcome")
		}
	case StageSearchDone:
		if e.Market == "" {
			return errors.New("search done requires market")
		}
	case StageRoundDone:
		if e.Round <= 0 {
			return errors.New("round done requires a positive round")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
