// Package harvest defines core types shared across subsystems.
package harvest

import (
	"time"
)

// Record is one normalized harvested item. Records are created by a market
// adapter at fetch time and are immutable once constructed; after Merge the
// Aggregator owns them.
type Record struct {
	Title        string    `json:"title"`
	Price        float64   `json:"price,omitempty"`
	Currency     string    `json:"currency,omitempty"`
	URL          string    `json:"url"`
	Market       string    `json:"market"`
	ImageURL     string    `json:"image_url,omitempty"`
	Rating       float64   `json:"rating,omitempty"`
	ReviewsCount int       `json:"reviews_count,omitempty"`
	Availability string    `json:"availability,omitempty"`
	Seller       string    `json:"seller,omitempty"`
	Description  string    `json:"description,omitempty"`
	Category     string    `json:"category,omitempty"`
	Brand        string    `json:"brand,omitempty"`
	SKU          string    `json:"sku,omitempty"`
	HarvestedAt  time.Time `json:"harvested_at"`
}

// Key returns the canonical dedup key for the record: the URL when present,
// otherwise a market-scoped stable identifier. An empty key means the record
// cannot be deduplicated and is dropped at merge time.
func (r Record) Key() string {
	if r.URL != "" {
		return r.URL
	}
	if r.SKU != "" {
		return r.Market + "/" + r.SKU
	}
	return ""
}

// Quota is the immutable per-run configuration of the convergence loop.
type Quota struct {
	// TargetTotal is the global unique-record goal.
	TargetTotal int
	// MinPerMarket is the floor every market must reach.
	MinPerMarket int
	// MaxRounds bounds the number of dispatch rounds.
	MaxRounds int
	// SearchTerms are applied, in order, every round.
	SearchTerms []string
	// SearchAttempts is the outer bounded-retry ceiling per search call.
	SearchAttempts int
	// SearchRetryDelay is the fixed delay between outer retry attempts.
	SearchRetryDelay time.Duration
	// SearchTimeout bounds one adapter invocation; expiry yields an empty
	// result for that turn, never a run abort.
	SearchTimeout time.Duration
	// InterRoundDelay is the fixed pause between dispatch rounds.
	InterRoundDelay time.Duration
}

// Normalize fills unset fields with run defaults.
func (q Quota) Normalize() Quota {
	if q.MinPerMarket == 0 {
		q.MinPerMarket = 5
	}
	if q.MaxRounds == 0 {
		q.MaxRounds = 20
	}
	if q.SearchAttempts == 0 {
		q.SearchAttempts = 3
	}
	if q.SearchRetryDelay == 0 {
		q.SearchRetryDelay = 2 * time.Second
	}
	if q.SearchTimeout == 0 {
		q.SearchTimeout = 2 * time.Minute
	}
	if q.InterRoundDelay == 0 {
		q.InterRoundDelay = 2 * time.Second
	}
	return q
}

// Validate rejects quotas that cannot drive a run.
func (q Quota) Validate() error {
	if q.TargetTotal <= 0 {
		return &ConfigError{Field: "target_total", Reason: "must be > 0"}
	}
	if q.MinPerMarket < 0 {
		return &ConfigError{Field: "min_per_market", Reason: "must be >= 0"}
	}
	if q.MaxRounds <= 0 {
		return &ConfigError{Field: "max_rounds", Reason: "must be > 0"}
	}
	if len(q.SearchTerms) == 0 {
		return &ConfigError{Field: "search_terms", Reason: "at least one search term is required"}
	}
	for _, term := range q.SearchTerms {
		if term == "" {
			return &ConfigError{Field: "search_terms", Reason: "terms must be non-empty"}
		}
	}
	return nil
}

// MarketStats tracks per-market outcomes across a run.
type MarketStats struct {
	Market     string `json:"market"`
	Unique     int    `json:"unique"`
	Dispatched int    `json:"dispatched"`
	Failures   int    `json:"failures"`
	AtFloor    bool   `json:"at_floor"`
	LastError  string `json:"last_error,omitempty"`
}

// Result is the terminal state of a run: either the quota was met
// (Complete) or the round budget ran out first (partial success).
type Result struct {
	RunID       string                 `json:"run_id"`
	Complete    bool                   `json:"complete"`
	Rounds      int                    `json:"rounds"`
	TotalUnique int                    `json:"total_unique"`
	StartedAt   time.Time              `json:"started_at"`
	Duration    time.Duration          `json:"duration"`
	Markets     map[string]MarketStats `json:"markets"`
	Records     []Record               `json:"records"`
}

// StatusSnapshot is a point-in-time view of a running harvest, served by the
// status API.
type StatusSnapshot struct {
	RunID          string         `json:"run_id"`
	Running        bool           `json:"running"`
	Round          int            `json:"round"`
	MaxRounds      int            `json:"max_rounds"`
	TotalUnique    int            `json:"total_unique"`
	TargetTotal    int            `json:"target_total"`
	MarketCounts   map[string]int `json:"market_counts"`
	MarketsAtFloor int            `json:"markets_at_floor"`
	StartedAt      time.Time      `json:"started_at,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty"`
}
