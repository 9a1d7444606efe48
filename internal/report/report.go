// Package report turns a finished harvest into the aggregate run report:
// summary, retained products, per-market stats, and the optional price,
// stock, and trend analyses. Builders sort every list with full tie-breaks
// so serialized reports are deterministic for identical inputs.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/JakeFAU/market-harvester/internal/harvest"
)

// defaultTopN bounds ranked lists (best deals, top rated, keywords).
const defaultTopN = 10

// minKeywordLen drops tokens too short to describe a product.
const minKeywordLen = 3

// stopwords are filtered out of title keyword counts.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "in": {}, "is": {},
	"it": {}, "of": {}, "on": {}, "or": {}, "per": {}, "the": {},
	"to": {}, "with": {}, "you": {}, "your": {},
}

// priceBands are the fixed histogram buckets for trend analysis, in order.
var priceBands = []struct {
	label string
	upTo  float64
}{
	{"0-25", 25},
	{"25-50", 50},
	{"50-100", 100},
	{"100-250", 250},
	{"250-500", 500},
	{"500+", 0},
}

// Options select which analyses Build computes.
type Options struct {
	// TrackPrices enables the per-market price analysis.
	TrackPrices bool
	// TrackStock enables the availability analysis.
	TrackStock bool
	// TrackTrends enables the trend analysis.
	TrackTrends bool
	// TopN bounds ranked lists. Defaults to 10.
	TopN int
	// SearchTerms annotate the summary; the run result does not carry them.
	SearchTerms []string
}

// Summary is the run headline.
type Summary struct {
	RunID           string    `json:"run_id"`
	TotalProducts   int       `json:"total_products"`
	Markets         []string  `json:"markets"`
	SearchTerms     []string  `json:"search_terms,omitempty"`
	Rounds          int       `json:"rounds"`
	Complete        bool      `json:"complete"`
	DurationSeconds float64   `json:"duration_seconds"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// PriceStats describe one market's observed prices.
type PriceStats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// PriceAnalysis groups price statistics by market and surfaces the
// cheapest finds across all of them.
type PriceAnalysis struct {
	ByMarket  map[string]PriceStats `json:"by_market"`
	BestDeals []harvest.Record      `json:"best_deals"`
}

// StockAlert flags one out-of-stock listing.
type StockAlert struct {
	Product string `json:"product"`
	Market  string `json:"market"`
	Status  string `json:"status"`
}

// StockAnalysis buckets listings by availability.
type StockAnalysis struct {
	InStock         int            `json:"in_stock_count"`
	OutOfStock      int            `json:"out_of_stock_count"`
	InStockByMarket map[string]int `json:"in_stock_by_market"`
	Alerts          []StockAlert   `json:"stock_alerts"`
}

// KeywordCount is one ranked title keyword.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// PriceBand is one histogram bucket.
type PriceBand struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// TrendAnalysis ranks listings and summarizes the catalog shape.
type TrendAnalysis struct {
	TopRated         []harvest.Record `json:"top_rated"`
	MostReviewed     []harvest.Record `json:"most_reviewed"`
	MarketPopularity map[string]int   `json:"market_popularity"`
	TopKeywords      []KeywordCount   `json:"top_keywords"`
	PriceBands       []PriceBand      `json:"price_bands"`
}

// Report is the aggregate output of a harvest run.
type Report struct {
	Summary       Summary                        `json:"summary"`
	Products      []harvest.Record               `json:"products"`
	MarketStats   map[string]harvest.MarketStats `json:"market_stats"`
	PriceAnalysis *PriceAnalysis                 `json:"price_analysis,omitempty"`
	StockAnalysis *StockAnalysis                 `json:"stock_analysis,omitempty"`
	TrendAnalysis *TrendAnalysis                 `json:"trend_analysis,omitempty"`
}

// Build assembles the report for a finished run. records overrides the
// result's own record list when non-nil, which lets callers report on a
// filtered or re-loaded set.
func Build(result *harvest.Result, records []harvest.Record, opts Options) *Report {
	if records == nil && result != nil {
		records = result.Records
	}
	if opts.TopN <= 0 {
		opts.TopN = defaultTopN
	}

	rep := &Report{
		Products: records,
		Summary: Summary{
			TotalProducts: len(records),
			SearchTerms:   opts.SearchTerms,
			GeneratedAt:   time.Now().UTC(),
		},
	}
	if result != nil {
		rep.Summary.RunID = result.RunID
		rep.Summary.Rounds = result.Rounds
		rep.Summary.Complete = result.Complete
		rep.Summary.DurationSeconds = result.Duration.Seconds()
		rep.MarketStats = result.Markets
		for market := range result.Markets {
			rep.Summary.Markets = append(rep.Summary.Markets, market)
		}
		sort.Strings(rep.Summary.Markets)
	}

	if opts.TrackPrices {
		rep.PriceAnalysis = analyzePrices(records, opts.TopN)
	}
	if opts.TrackStock {
		rep.StockAnalysis = analyzeStock(records)
	}
	if opts.TrackTrends {
		rep.TrendAnalysis = analyzeTrends(records, opts.TopN)
	}
	return rep
}

func analyzePrices(records []harvest.Record, topN int) *PriceAnalysis {
	byMarket := make(map[string][]float64)
	var priced []harvest.Record
	for _, rec := range records {
		if rec.Price <= 0 {
			continue
		}
		byMarket[rec.Market] = append(byMarket[rec.Market], rec.Price)
		priced = append(priced, rec)
	}

	analysis := &PriceAnalysis{ByMarket: make(map[string]PriceStats, len(byMarket))}
	for market, prices := range byMarket {
		analysis.ByMarket[market] = priceStats(prices)
	}

	sort.Slice(priced, func(i, j int) bool {
		if priced[i].Price != priced[j].Price {
			return priced[i].Price < priced[j].Price
		}
		if priced[i].Title != priced[j].Title {
			return priced[i].Title < priced[j].Title
		}
		return priced[i].URL < priced[j].URL
	})
	analysis.BestDeals = top(priced, topN)
	return analysis
}

func priceStats(prices []float64) PriceStats {
	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)

	sum := 0.0
	for _, p := range sorted {
		sum += p
	}
	n := len(sorted)
	median := 0.0
	if n > 0 {
		if n%2 == 1 {
			median = sorted[n/2]
		} else {
			median = (sorted[n/2-1] + sorted[n/2]) / 2
		}
	}
	stats := PriceStats{Count: n, Median: median}
	if n > 0 {
		stats.Min = sorted[0]
		stats.Max = sorted[n-1]
		stats.Mean = sum / float64(n)
	}
	return stats
}

func analyzeStock(records []harvest.Record) *StockAnalysis {
	analysis := &StockAnalysis{InStockByMarket: make(map[string]int)}
	for _, rec := range records {
		availability := strings.ToLower(rec.Availability)
		if !strings.Contains(availability, "stock") && !strings.Contains(availability, "available") {
			continue
		}
		if strings.Contains(availability, "out of stock") || strings.Contains(availability, "unavailable") {
			analysis.OutOfStock++
			analysis.Alerts = append(analysis.Alerts, StockAlert{
				Product: rec.Title,
				Market:  rec.Market,
				Status:  "out of stock",
			})
			continue
		}
		analysis.InStock++
		analysis.InStockByMarket[rec.Market]++
	}

	sort.Slice(analysis.Alerts, func(i, j int) bool {
		if analysis.Alerts[i].Market != analysis.Alerts[j].Market {
			return analysis.Alerts[i].Market < analysis.Alerts[j].Market
		}
		return analysis.Alerts[i].Product < analysis.Alerts[j].Product
	})
	return analysis
}

func analyzeTrends(records []harvest.Record, topN int) *TrendAnalysis {
	analysis := &TrendAnalysis{MarketPopularity: make(map[string]int)}

	var rated, reviewed []harvest.Record
	keywords := make(map[string]int)
	bands := make([]int, len(priceBands))
	for _, rec := range records {
		analysis.MarketPopularity[rec.Market]++
		if rec.Rating > 0 {
			rated = append(rated, rec)
		}
		if rec.ReviewsCount > 0 {
			reviewed = append(reviewed, rec)
		}
		for _, word := range titleKeywords(rec.Title) {
			keywords[word]++
		}
		if rec.Price > 0 {
			bands[bandIndex(rec.Price)]++
		}
	}

	sort.Slice(rated, func(i, j int) bool {
		if rated[i].Rating != rated[j].Rating {
			return rated[i].Rating > rated[j].Rating
		}
		if rated[i].ReviewsCount != rated[j].ReviewsCount {
			return rated[i].ReviewsCount > rated[j].ReviewsCount
		}
		return rated[i].Title < rated[j].Title
	})
	analysis.TopRated = top(rated, topN)

	sort.Slice(reviewed, func(i, j int) bool {
		if reviewed[i].ReviewsCount != reviewed[j].ReviewsCount {
			return reviewed[i].ReviewsCount > reviewed[j].ReviewsCount
		}
		if reviewed[i].Rating != reviewed[j].Rating {
			return reviewed[i].Rating > reviewed[j].Rating
		}
		return reviewed[i].Title < reviewed[j].Title
	})
	analysis.MostReviewed = top(reviewed, topN)

	ranked := make([]KeywordCount, 0, len(keywords))
	for word, count := range keywords {
		ranked = append(ranked, KeywordCount{Keyword: word, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Keyword < ranked[j].Keyword
	})
	analysis.TopKeywords = top(ranked, topN)

	for i, band := range priceBands {
		analysis.PriceBands = append(analysis.PriceBands, PriceBand{Label: band.label, Count: bands[i]})
	}
	return analysis
}

// titleKeywords tokenizes a product title into lowercase words, dropping
// stopwords and short fragments.
func titleKeywords(title string) []string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var words []string
	for _, field := range fields {
		if len(field) < minKeywordLen {
			continue
		}
		if _, stop := stopwords[field]; stop {
			continue
		}
		words = append(words, field)
	}
	return words
}

func bandIndex(price float64) int {
	for i, band := range priceBands {
		if band.upTo > 0 && price < band.upTo {
			return i
		}
	}
	return len(priceBands) - 1
}

func top[T any](items []T, n int) []T {
	if len(items) > n {
		items = items[:n]
	}
	return items
}

// String renders a one-line report digest for logs.
func (r *Report) String() string {
	return fmt.Sprintf("report run=%s products=%d markets=%d complete=%t",
		r.Summary.RunID, r.Summary.TotalProducts, len(r.Summary.Markets), r.Summary.Complete)
}
