package amazon

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/JakeFAU/market-harvester/internal/harvest"
	"github.com/JakeFAU/market-harvester/internal/market/markettest"
)

const resultsPage = `<!DOCTYPE html>
<html><body>
<div class="s-main-slot">
  <div data-component-type="s-search-result" data-asin="B08N5WRWNW">
    <h2><a href="/dp/B08N5WRWNW"><span>Echo Dot (4th Gen) Smart Speaker</span></a></h2>
    <span class="a-price"><span class="a-offscreen">$49.99</span></span>
    <span class="a-icon-alt">4.7 out of 5 stars</span>
    <span class="a-size-base">(91,074)</span>
    <img class="s-image" src="https://img.example.com/echo4.jpg"/>
  </div>
  <div data-component-type="s-search-result" data-asin="B09B8V1LZ3">
    <h2><a href="/dp/B09B8V1LZ3"><span>Echo Dot (5th Gen)</span></a></h2>
    <span class="a-price"><span class="a-price-whole">59</span><span class="a-offscreen">$59.99</span></span>
    <img class="s-image" src="https://img.example.com/echo5.jpg"/>
  </div>
  <div data-component-type="s-search-result" data-asin="">
    <h2><span>Sponsored listing with no product link</span></h2>
  </div>
</div>
</body></html>`

const emptyPage = `<!DOCTYPE html><html><body><div class="s-main-slot"></div></body></html>`

func newTestSource(t *testing.T, client *markettest.Client, cfg Config) *Source {
	t.Helper()
	src, err := New(markettest.NewPipeline(t, client), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("build source: %v", err)
	}
	return src
}

func TestSearchExtractsRecords(t *testing.T) {
	client := markettest.NewClient().RespondAll(resultsPage)
	src := newTestSource(t, client, Config{})

	records, err := src.Search(context.Background(), "echo dot")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.Title != "Echo Dot (4th Gen) Smart Speaker" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Price != 49.99 || first.Currency != "USD" {
		t.Errorf("price = %v %s", first.Price, first.Currency)
	}
	if first.URL != "https://www.amazon.com/dp/B08N5WRWNW" {
		t.Errorf("url = %q", first.URL)
	}
	if first.SKU != "B08N5WRWNW" {
		t.Errorf("sku = %q", first.SKU)
	}
	if first.Rating != 4.7 {
		t.Errorf("rating = %v", first.Rating)
	}
	if first.ReviewsCount != 91074 {
		t.Errorf("reviews = %d", first.ReviewsCount)
	}
	if first.Market != "amazon" {
		t.Errorf("market = %q", first.Market)
	}
	if first.HarvestedAt.IsZero() {
		t.Errorf("harvested_at not set")
	}

	// The first endpoint variant yielded, so no fallback request went out.
	if calls := client.Calls(); len(calls) != 1 {
		t.Fatalf("expected a single fetch, got %v", calls)
	}
}

func TestSearchCapsAtMaxResults(t *testing.T) {
	client := markettest.NewClient().RespondAll(resultsPage)
	src := newTestSource(t, client, Config{MaxResults: 1})

	records, err := src.Search(context.Background(), "echo dot")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected cap of 1, got %d", len(records))
	}
}

func TestSearchTriesEveryEndpointBeforeParseFailure(t *testing.T) {
	client := markettest.NewClient().RespondAll(emptyPage)
	src := newTestSource(t, client, Config{})

	_, err := src.Search(context.Background(), "echo dot")
	var srcErr *harvest.SourceError
	if !errors.As(err, &srcErr) || srcErr.Kind != harvest.KindParse {
		t.Fatalf("expected parse SourceError, got %v", err)
	}
	if calls := client.Calls(); len(calls) != len(searchEndpoints) {
		t.Fatalf("expected %d endpoint attempts, got %d", len(searchEndpoints), len(calls))
	}
}

func TestSearchSurfacesFetchFailure(t *testing.T) {
	client := markettest.NewClient().Fail(errors.New("connection refused"))
	src := newTestSource(t, client, Config{})

	_, err := src.Search(context.Background(), "echo dot")
	var srcErr *harvest.SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("expected SourceError, got %v", err)
	}
	if srcErr.Kind != harvest.KindTransport {
		t.Fatalf("kind = %s, want transport", srcErr.Kind)
	}
}

func TestSearchRejectsEmptyTerm(t *testing.T) {
	client := markettest.NewClient().RespondAll(resultsPage)
	src := newTestSource(t, client, Config{})

	if _, err := src.Search(context.Background(), "   "); err == nil {
		t.Fatalf("expected empty term to fail")
	}
	if calls := client.Calls(); len(calls) != 0 {
		t.Fatalf("no fetch expected, got %v", calls)
	}
}

func TestSearchURLEncodesTerm(t *testing.T) {
	src := newTestSource(t, markettest.NewClient(), Config{Domain: "amazon.co.uk"})

	got := src.searchURL("/s?k=%s", "4k smart tv")
	want := "https://www.amazon.co.uk/s?k=4k+smart+tv"
	if got != want {
		t.Fatalf("searchURL = %q, want %q", got, want)
	}

	got = src.searchURL("/s?k=%s&sprefix=%s&ref=nb_sb_noss_1", "tv")
	want = "https://www.amazon.co.uk/s?k=tv&sprefix=tv&ref=nb_sb_noss_1"
	if got != want {
		t.Fatalf("searchURL double placeholder = %q, want %q", got, want)
	}
}
