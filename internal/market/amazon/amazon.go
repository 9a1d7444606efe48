// Package amazon implements the Amazon search adapter.
package amazon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/market-harvester/internal/fetch"
	"github.com/JakeFAU/market-harvester/internal/harvest"
	"github.com/JakeFAU/market-harvester/internal/market"
)

const marketName = "amazon"

// Amazon serves different result layouts per entry point, so a blocked or
// empty variant falls through to the next one.
var searchEndpoints = []string{
	"/s?k=%s",
	"/s?k=%s&ref=sr_pg_1",
	"/s?k=%s&i=aps&ref=nb_sb_noss",
	"/s?k=%s&sprefix=%s&ref=nb_sb_noss_1",
	"/s?k=%s&crid=random&sprefix=%s&ref=nb_sb_noss",
}

var (
	containerSelectors = []string{
		`div[data-component-type='s-search-result']`,
		`div[data-asin]:not([data-asin=''])`,
		`.s-result-item[data-asin]`,
		`[data-cel-widget='search_result']`,
	}
	titleSelectors = []string{
		"h2 a span",
		"h2 span",
		".s-size-mini span",
		`[data-cy='title-recipe-title']`,
		".a-size-base-plus",
		".a-size-medium",
	}
	priceSelectors = []string{
		".a-price .a-offscreen",
		".a-price-whole",
		".a-price-range .a-offscreen",
	}
	linkSelectors = []string{
		"h2 a",
		".a-link-normal",
		`a[href*='/dp/']`,
	}
	imageSelectors = []string{"img.s-image", "img"}
)

// Config carries the per-run adapter settings.
type Config struct {
	// Domain selects the marketplace, e.g. "amazon.com" or "amazon.co.uk".
	Domain string
	// MaxResults caps the records returned by one Search call.
	MaxResults int
}

func (c Config) withDefaults() Config {
	if c.Domain == "" {
		c.Domain = "amazon.com"
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 50
	}
	return c
}

// Source searches Amazon result pages through the fetch pipeline.
type Source struct {
	cfg  Config
	base *url.URL
	pipe *fetch.Pipeline
	log  *zap.Logger
}

// New builds the adapter on top of an existing fetch pipeline.
func New(pipe *fetch.Pipeline, cfg Config, log *zap.Logger) (*Source, error) {
	if pipe == nil {
		return nil, errors.New("amazon: nil fetch pipeline")
	}
	cfg = cfg.withDefaults()
	base, err := url.Parse("https://www." + cfg.Domain)
	if err != nil {
		return nil, fmt.Errorf("amazon: parse domain: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{cfg: cfg, base: base, pipe: pipe, log: log}, nil
}

// Name returns the market identifier.
func (s *Source) Name() string { return marketName }

// Search walks the endpoint variants until one yields parseable results.
// A page that fetched fine but matched no selector counts as a parse
// failure only after every variant was tried.
func (s *Source) Search(ctx context.Context, term string) ([]harvest.Record, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.New("amazon: empty search term")
	}

	var (
		lastErr error
		sawPage bool
	)
	for _, endpoint := range searchEndpoints {
		target := s.searchURL(endpoint, term)
		resp, err := s.pipe.Fetch(ctx, fetch.Job{Market: marketName, Term: term, URL: target, Referer: s.base.String() + "/"})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}
		if len(resp.Body) == 0 {
			continue
		}
		sawPage = true

		records, err := s.parseSearch(resp.Body)
		if err != nil {
			s.log.Debug("amazon parse failed", zap.String("url", target), zap.Error(err))
			continue
		}
		if len(records) > 0 {
			s.log.Debug("amazon search done",
				zap.String("term", term),
				zap.Int("records", len(records)),
			)
			return records, nil
		}
	}

	if sawPage {
		return nil, &harvest.SourceError{
			Market: marketName,
			Kind:   harvest.KindParse,
			Err:    errors.New("no results matched any selector"),
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

func (s *Source) searchURL(endpoint, term string) string {
	escaped := url.QueryEscape(term)
	if strings.Count(endpoint, "%s") == 2 {
		return s.base.String() + fmt.Sprintf(endpoint, escaped, escaped)
	}
	return s.base.String() + fmt.Sprintf(endpoint, escaped)
}

func (s *Source) parseSearch(body []byte) ([]harvest.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	containers := findContainers(doc)
	if containers == nil {
		return nil, nil
	}

	var records []harvest.Record
	containers.EachWithBreak(func(_ int, node *goquery.Selection) bool {
		if rec, ok := s.extractResult(node); ok {
			records = append(records, rec)
		}
		return len(records) < s.cfg.MaxResults
	})
	return records, nil
}

func findContainers(doc *goquery.Document) *goquery.Selection {
	for _, sel := range containerSelectors {
		if nodes := doc.Find(sel); nodes.Length() > 0 {
			return nodes
		}
	}
	return nil
}

func (s *Source) extractResult(node *goquery.Selection) (harvest.Record, bool) {
	title := market.FirstText(node, titleSelectors...)
	if title == "" {
		return harvest.Record{}, false
	}

	priceText := market.FirstText(node, priceSelectors...)
	price, _ := market.ExtractPrice(priceText)
	asin, _ := node.Attr("data-asin")

	rec := harvest.Record{
		Title:        title,
		Price:        price,
		Currency:     market.ExtractCurrency(priceText, "USD"),
		URL:          market.AbsoluteURL(s.base, market.FirstAttr(node, "href", linkSelectors...)),
		Market:       marketName,
		ImageURL:     market.AbsoluteURL(s.base, market.ImageSrc(node, imageSelectors...)),
		Availability: "In Stock",
		Seller:       "Amazon",
		SKU:          strings.TrimSpace(asin),
		HarvestedAt:  time.Now().UTC(),
	}
	if rating, ok := market.ExtractRating(market.FirstText(node, ".a-icon-alt")); ok {
		rec.Rating = rating
	}
	if count, ok := reviewsCount(node); ok {
		rec.ReviewsCount = count
	}

	// Without a product URL or an ASIN the record cannot be deduplicated.
	if rec.Key() == "" {
		return harvest.Record{}, false
	}
	return rec, true
}

// Review tallies sit in a plain a-size-base span wrapped in parentheses,
// next to spans reusing the same class for other text.
func reviewsCount(node *goquery.Selection) (int, bool) {
	var (
		count int
		found bool
	)
	node.Find("span.a-size-base").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		text := span.Text()
		if !strings.Contains(text, "(") {
			return true
		}
		count, found = market.ExtractReviewsCount(text)
		return !found
	})
	return count, found
}
