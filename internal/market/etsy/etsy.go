// Package etsy implements the Etsy search adapter.
package etsy

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

const (
	marketName = "etsy"
	baseURL    = "https://www.etsy.com"
)

// Etsy rotates between result page variants; the category endpoint takes
// the term twice.
var searchEndpoints = []string{
	"/search?q=%s&ref=search_bar",
	"/search?q=%s&order=most_relevant",
	"/search?q=%s&explicit=1",
	"/c/%s?q=%s",
}

var (
	containerSelectors = []string{
		`div[data-test-id='listing-card']`,
		"div.v2-listing-card",
		"div.listing-card",
		`article[data-test-id]`,
	}
	titleSelectors = []string{
		"h3.v2-listing-card__title",
		`a[data-test-id='listing-link']`,
	}
	linkSelectors = []string{
		`a[data-test-id='listing-link']`,
		"a",
	}
	imageSelectors = []string{
		`img[data-test-id='listing-card-image']`,
		"img",
	}
)

// Config carries the per-run adapter settings.
type Config struct {
	// MaxResults caps the records returned by one Search call.
	MaxResults int
}

func (c Config) withDefaults() Config {
	if c.MaxResults <= 0 {
		c.MaxResults = 50
	}
	return c
}

// Source searches Etsy listing cards through the fetch pipeline.
type Source struct {
	cfg  Config
	base *url.URL
	pipe *fetch.Pipeline
	log  *zap.Logger
}

// New builds the adapter on top of an existing fetch pipeline.
func New(pipe *fetch.Pipeline, cfg Config, log *zap.Logger) (*Source, error) {
	if pipe == nil {
		return nil, errors.New("etsy: nil fetch pipeline")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("etsy: parse base url: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{cfg: cfg.withDefaults(), base: base, pipe: pipe, log: log}, nil
}

// Name returns the market identifier.
func (s *Source) Name() string { return marketName }

// Search walks the endpoint variants until one yields parseable listings.
func (s *Source) Search(ctx context.Context, term string) ([]harvest.Record, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.New("etsy: empty search term")
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
			s.log.Debug("etsy parse failed", zap.String("url", target), zap.Error(err))
			continue
		}
		if len(records) > 0 {
			s.log.Debug("etsy search done", zap.String("term", term), zap.Int("records", len(records)))
			return records, nil
		}
	}

	if sawPage {
		return nil, &harvest.SourceError{
			Market: marketName,
			Kind:   harvest.KindParse,
			Err:    errors.New("no listing cards matched any selector"),
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
		return baseURL + fmt.Sprintf(endpoint, escaped, escaped)
	}
	return baseURL + fmt.Sprintf(endpoint, escaped)
}

func (s *Source) parseSearch(body []byte) ([]harvest.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var containers *goquery.Selection
	for _, sel := range containerSelectors {
		if nodes := doc.Find(sel); nodes.Length() > 0 {
			containers = nodes
			break
		}
	}
	if containers == nil {
		return nil, nil
	}

	var records []harvest.Record
	containers.EachWithBreak(func(_ int, node *goquery.Selection) bool {
		if rec, ok := s.extractListing(node); ok {
			records = append(records, rec)
		}
		return len(records) < s.cfg.MaxResults
	})
	return records, nil
}

func (s *Source) extractListing(node *goquery.Selection) (harvest.Record, bool) {
	title := market.FirstText(node, titleSelectors...)
	if title == "" {
		return harvest.Record{}, false
	}

	priceText := market.FirstText(node, "span.currency-value")
	price, _ := market.ExtractPrice(priceText)
	symbol := market.FirstText(node, "span.currency-symbol")

	rec := harvest.Record{
		Title:        title,
		Price:        price,
		Currency:     market.ExtractCurrency(symbol, "USD"),
		URL:          market.AbsoluteURL(s.base, market.FirstAttr(node, "href", linkSelectors...)),
		Market:       marketName,
		ImageURL:     market.AbsoluteURL(s.base, market.ImageSrc(node, imageSelectors...)),
		Availability: "Available",
		Seller:       "Etsy Shop",
		HarvestedAt:  time.Now().UTC(),
	}
	if seller := market.FirstText(node, "p.shop-name"); seller != "" {
		rec.Seller = seller
	}
	if rating, ok := ratingFromScreenReader(node); ok {
		rec.Rating = rating
	}
	if count, ok := market.ExtractReviewsCount(market.FirstText(node, "span.shop2-review-review")); ok {
		rec.ReviewsCount = count
	}

	var desc []string
	if shipping := market.FirstText(node, "span.free-shipping-note"); shipping != "" {
		desc = append(desc, "Shipping: "+shipping)
	}
	if favorites, ok := market.ExtractReviewsCount(market.FirstText(node, "span.favorite-count")); ok {
		desc = append(desc, fmt.Sprintf("%d favorites", favorites))
	}
	rec.Description = strings.Join(desc, " - ")

	if rec.Key() == "" {
		return harvest.Record{}, false
	}
	return rec, true
}

// Ratings hide in screen-reader spans shared with other accessibility text,
// so only spans spelling out the star scale count.
func ratingFromScreenReader(node *goquery.Selection) (float64, bool) {
	var (
		rating float64
		found  bool
	)
	node.Find("span.screen-reader-only").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		text := span.Text()
		if !strings.Contains(text, "out of 5 stars") {
			return true
		}
		rating, found = market.ExtractRating(text)
		return !found
	})
	return rating, found
}
