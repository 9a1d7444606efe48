// Package walmart implements the Walmart search adapter.
package walmart

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
	marketName = "walmart"
	baseURL    = "https://www.walmart.com"
)

var (
	containerSelectors = []string{
		`div[data-automation-id='product-tile']`,
		`div[data-item-id]`,
	}
	titleSelectors = []string{
		`a[data-automation-id='product-title']`,
		`span[data-automation-id='product-title']`,
	}
	linkSelectors = []string{
		`a[data-automation-id='product-title']`,
		"a",
	}
	priceSelectors = []string{
		`span[itemprop='price']`,
		"span.price-current",
		`div[data-automation-id='product-price']`,
	}
	imageSelectors = []string{
		`img[data-automation-id='product-image']`,
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

// Source searches Walmart product tiles through the fetch pipeline.
type Source struct {
	cfg  Config
	base *url.URL
	pipe *fetch.Pipeline
	log  *zap.Logger
}

// New builds the adapter on top of an existing fetch pipeline.
func New(pipe *fetch.Pipeline, cfg Config, log *zap.Logger) (*Source, error) {
	if pipe == nil {
		return nil, errors.New("walmart: nil fetch pipeline")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("walmart: parse base url: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{cfg: cfg.withDefaults(), base: base, pipe: pipe, log: log}, nil
}

// Name returns the market identifier.
func (s *Source) Name() string { return marketName }

// Search runs one term against the /search endpoint.
func (s *Source) Search(ctx context.Context, term string) ([]harvest.Record, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.New("walmart: empty search term")
	}

	target := fmt.Sprintf("%s/search?q=%s", baseURL, url.QueryEscape(term))
	resp, err := s.pipe.Fetch(ctx, fetch.Job{Market: marketName, Term: term, URL: target, Referer: baseURL + "/"})
	if err != nil {
		return nil, err
	}
	if len(resp.Body) == 0 {
		return nil, nil
	}

	records, err := s.parseSearch(resp.Body)
	if err != nil {
		return nil, &harvest.SourceError{Market: marketName, Kind: harvest.KindParse, Err: err}
	}
	if len(records) == 0 {
		return nil, &harvest.SourceError{
			Market: marketName,
			Kind:   harvest.KindParse,
			Err:    errors.New("no product tiles matched any selector"),
		}
	}
	s.log.Debug("walmart search done", zap.String("term", term), zap.Int("records", len(records)))
	return records, nil
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
		if rec, ok := s.extractTile(node); ok {
			records = append(records, rec)
		}
		return len(records) < s.cfg.MaxResults
	})
	return records, nil
}

func (s *Source) extractTile(node *goquery.Selection) (harvest.Record, bool) {
	title := market.FirstText(node, titleSelectors...)
	if title == "" {
		return harvest.Record{}, false
	}

	priceText := market.FirstText(node, priceSelectors...)
	price, _ := market.ExtractPrice(priceText)
	fulfillment := market.FirstText(node, `div[data-automation-id='fulfillment-badge']`)

	rec := harvest.Record{
		Title:        title,
		Price:        price,
		Currency:     "USD",
		URL:          market.AbsoluteURL(s.base, market.FirstAttr(node, "href", linkSelectors...)),
		Market:       marketName,
		ImageURL:     market.AbsoluteURL(s.base, market.ImageSrc(node, imageSelectors...)),
		Availability: availability(fulfillment),
		Seller:       "Walmart",
		HarvestedAt:  time.Now().UTC(),
	}
	if seller := market.FirstText(node, "span.seller-name"); seller != "" {
		rec.Seller = seller
	}
	if rating, ok := market.ExtractRating(market.FirstText(node, "span.average-rating")); ok {
		rec.Rating = rating
	}
	if count, ok := market.ExtractReviewsCount(market.FirstText(node, "span.review-count")); ok {
		rec.ReviewsCount = count
	}

	var desc []string
	if fulfillment != "" {
		desc = append(desc, "Delivery: "+fulfillment)
	}
	if promo := market.FirstText(node, "span.badge"); promo != "" {
		desc = append(desc, "Promotion: "+promo)
	}
	rec.Description = strings.Join(desc, " - ")

	if rec.Key() == "" {
		return harvest.Record{}, false
	}
	return rec, true
}

func availability(fulfillment string) string {
	text := strings.ToLower(fulfillment)
	switch {
	case strings.Contains(text, "out of stock"):
		return "Out of Stock"
	case strings.Contains(text, "limited"):
		return "Limited Stock"
	default:
		return "In Stock"
	}
}
