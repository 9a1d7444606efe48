// Package ebay implements the eBay search adapter.
package ebay

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

const marketName = "ebay"

var (
	containerSelectors = []string{
		"div.s-item__wrapper",
		"li.s-item",
		"div.s-item",
	}
	titleSelectors = []string{
		"h3.s-item__title",
		".s-item__title",
		"a.s-item__link",
	}
	linkSelectors = []string{
		"a.s-item__link",
		"h3.s-item__title a",
		"a",
	}
	imageSelectors = []string{
		"img.s-item__image",
		".s-item__image img",
		"img",
	}
)

// Config carries the per-run adapter settings.
type Config struct {
	// Domain selects the marketplace, e.g. "ebay.com" or "ebay.de".
	Domain string
	// MaxResults caps the records returned by one Search call.
	MaxResults int
}

func (c Config) withDefaults() Config {
	if c.Domain == "" {
		c.Domain = "ebay.com"
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 50
	}
	return c
}

// Source searches eBay listing pages through the fetch pipeline.
type Source struct {
	cfg  Config
	base *url.URL
	pipe *fetch.Pipeline
	log  *zap.Logger
}

// New builds the adapter on top of an existing fetch pipeline.
func New(pipe *fetch.Pipeline, cfg Config, log *zap.Logger) (*Source, error) {
	if pipe == nil {
		return nil, errors.New("ebay: nil fetch pipeline")
	}
	cfg = cfg.withDefaults()
	base, err := url.Parse("https://www." + cfg.Domain)
	if err != nil {
		return nil, fmt.Errorf("ebay: parse domain: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{cfg: cfg, base: base, pipe: pipe, log: log}, nil
}

// Name returns the market identifier.
func (s *Source) Name() string { return marketName }

// Search runs one term against the /sch/i.html listing search.
func (s *Source) Search(ctx context.Context, term string) ([]harvest.Record, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.New("ebay: empty search term")
	}

	target := fmt.Sprintf("%s/sch/i.html?_nkw=%s&_sacat=0", s.base.String(), url.QueryEscape(term))
	resp, err := s.pipe.Fetch(ctx, fetch.Job{Market: marketName, Term: term, URL: target, Referer: s.base.String() + "/"})
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
			Err:    errors.New("no listings matched any selector"),
		}
	}
	s.log.Debug("ebay search done", zap.String("term", term), zap.Int("records", len(records)))
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

	priceText := market.FirstText(node, "span.s-item__price")
	price, _ := market.ExtractPrice(priceText)

	rec := harvest.Record{
		Title:        title,
		Price:        price,
		Currency:     market.ExtractCurrency(priceText, "USD"),
		URL:          market.AbsoluteURL(s.base, market.FirstAttr(node, "href", linkSelectors...)),
		Market:       marketName,
		ImageURL:     market.AbsoluteURL(s.base, market.ImageSrc(node, imageSelectors...)),
		Availability: availability(node),
		Seller:       "eBay Seller",
		HarvestedAt:  time.Now().UTC(),
	}
	if seller := market.FirstText(node, "span.s-item__seller-info-text"); seller != "" {
		rec.Seller = seller
	}
	if rating, ok := market.ExtractRating(market.FirstText(node, "span.clipped")); ok {
		rec.Rating = rating
	}

	var desc []string
	if location := market.FirstText(node, "span.s-item__location"); location != "" {
		desc = append(desc, "Location: "+location)
	}
	if shipping := market.FirstText(node, "span.s-item__shipping"); shipping != "" {
		desc = append(desc, "Shipping: "+shipping)
	}
	rec.Description = strings.Join(desc, " - ")

	if rec.Key() == "" {
		return harvest.Record{}, false
	}
	return rec, true
}

// Condition (New, Pre-Owned) plus the sale format (Buy It Now, auction)
// stand in for availability on eBay.
func availability(node *goquery.Selection) string {
	avail := "Available"
	if condition := market.FirstText(node, "span.SECONDARY_INFO"); condition != "" {
		avail = condition
	}
	if saleType := market.FirstText(node, "span.s-item__purchase-options-with-icon"); saleType != "" {
		avail += " - " + saleType
	}
	return avail
}
