// Package shopify implements the Shopify storefront adapter. Unlike the
// HTML markets it talks to the suggest JSON API each store exposes, so it
// is usually paired with the resty fetch client.
package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/market-harvester/internal/fetch"
	"github.com/JakeFAU/market-harvester/internal/harvest"
	"github.com/JakeFAU/market-harvester/internal/market"
)

const marketName = "shopify"

// Config carries the per-run adapter settings.
type Config struct {
	// Domains lists the storefronts to query, e.g. "shop.example.com".
	Domains []string
	// MaxResults caps the records returned by one Search call, summed
	// across storefronts.
	MaxResults int
}

func (c Config) withDefaults() Config {
	if len(c.Domains) == 0 {
		c.Domains = []string{"shopify.com"}
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 50
	}
	return c
}

// Source queries the suggest API of each configured storefront.
type Source struct {
	cfg  Config
	pipe *fetch.Pipeline
	log  *zap.Logger
}

// New builds the adapter on top of an existing fetch pipeline.
func New(pipe *fetch.Pipeline, cfg Config, log *zap.Logger) (*Source, error) {
	if pipe == nil {
		return nil, errors.New("shopify: nil fetch pipeline")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{cfg: cfg.withDefaults(), pipe: pipe, log: log}, nil
}

// Name returns the market identifier.
func (s *Source) Name() string { return marketName }

// Search queries every storefront in order, accumulating records until the
// cap is reached. A storefront that fails or serves undecodable JSON is
// skipped; the run only fails when no storefront yielded anything.
func (s *Source) Search(ctx context.Context, term string) ([]harvest.Record, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.New("shopify: empty search term")
	}

	var (
		records   []harvest.Record
		lastErr   error
		badDecode bool
	)
	for _, domain := range s.cfg.Domains {
		if len(records) >= s.cfg.MaxResults {
			break
		}
		base := storeBaseURL(domain)
		target := fmt.Sprintf("%s/search/suggest.json?q=%s&resources[type]=product",
			base, url.QueryEscape(term))

		resp, err := s.pipe.Fetch(ctx, fetch.Job{Market: marketName, Term: term, URL: target, Referer: base + "/"})
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

		batch, err := s.parseSuggest(resp.Body, base, domain)
		if err != nil {
			badDecode = true
			s.log.Debug("shopify decode failed", zap.String("store", domain), zap.Error(err))
			continue
		}
		records = append(records, batch...)
	}

	if len(records) > 0 {
		if len(records) > s.cfg.MaxResults {
			records = records[:s.cfg.MaxResults]
		}
		s.log.Debug("shopify search done", zap.String("term", term), zap.Int("records", len(records)))
		return records, nil
	}
	if badDecode {
		return nil, &harvest.SourceError{
			Market: marketName,
			Kind:   harvest.KindParse,
			Err:    errors.New("no storefront returned decodable products"),
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

type suggestPayload struct {
	Resources struct {
		Results struct {
			Products []suggestProduct `json:"products"`
		} `json:"results"`
	} `json:"resources"`
}

type suggestProduct struct {
	Title     string      `json:"title"`
	URL       string      `json:"url"`
	Price     json.Number `json:"price"`
	Image     string      `json:"image"`
	Available *bool       `json:"available"`
}

func (s *Source) parseSuggest(body []byte, base, domain string) ([]harvest.Record, error) {
	var payload suggestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode suggest payload: %w", err)
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}

	var records []harvest.Record
	for _, product := range payload.Resources.Results.Products {
		title := market.CleanText(product.Title)
		if title == "" {
			continue
		}
		rec := harvest.Record{
			Title:        title,
			Price:        productPrice(product.Price),
			Currency:     "USD",
			URL:          market.AbsoluteURL(baseURL, product.URL),
			Market:       marketName,
			ImageURL:     market.AbsoluteURL(baseURL, product.Image),
			Availability: "In Stock",
			Seller:       domain,
			HarvestedAt:  time.Now().UTC(),
		}
		if product.Available != nil && !*product.Available {
			rec.Availability = "Out of Stock"
		}
		if rec.Key() == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// The suggest API reports prices in cents.
func productPrice(price json.Number) float64 {
	if price == "" {
		return 0
	}
	cents, err := price.Float64()
	if err != nil {
		return 0
	}
	return cents / 100
}

func storeBaseURL(domain string) string {
	domain = strings.TrimSpace(domain)
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return strings.TrimSuffix(domain, "/")
	}
	return "https://" + strings.TrimSuffix(domain, "/")
}
