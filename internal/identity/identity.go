// Package identity manages the browser identities presented to marketplaces.
//
// Each market gets a coherent Profile (user agent plus matching header set)
// that sticks until it is rotated away, either explicitly after a block or
// naturally when its cache entry expires. The package also carries the
// per-market anti-bot knowledge the fetch pipeline needs: recommended delay
// ranges and the phrases that mark a soft block page.
package identity

import (
	"crypto/rand"
	"math/big"
	"net/http"
	"strings"
	"time"

	browser "github.com/EDDYCJY/fake-useragent"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Profile is one coherent browser identity.
type Profile struct {
	UserAgent string
	Headers   map[string]string
}

// Provider hands out per-market identities and anti-bot hints.
type Provider interface {
	// Headers returns the header set of the market's active identity,
	// creating one if needed. Repeated calls reuse the same identity until
	// Rotate. A non-empty referer rides along as the Referer header.
	Headers(market, referer string) http.Header
	// Rotate discards the active identity so the next request builds a
	// fresh one.
	Rotate(market string)
	// DelayRange returns the recommended min/max pause between requests.
	DelayRange(market string) (min, max time.Duration)
	// BlockPhrases returns the lowercase phrases whose presence in a
	// response payload marks a soft block.
	BlockPhrases(market string) []string
}

// Options configures a Catalog.
type Options struct {
	// RandomUserAgents sources fresh agents from an online catalog instead
	// of the builtin list. Requires network access on first use.
	RandomUserAgents bool
	// ProfileTTL bounds how long an identity sticks before natural
	// rotation. Zero keeps identities until explicitly rotated.
	ProfileTTL time.Duration
	// CacheSize bounds the number of concurrently cached identities.
	CacheSize int
}

const defaultCacheSize = 128

// Catalog is the builtin Provider. It is safe for concurrent use.
type Catalog struct {
	opts  Options
	cache *expirable.LRU[string, Profile]
}

// NewCatalog builds a Catalog with the given options.
func NewCatalog(opts Options) *Catalog {
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	return &Catalog{
		opts:  opts,
		cache: expirable.NewLRU[string, Profile](opts.CacheSize, nil, opts.ProfileTTL),
	}
}

// Profile returns the active identity for a market, creating one if needed.
// Repeated calls return the same identity until Rotate.
func (c *Catalog) Profile(market string) Profile {
	key := normalize(market)
	if p, ok := c.cache.Get(key); ok {
		return p
	}
	p := c.build(key)
	c.cache.Add(key, p)
	return p
}

// Headers implements Provider.
func (c *Catalog) Headers(market, referer string) http.Header {
	p := c.Profile(market)
	h := make(http.Header, len(p.Headers)+1)
	for k, v := range p.Headers {
		h.Set(k, v)
	}
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}

// Rotate implements Provider.
func (c *Catalog) Rotate(market string) {
	c.cache.Remove(normalize(market))
}

// DelayRange implements Provider.
func (c *Catalog) DelayRange(market string) (time.Duration, time.Duration) {
	if d, ok := marketDelays[normalize(market)]; ok {
		return d.min, d.max
	}
	return defaultDelay.min, defaultDelay.max
}

// BlockPhrases implements Provider.
func (c *Catalog) BlockPhrases(market string) []string {
	phrases, ok := marketBlockPhrases[normalize(market)]
	if !ok {
		phrases = defaultBlockPhrases
	}
	return append([]string(nil), phrases...)
}

func (c *Catalog) build(market string) Profile {
	ua := c.userAgent()
	headers := realisticHeaders(ua)
	for k, v := range marketHeaders[market] {
		headers[k] = v
	}
	return Profile{UserAgent: ua, Headers: headers}
}

func (c *Catalog) userAgent() string {
	if c.opts.RandomUserAgents {
		if ua := browser.Computer(); ua != "" {
			return ua
		}
	}
	return builtinUserAgents[randIndex(len(builtinUserAgents))]
}

// realisticHeaders composes the header set a real browser sends with the
// given agent. Chrome agents additionally carry client hint headers.
func realisticHeaders(userAgent string) map[string]string {
	headers := map[string]string{
		"User-Agent":                userAgent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		"Accept-Language":           acceptLanguages[randIndex(len(acceptLanguages))],
		"Accept-Encoding":           "gzip, deflate, br",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Cache-Control":             "max-age=0",
		"DNT":                       "1",
	}
	if strings.Contains(userAgent, "Chrome") {
		headers["sec-ch-ua"] = `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`
		headers["sec-ch-ua-mobile"] = "?0"
		headers["sec-ch-ua-platform"] = clientHintPlatforms[randIndex(len(clientHintPlatforms))]
	}
	return headers
}

func normalize(market string) string {
	return strings.ToLower(strings.TrimSpace(market))
}

func randIndex(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
