package identity

import "time"

// builtinUserAgents covers the common desktop browser population. They are
// used when online refresh is disabled or unavailable.
var builtinUserAgents = []string{
	// Chrome Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	// Chrome macOS
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	// Firefox Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0",
	// Safari macOS
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	// Edge Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	// Chrome Linux
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"fr-FR,fr;q=0.9,en;q=0.8",
	"de-DE,de;q=0.9,en;q=0.8",
	"es-ES,es;q=0.9,en;q=0.8",
}

var clientHintPlatforms = []string{`"Windows"`, `"macOS"`, `"Linux"`}

type delayRange struct {
	min time.Duration
	max time.Duration
}

// marketDelays holds the recommended pause between requests per market.
// Stricter markets get longer ranges.
var marketDelays = map[string]delayRange{
	"amazon":  {3 * time.Second, 12 * time.Second},
	"etsy":    {4 * time.Second, 15 * time.Second},
	"ebay":    {2 * time.Second, 8 * time.Second},
	"walmart": {3 * time.Second, 10 * time.Second},
	"shopify": {2 * time.Second, 7 * time.Second},
}

var defaultDelay = delayRange{2 * time.Second, 8 * time.Second}

// marketHeaders overrides the generic header set per market.
var marketHeaders = map[string]map[string]string{
	"amazon": {
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
	},
	"etsy": {
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
	},
	"ebay": {
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
	},
}

// marketBlockPhrases lists the lowercase markers of soft block pages per
// market. Matching is case-insensitive substring search on the payload.
var marketBlockPhrases = map[string][]string{
	"amazon": {
		"captcha", "robot", "blocked", "access denied",
		"security check", "unusual traffic", "automated requests",
	},
	"etsy": {
		"captcha", "robot", "blocked", "access denied",
		"security check", "unusual traffic", "rate limit",
		"temporarily unavailable",
	},
	"ebay": {
		"captcha", "blocked", "access denied", "security check",
		"unusual activity", "automated traffic",
	},
	"walmart": {
		"captcha", "blocked", "access denied", "bot",
		"automated requests", "security check",
	},
	"shopify": {
		"captcha", "blocked", "access denied", "rate limit",
		"too many requests", "security check",
	},
}

var defaultBlockPhrases = []string{"captcha", "blocked", "access denied"}
