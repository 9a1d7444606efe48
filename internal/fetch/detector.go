package fetch

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MatchBlockPhrase scans a successful payload for soft-block markers. It
// returns the first matching phrase. Matching is case-insensitive substring
// search, so phrase lists should stay short and specific.
func MatchBlockPhrase(body []byte, phrases []string) (string, bool) {
	if len(body) == 0 || len(phrases) == 0 {
		return "", false
	}
	lower := bytes.ToLower(body)
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		if bytes.Contains(lower, []byte(strings.ToLower(phrase))) {
			return phrase, true
		}
	}
	return "", false
}

// Challenge widget markup as served by the common anti-bot vendors. A
// selector hit on a 2xx page means an interstitial, not a listing.
var defaultChallengeSelectors = []string{
	"form[action*='validateCaptcha']",
	"#captchacharacters",
	"div.g-recaptcha",
	"#challenge-form",
	"#px-captcha",
	"iframe[src*='hcaptcha']",
}

// ChallengeDetector flags payloads that look like an anti-bot interstitial
// from structure alone: a body too small to be a listing page, or markup
// carrying a known challenge element. It is a heuristic on top of the
// phrase scan and only ever runs against transport-successful HTML.
type ChallengeDetector struct {
	minHTMLBytes int
	selectors    []string
}

// NewChallengeDetector constructs a detector with the configured threshold.
// minBytes <= 0 disables the size check; nil selectors use the builtin
// catalog.
func NewChallengeDetector(minBytes int, selectors []string) *ChallengeDetector {
	if selectors == nil {
		selectors = defaultChallengeSelectors
	}
	return &ChallengeDetector{
		minHTMLBytes: minBytes,
		selectors:    selectors,
	}
}

// Match reports whether the payload is structurally a challenge page, with
// a short reason for the attempt log. A nil detector never matches.
func (d *ChallengeDetector) Match(body []byte) (string, bool) {
	if d == nil || len(body) == 0 {
		return "", false
	}
	if d.minHTMLBytes > 0 && len(body) < d.minHTMLBytes {
		return fmt.Sprintf("body %dB below %dB floor", len(body), d.minHTMLBytes), true
	}
	return d.matchSelector(body)
}

func (d *ChallengeDetector) matchSelector(body []byte) (string, bool) {
	if len(d.selectors) == 0 {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	for _, sel := range d.selectors {
		if sel == "" {
			continue
		}
		if doc.Find(sel).Length() > 0 {
			return "challenge selector " + sel, true
		}
	}
	return "", false
}
