package market

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	amountRe  = regexp.MustCompile(`\d[\d.,]*`)
	ratingRe  = regexp.MustCompile(`\d+(?:\.\d+)?`)
	reviewsRe = regexp.MustCompile(`[\d,]+`)
	spaceRe   = regexp.MustCompile(`\s+`)
)

// ExtractPrice pulls the first monetary amount out of free-form price text.
// Both separator conventions are handled: "1,234.56" and "1.234,56" parse to
// the same value, and a lone comma with at most two trailing digits is read
// as a decimal mark.
func ExtractPrice(text string) (float64, bool) {
	raw := amountRe.FindString(text)
	if raw == "" {
		return 0, false
	}
	raw = strings.Trim(raw, ".,")

	dot := strings.LastIndexByte(raw, '.')
	comma := strings.LastIndexByte(raw, ',')
	switch {
	case dot >= 0 && comma > dot:
		// 1.234,56
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.ReplaceAll(raw, ",", ".")
	case dot >= 0 && comma >= 0:
		// 1,234.56
		raw = strings.ReplaceAll(raw, ",", "")
	case comma >= 0:
		if strings.Count(raw, ",") == 1 && len(raw)-comma-1 <= 2 {
			raw = strings.Replace(raw, ",", ".", 1)
		} else {
			raw = strings.ReplaceAll(raw, ",", "")
		}
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}

// ExtractCurrency maps a currency symbol or code found in the text to its
// ISO code, falling back when nothing matches.
func ExtractCurrency(text, fallback string) string {
	switch {
	case strings.Contains(text, "C$") || strings.Contains(text, "CAD"):
		return "CAD"
	case strings.Contains(text, "$"):
		return "USD"
	case strings.Contains(text, "€") || strings.Contains(text, "EUR"):
		return "EUR"
	case strings.Contains(text, "£") || strings.Contains(text, "GBP"):
		return "GBP"
	default:
		return fallback
	}
}

// ExtractRating returns the first number in rating text such as
// "4.3 out of 5 stars".
func ExtractRating(text string) (float64, bool) {
	raw := ratingRe.FindString(text)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// ExtractReviewsCount reads a review tally out of text like "(1,234 ratings)".
// Spaces and dots are treated as thousands separators.
func ExtractReviewsCount(text string) (int, bool) {
	normalized := strings.NewReplacer(" ", "", " ", "", ".", ",").Replace(text)
	raw := reviewsRe.FindString(normalized)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(strings.ReplaceAll(raw, ",", ""))
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}

// CleanText collapses whitespace runs and trims the result.
func CleanText(text string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// AbsoluteURL resolves href against base. Unparseable input yields "".
func AbsoluteURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		if ref.IsAbs() {
			return ref.String()
		}
		return ""
	}
	return base.ResolveReference(ref).String()
}
