package market

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FirstText returns the cleaned text of the first selector that matches a
// node with non-empty text. Marketplace markup drifts constantly, so every
// adapter carries a fallback catalog rather than a single selector.
func FirstText(sel *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		if s == "" {
			continue
		}
		found := sel.Find(s).First()
		if found.Length() == 0 {
			continue
		}
		if text := CleanText(found.Text()); text != "" {
			return text
		}
	}
	return ""
}

// FirstAttr returns the named attribute from the first selector that matches
// a node carrying it.
func FirstAttr(sel *goquery.Selection, attr string, selectors ...string) string {
	for _, s := range selectors {
		if s == "" {
			continue
		}
		var value string
		sel.Find(s).EachWithBreak(func(_ int, node *goquery.Selection) bool {
			if v, ok := node.Attr(attr); ok && strings.TrimSpace(v) != "" {
				value = strings.TrimSpace(v)
				return false
			}
			return true
		})
		if value != "" {
			return value
		}
	}
	return ""
}

// ImageSrc returns the image URL from the first matching img node, checking
// src and then the lazy-load data-src attribute.
func ImageSrc(sel *goquery.Selection, selectors ...string) string {
	if src := FirstAttr(sel, "src", selectors...); src != "" {
		return src
	}
	return FirstAttr(sel, "data-src", selectors...)
}
