package currency

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// metaSelectors name the meta tags checked on the probe page, in order.
var metaSelectors = []string{
	`meta[property="product:price:currency"]`,
	`meta[itemprop="priceCurrency"]`,
	`meta[name="priceCurrency"]`,
	`meta[property="og:price:currency"]`,
	`meta[name="currency"]`,
}

// scriptPatterns are the known JavaScript assignment shapes carrying a
// currency code. Overlapping patterns are intentional; the first match
// in this order wins.
var scriptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Shopify\.currency\s*=\s*\{[^}]*"active"\s*:\s*"([A-Z]{3})"`),
	regexp.MustCompile(`Shopify\.currency\s*=\s*\{[^}]*'active'\s*:\s*'([A-Z]{3})'`),
	regexp.MustCompile(`"currencyCode"\s*:\s*"([A-Z]{3})"`),
	regexp.MustCompile(`currency\s*[:=]\s*["']([A-Z]{3})["']`),
	regexp.MustCompile(`shop_currency\s*[:=]\s*["']([A-Z]{3})["']`),
}

// priceTextSelector gathers visible elements that usually sit next to
// a price.
const priceTextSelector = `[class*="price"], [class*="money"], [itemprop="price"]`

// FromHTML runs the probe-page stage of the cascade: meta tags, then
// script assignment patterns, then price-adjacent text, each validated
// through the symbol table.
func FromHTML(body string) (Detection, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return Detection{}, false
	}

	for _, sel := range metaSelectors {
		content, exists := doc.Find(sel).First().Attr("content")
		if !exists {
			continue
		}
		if code, ok := validateToken(content); ok {
			return Detection{Code: code, Source: SourceHTMLMeta}, true
		}
	}

	var scripts strings.Builder
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scripts.WriteString(s.Text())
		scripts.WriteString("\n")
	})
	scriptText := scripts.String()
	for _, pattern := range scriptPatterns {
		if m := pattern.FindStringSubmatch(scriptText); m != nil {
			return Detection{Code: m[1], Source: SourceHTMLScript}, true
		}
	}

	var found Detection
	doc.Find(priceTextSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if code, ok := lookupToken(s.Text()); ok {
			found = Detection{Code: code, Source: SourceHTMLText}
			return false
		}
		return true
	})
	if found.Code != "" {
		return found, true
	}
	return Detection{}, false
}

// validateToken accepts an exact 3-uppercase-letter code or anything
// the symbol table recognizes.
func validateToken(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if len(value) == 3 && codePattern.MatchString(value) {
		return value, true
	}
	return lookupToken(value)
}
