// Package currency infers a shop's ISO 4217 currency code from
// heterogeneous signals: structured catalog payloads, storefront HTML,
// domain suffixes, and raw price strings. Detectors are evaluated in a
// fixed cascade; the first hit for a shop wins and is sticky (the
// caller enforces stickiness).
package currency

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// Source tags identify which detector produced a code. They are part
// of the output contract and end up in the per-shop header record.
const (
	SourceJSONKey    = "json_key"
	SourceJSONNested = "json_nested"
	SourceSymbol     = "symbol_scan"
	SourceHTMLMeta   = "html_meta"
	SourceHTMLScript = "html_script"
	SourceHTMLText   = "html_text"
	SourceTLD        = "tld_heuristic"
	SourcePriceText  = "price_text"
)

// Detection is a detected code plus the tag of the detector that
// produced it.
type Detection struct {
	Code   string
	Source string
}

// payloadKeys are scanned at the top level of a catalog payload, in
// this order.
var payloadKeys = []string{
	"currency",
	"currency_code",
	"shop_currency",
	"currencyIsoCode",
	"money_format",
	"money_with_currency_format",
}

type symbolEntry struct {
	token string
	code  string
}

// symbolTable maps currency symbols and literal codes to ISO codes.
// Iteration order is fixed: the first entry present in the scanned
// text wins.
var symbolTable = []symbolEntry{
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"₹", "INR"},
	{"¥", "JPY"},
	{"₽", "RUB"},
	{"₩", "KRW"},
	{"₺", "TRY"},
	{"₱", "PHP"},
	{"USD", "USD"},
	{"EUR", "EUR"},
	{"GBP", "GBP"},
	{"PKR", "PKR"},
	{"INR", "INR"},
	{"JPY", "JPY"},
	{"AUD", "AUD"},
	{"CAD", "CAD"},
	{"RUB", "RUB"},
	{"KRW", "KRW"},
	{"TRY", "TRY"},
	{"PHP", "PHP"},
}

type tldEntry struct {
	suffix string
	code   string
}

// tldTable maps domain suffixes to codes; longer suffixes come first
// so co.uk matches ahead of uk.
var tldTable = []tldEntry{
	{"co.uk", "GBP"},
	{"uk", "GBP"},
	{"pk", "PKR"},
	{"in", "INR"},
	{"jp", "JPY"},
	{"au", "AUD"},
	{"ca", "CAD"},
	{"de", "EUR"},
	{"fr", "EUR"},
	{"it", "EUR"},
	{"es", "EUR"},
	{"nl", "EUR"},
	{"us", "USD"},
}

var codePattern = regexp.MustCompile(`[A-Z]{3}`)

const symbolScanLimit = 4000

const nestedScanDepth = 3

// extractCode pulls the first embedded 3-uppercase-letter token out of
// a value such as "PKR-detail" or "Rs {{amount}} PKR".
func extractCode(value string) (string, bool) {
	match := codePattern.FindString(value)
	if match == "" {
		return "", false
	}
	return match, true
}

// FromPayloadKeys scans the narrowly-named top-level keys of a parsed
// catalog payload.
func FromPayloadKeys(doc map[string]any) (Detection, bool) {
	for _, key := range payloadKeys {
		value, ok := doc[key].(string)
		if !ok {
			continue
		}
		if code, ok := extractCode(value); ok {
			return Detection{Code: code, Source: SourceJSONKey}, true
		}
	}
	return Detection{}, false
}

// FromNested recursively scans nested mappings and sequences, bounded
// to three levels, for an exact 3-letter code or a currency-like key
// whose value embeds one. Map keys are visited in sorted order so the
// scan is deterministic.
func FromNested(doc any) (Detection, bool) {
	if code, ok := scanNested(doc, "", nestedScanDepth); ok {
		return Detection{Code: code, Source: SourceJSONNested}, true
	}
	return Detection{}, false
}

func scanNested(node any, key string, depth int) (string, bool) {
	if depth < 0 {
		return "", false
	}
	switch v := node.(type) {
	case string:
		if len(v) == 3 && codePattern.MatchString(v) && strings.ToUpper(v) == v {
			return v, true
		}
		if keyLooksCurrencyLike(key) {
			if code, ok := extractCode(v); ok {
				return code, true
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if code, ok := scanNested(v[k], k, depth-1); ok {
				return code, true
			}
		}
	case []any:
		for _, item := range v {
			if code, ok := scanNested(item, key, depth-1); ok {
				return code, true
			}
		}
	}
	return "", false
}

func keyLooksCurrencyLike(key string) bool {
	lower := strings.ToLower(key)
	return strings.Contains(lower, "currency") || strings.Contains(lower, "money")
}

// FromSymbols scans a bounded prefix of the serialized payload for
// known currency symbols and literal codes, in fixed table order.
func FromSymbols(raw string) (Detection, bool) {
	prefix := raw
	if len(prefix) > symbolScanLimit {
		prefix = prefix[:symbolScanLimit]
	}
	if code, ok := lookupToken(prefix); ok {
		return Detection{Code: code, Source: SourceSymbol}, true
	}
	return Detection{}, false
}

func lookupToken(text string) (string, bool) {
	for _, entry := range symbolTable {
		if strings.Contains(text, entry.token) {
			return entry.code, true
		}
	}
	return "", false
}

// FromPayload runs the structured-payload stages in cascade order:
// top-level keys, bounded nested scan, then symbol scan of the raw
// prefix. raw is the serialized payload the keys were parsed from.
func FromPayload(raw []byte) (Detection, bool) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err == nil {
		if det, ok := FromPayloadKeys(doc); ok {
			return det, true
		}
		if det, ok := FromNested(doc); ok {
			return det, true
		}
	}
	return FromSymbols(string(raw))
}

// FromTLD maps the shop's domain suffix through a fixed table. Lowest
// confidence, last resort.
func FromTLD(shop string) (Detection, bool) {
	host := strings.ToLower(shop)
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	for _, entry := range tldTable {
		if host == entry.suffix || strings.HasSuffix(host, "."+entry.suffix) {
			return Detection{Code: entry.code, Source: SourceTLD}, true
		}
	}
	return Detection{}, false
}

// FromPriceText scans a single product's price string for an embedded
// code or symbol. Applied per product when no shop-level code exists.
func FromPriceText(price string) (Detection, bool) {
	if price == "" {
		return Detection{}, false
	}
	if code, ok := lookupToken(price); ok {
		return Detection{Code: code, Source: SourcePriceText}, true
	}
	return Detection{}, false
}
