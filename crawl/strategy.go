// Package crawl implements the per-shop crawl state machine: pagination
// strategy selection and fallback, product deduplication, empty-page
// termination, and the per-shop counters feeding the final report.
package crawl

import (
	"fmt"
	"net/url"
	"strings"
)

// Strategy is a catalog pagination addressing scheme. Fallback follows
// the fixed order Standard → Offset → Alternate → none; a strategy is
// never revisited for a shop.
type Strategy int

const (
	// StrategyStandard is page-number addressing on the products
	// endpoint.
	StrategyStandard Strategy = iota
	// StrategyOffset is record-offset addressing, advancing by the
	// page size each round.
	StrategyOffset
	// StrategyAlternate is the secondary page-number scheme used when
	// the primary endpoint is unavailable.
	StrategyAlternate
	// StrategyNone means all candidates are exhausted.
	StrategyNone
)

func (s Strategy) String() string {
	switch s {
	case StrategyStandard:
		return "standard"
	case StrategyOffset:
		return "offset"
	case StrategyAlternate:
		return "alternate"
	default:
		return "none"
	}
}

// Next returns the following candidate in the fixed fallback order.
func (s Strategy) Next() Strategy {
	switch s {
	case StrategyStandard:
		return StrategyOffset
	case StrategyOffset:
		return StrategyAlternate
	default:
		return StrategyNone
	}
}

// Kind distinguishes the two request families a shop produces.
type Kind int

const (
	// KindListing is a catalog listing page.
	KindListing Kind = iota
	// KindProbe is the dedicated currency probe page.
	KindProbe
)

// Request is a fetch descriptor handed to the transport substrate. It
// carries everything the response handler needs to resume the shop's
// state machine.
type Request struct {
	Shop     string
	URL      string
	Kind     Kind
	Strategy Strategy
	Page     int
	Offset   int
}

// NormalizeShop strips the scheme and trailing slashes from a raw shop
// entry, leaving the identity key used throughout a crawl.
func NormalizeShop(raw string) string {
	shop := strings.TrimSpace(raw)
	shop = strings.TrimPrefix(shop, "https://")
	shop = strings.TrimPrefix(shop, "http://")
	return strings.TrimRight(shop, "/")
}

// ProbeRequest builds the currency probe fetch for a shop.
func ProbeRequest(shop string) Request {
	return Request{
		Shop: shop,
		URL:  fmt.Sprintf("https://%s/collections/all", shop),
		Kind: KindProbe,
	}
}

// listingURL builds the catalog listing address for a strategy and
// cursor position.
func listingURL(shop, collection string, strategy Strategy, page, offset, pageSize int) string {
	if collection != "" {
		switch strategy {
		case StrategyStandard:
			return fmt.Sprintf("https://%s/collections/%s/products.json?limit=%d&page=%d",
				shop, url.PathEscape(collection), pageSize, page)
		case StrategyOffset:
			return fmt.Sprintf("https://%s/collections/%s/products.json?limit=%d&offset=%d",
				shop, url.PathEscape(collection), pageSize, offset)
		default:
			return fmt.Sprintf("https://%s/collections/%s?page=%d&view=json",
				shop, url.PathEscape(collection), page)
		}
	}
	switch strategy {
	case StrategyStandard:
		return fmt.Sprintf("https://%s/products.json?limit=%d&page=%d", shop, pageSize, page)
	case StrategyOffset:
		return fmt.Sprintf("https://%s/products.json?limit=%d&offset=%d", shop, pageSize, offset)
	default:
		return fmt.Sprintf("https://%s/products.json?page=%d&limit=%d", shop, page, pageSize)
	}
}
