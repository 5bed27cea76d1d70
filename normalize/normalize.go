// Package normalize maps raw catalog records into the canonical output
// shape and applies the configured pre-emit filters.
package normalize

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/storefront-tools/shopcrawl/currency"
	"github.com/storefront-tools/shopcrawl/models"
)

// Filter drops records whose product type or tag set does not match
// the configured values. Matching is case-insensitive; empty fields
// match everything.
type Filter struct {
	Tag         string
	ProductType string
}

// NewFilter builds a filter with pre-lowered match values.
func NewFilter(tag, productType string) Filter {
	return Filter{
		Tag:         strings.ToLower(strings.TrimSpace(tag)),
		ProductType: strings.ToLower(strings.TrimSpace(productType)),
	}
}

// Allows reports whether a raw record passes the filter.
func (f Filter) Allows(p models.RawProduct) bool {
	if f.ProductType != "" && strings.ToLower(p.ProductType) != f.ProductType {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range p.Tags {
			if strings.ToLower(strings.TrimSpace(tag)) == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Product maps one raw catalog record into a normalized product. code
// and source are the shop's sticky currency detection, both empty when
// nothing has been detected yet; in that case the product's own price
// string is the fallback signal.
func Product(shop string, raw models.RawProduct, code, source string, now time.Time) *models.Product {
	p := &models.Product{
		Shop:      shop,
		ProductID: raw.ID,
		Title:     raw.Title,
		ScrapedAt: now,
	}

	if len(raw.Variants) > 0 {
		p.Price = raw.Variants[0].Price
	}
	if len(raw.Images) > 0 && raw.Images[0].Src != "" {
		p.ImageURL = absoluteURL(shop, raw.Images[0].Src)
	}
	if raw.Handle != "" {
		p.URL = fmt.Sprintf("https://%s/products/%s", shop, raw.Handle)
	}

	p.FullyOutOfStock, p.PartiallyOutOfStock = availability(raw.Variants)

	if code == "" {
		if det, ok := currency.FromPriceText(p.Price); ok {
			code, source = det.Code, det.Source
		}
	}
	p.Currency = code
	p.CurrencySource = source
	if code != "" && p.Price != "" {
		p.PriceWithCurrency = fmt.Sprintf("%s: %s", code, p.Price)
	} else {
		p.PriceWithCurrency = p.Price
	}

	return p
}

// availability derives the stock flags from variants that carry an
// explicit availability boolean or an inventory count. A variant with
// neither signal contributes nothing and is treated as available.
func availability(variants []models.RawVariant) (fully, partially bool) {
	contributed := 0
	unavailable := 0
	for _, v := range variants {
		switch {
		case v.Available != nil:
			contributed++
			if !*v.Available {
				unavailable++
			}
		case v.InventoryQuantity != nil:
			contributed++
			if *v.InventoryQuantity <= 0 {
				unavailable++
			}
		}
	}
	if contributed == 0 {
		return false, false
	}
	return unavailable == contributed, unavailable > 0
}

// absoluteURL resolves an image reference against the shop's origin.
// Already-absolute URLs pass through unchanged.
func absoluteURL(shop, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if parsed.IsAbs() {
		return ref
	}
	base := &url.URL{Scheme: "https", Host: shop}
	return base.ResolveReference(parsed).String()
}
