// Package models defines the raw catalog document shapes and the
// normalized output records.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Catalog is the top-level listing payload returned by a shop's
// products endpoint.
type Catalog struct {
	Products []RawProduct `json:"products"`
}

// RawProduct is one catalog entry as the shop returns it. The shape is
// owned by the storefronts, not by us, so decoding stays permissive.
type RawProduct struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Handle      string       `json:"handle"`
	ProductType string       `json:"product_type"`
	Tags        TagList      `json:"tags"`
	Variants    []RawVariant `json:"variants"`
	Images      []RawImage   `json:"images"`
}

// RawVariant carries the per-variant price and availability signals.
// Available and InventoryQuantity are pointers so that "field absent"
// is distinguishable from false/zero.
type RawVariant struct {
	ID                int64  `json:"id"`
	Title             string `json:"title"`
	Price             string `json:"price"`
	Available         *bool  `json:"available"`
	InventoryQuantity *int   `json:"inventory_quantity"`
}

// RawImage accepts both forms storefronts use for the images list:
// objects carrying a src field, or bare URL strings.
type RawImage struct {
	Src string
}

func (ri *RawImage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		ri.Src = s
		return nil
	}
	var obj struct {
		Src string `json:"src"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	ri.Src = obj.Src
	return nil
}

// TagList accepts tags either as a JSON array of strings or as a single
// comma-separated string.
type TagList []string

func (tl *TagList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*tl = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	var out []string
	for _, t := range strings.Split(joined, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	*tl = out
	return nil
}

// Product is the normalized output record, immutable once produced.
type Product struct {
	Shop                string    `json:"shop"`
	ProductID           int64     `json:"product_id"`
	Title               string    `json:"title"`
	Price               string    `json:"price,omitempty"`
	PriceWithCurrency   string    `json:"price_with_currency,omitempty"`
	ImageURL            string    `json:"image_url,omitempty"`
	URL                 string    `json:"url,omitempty"`
	Currency            string    `json:"currency,omitempty"`
	CurrencySource      string    `json:"currency_source,omitempty"`
	FullyOutOfStock     bool      `json:"fully_out_of_stock"`
	PartiallyOutOfStock bool      `json:"partially_out_of_stock"`
	ScrapedAt           time.Time `json:"scraped_at"`
}

// CurrencyInfo is the header record written before any product record
// in a shop's output stream. Currency stays null when detection never
// succeeded.
type CurrencyInfo struct {
	Type           string  `json:"type"`
	Shop           string  `json:"shop"`
	Currency       *string `json:"currency"`
	CurrencySource *string `json:"currency_source,omitempty"`
	DetectedAt     string  `json:"detected_at"`
}

// NewCurrencyInfo builds the header record for a shop. code and source
// may be empty when nothing was detected.
func NewCurrencyInfo(shop, code, source string, at time.Time) CurrencyInfo {
	info := CurrencyInfo{
		Type:       "currency_info",
		Shop:       shop,
		DetectedAt: at.UTC().Format(time.RFC3339),
	}
	if code != "" {
		info.Currency = &code
	}
	if source != "" {
		info.CurrencySource = &source
	}
	return info
}
