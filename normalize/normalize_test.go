package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/storefront-tools/shopcrawl/models"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func TestAvailabilityFlags(t *testing.T) {
	tests := []struct {
		name      string
		variants  []models.RawVariant
		fully     bool
		partially bool
	}{
		{
			name:      "all unavailable",
			variants:  []models.RawVariant{{Available: boolPtr(false)}, {Available: boolPtr(false)}},
			fully:     true,
			partially: true,
		},
		{
			name:      "mixed availability",
			variants:  []models.RawVariant{{Available: boolPtr(true)}, {Available: boolPtr(false)}},
			fully:     false,
			partially: true,
		},
		{
			name:      "no variants",
			variants:  nil,
			fully:     false,
			partially: false,
		},
		{
			name:      "no signals",
			variants:  []models.RawVariant{{Price: "10.00"}, {Price: "12.00"}},
			fully:     false,
			partially: false,
		},
		{
			name:      "inventory counts",
			variants:  []models.RawVariant{{InventoryQuantity: intPtr(0)}, {InventoryQuantity: intPtr(5)}},
			fully:     false,
			partially: true,
		},
		{
			name:      "signal-less variant does not count as unavailable",
			variants:  []models.RawVariant{{Available: boolPtr(false)}, {Price: "10.00"}},
			fully:     true,
			partially: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fully, partially := availability(tt.variants)
			if fully != tt.fully || partially != tt.partially {
				t.Fatalf("availability = %v/%v, want %v/%v", fully, partially, tt.fully, tt.partially)
			}
		})
	}
}

func TestProductMapping(t *testing.T) {
	raw := models.RawProduct{
		ID:     101,
		Title:  "Linen Shirt",
		Handle: "linen-shirt",
		Variants: []models.RawVariant{
			{Price: "49.00", Available: boolPtr(true)},
			{Price: "59.00", Available: boolPtr(false)},
		},
		Images: []models.RawImage{{Src: "//cdn.example.com/shirt.jpg"}},
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := Product("demo.myshopify.com", raw, "USD", "json_key", now)

	if p.ProductID != 101 || p.Title != "Linen Shirt" {
		t.Fatalf("identity fields wrong: %+v", p)
	}
	if p.Price != "49.00" {
		t.Fatalf("price = %q, want first variant price", p.Price)
	}
	if p.URL != "https://demo.myshopify.com/products/linen-shirt" {
		t.Fatalf("url = %q", p.URL)
	}
	if p.ImageURL != "https://cdn.example.com/shirt.jpg" {
		t.Fatalf("image url = %q, want scheme-resolved absolute URL", p.ImageURL)
	}
	if p.Currency != "USD" || p.CurrencySource != "json_key" {
		t.Fatalf("currency = %s/%s", p.Currency, p.CurrencySource)
	}
	if p.PriceWithCurrency != "USD: 49.00" {
		t.Fatalf("composite = %q, want %q", p.PriceWithCurrency, "USD: 49.00")
	}
	if p.FullyOutOfStock || !p.PartiallyOutOfStock {
		t.Fatalf("availability flags = %v/%v", p.FullyOutOfStock, p.PartiallyOutOfStock)
	}
}

func TestProductWithoutHandleOrVariants(t *testing.T) {
	raw := models.RawProduct{ID: 7, Title: "Mystery Item"}
	p := Product("demo.myshopify.com", raw, "", "", time.Now())

	if p.Price != "" || p.URL != "" || p.ImageURL != "" {
		t.Fatalf("optional fields should be empty: %+v", p)
	}
	if p.PriceWithCurrency != "" {
		t.Fatalf("composite should equal the (empty) raw price, got %q", p.PriceWithCurrency)
	}
}

func TestProductRelativeImageResolved(t *testing.T) {
	raw := models.RawProduct{
		ID:     8,
		Title:  "Poster",
		Images: []models.RawImage{{Src: "/cdn/shop/poster.png"}},
	}
	p := Product("demo.myshopify.com", raw, "", "", time.Now())
	if p.ImageURL != "https://demo.myshopify.com/cdn/shop/poster.png" {
		t.Fatalf("image url = %q", p.ImageURL)
	}
}

func TestProductPriceTextCurrencyFallback(t *testing.T) {
	raw := models.RawProduct{
		ID:       9,
		Title:    "Tea",
		Variants: []models.RawVariant{{Price: "£4.50"}},
	}
	p := Product("demo.myshopify.com", raw, "", "", time.Now())

	if p.Currency != "GBP" {
		t.Fatalf("currency = %q, want GBP from price text", p.Currency)
	}
	if p.CurrencySource != "price_text" {
		t.Fatalf("source = %q, want price_text", p.CurrencySource)
	}
	if p.PriceWithCurrency != "GBP: £4.50" {
		t.Fatalf("composite = %q", p.PriceWithCurrency)
	}
}

func TestProductStringImageForm(t *testing.T) {
	var raw models.RawProduct
	payload := `{"id": 3, "title": "Mug", "images": ["https://cdn.example.com/mug.jpg"]}`
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	p := Product("demo.myshopify.com", raw, "", "", time.Now())
	if p.ImageURL != "https://cdn.example.com/mug.jpg" {
		t.Fatalf("image url = %q", p.ImageURL)
	}
}

func TestFilterProductType(t *testing.T) {
	f := NewFilter("", "Shoes")

	if !f.Allows(models.RawProduct{ProductType: "shoes"}) {
		t.Fatalf("case-insensitive type match should pass")
	}
	if f.Allows(models.RawProduct{ProductType: "shirts"}) {
		t.Fatalf("non-matching type should be dropped")
	}
	if f.Allows(models.RawProduct{}) {
		t.Fatalf("missing type should be dropped when a type filter is set")
	}
}

func TestFilterTagMembership(t *testing.T) {
	f := NewFilter("Sale", "")

	if !f.Allows(models.RawProduct{Tags: models.TagList{"new", "SALE"}}) {
		t.Fatalf("case-insensitive tag membership should pass")
	}
	if f.Allows(models.RawProduct{Tags: models.TagList{"new"}}) {
		t.Fatalf("missing tag should be dropped")
	}
}

func TestFilterCommaSeparatedTags(t *testing.T) {
	var raw models.RawProduct
	payload := `{"id": 1, "title": "Hat", "tags": "summer, Sale , featured"}`
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	f := NewFilter("sale", "")
	if !f.Allows(raw) {
		t.Fatalf("comma-separated tag string should satisfy the filter")
	}
}

func TestFilterEmptyAllowsEverything(t *testing.T) {
	f := NewFilter("", "")
	if !f.Allows(models.RawProduct{ID: 1}) {
		t.Fatalf("empty filter must pass all records")
	}
}
