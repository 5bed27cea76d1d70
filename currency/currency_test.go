package currency

import (
	"strings"
	"testing"
)

func TestFromPayloadStructuredKey(t *testing.T) {
	det, ok := FromPayload([]byte(`{"currency_code": "PKR-detail"}`))
	if !ok {
		t.Fatalf("expected a detection")
	}
	if det.Code != "PKR" {
		t.Fatalf("code = %q, want PKR", det.Code)
	}
	if det.Source != SourceJSONKey {
		t.Fatalf("source = %q, want %q", det.Source, SourceJSONKey)
	}
}

func TestFromPayloadKeyOrder(t *testing.T) {
	// currency comes before money_format in the key list.
	det, ok := FromPayload([]byte(`{"money_format": "EUR {{amount}}", "currency": "GBP"}`))
	if !ok || det.Code != "GBP" {
		t.Fatalf("det = %+v, want GBP via key order", det)
	}
}

func TestFromPayloadStructuredBeatsSymbol(t *testing.T) {
	// Both a structured key and a $ symbol are present; the structured
	// stage must win.
	payload := []byte(`{"currency": "PKR", "products": [{"title": "Widget", "price": "$9.99"}]}`)
	det, ok := FromPayload(payload)
	if !ok || det.Code != "PKR" || det.Source != SourceJSONKey {
		t.Fatalf("det = %+v, want PKR via %s", det, SourceJSONKey)
	}
}

func TestFromNested(t *testing.T) {
	payload := []byte(`{"shop": {"settings": {"currencyIsoCode": "TRY"}}}`)
	det, ok := FromPayload(payload)
	if !ok || det.Code != "TRY" || det.Source != SourceJSONNested {
		t.Fatalf("det = %+v, want TRY via %s", det, SourceJSONNested)
	}
}

func TestFromNestedDepthBound(t *testing.T) {
	// The code sits five levels deep; the bounded scan must not find
	// it, and no symbol appears either.
	payload := []byte(`{"a": {"b": {"c": {"d": {"currency_code": "BOB"}}}}}`)
	if det, ok := FromPayload(payload); ok {
		t.Fatalf("expected no detection past the depth bound, got %+v", det)
	}
}

func TestFromSymbolsTableOrder(t *testing.T) {
	// Both € and $ are present; $ precedes € in the table, so USD wins
	// regardless of text position.
	det, ok := FromSymbols("prices in € or $")
	if !ok || det.Code != "USD" {
		t.Fatalf("det = %+v, want USD by table order", det)
	}
}

func TestFromSymbolsLiteralCode(t *testing.T) {
	det, ok := FromSymbols(`{"note": "all amounts in PKR"}`)
	if !ok || det.Code != "PKR" {
		t.Fatalf("det = %+v, want PKR", det)
	}
}

func TestFromSymbolsBoundedPrefix(t *testing.T) {
	text := strings.Repeat("x", symbolScanLimit) + "€"
	if det, ok := FromSymbols(text); ok {
		t.Fatalf("symbol past the scan limit should be ignored, got %+v", det)
	}
}

func TestFromSymbolsNoSignal(t *testing.T) {
	if det, ok := FromSymbols(`{"products": []}`); ok {
		t.Fatalf("expected no detection, got %+v", det)
	}
}

func TestFromTLD(t *testing.T) {
	tests := []struct {
		shop string
		code string
		ok   bool
	}{
		{"shop.pk", "PKR", true},
		{"store.co.uk", "GBP", true},
		{"store.uk", "GBP", true},
		{"boutique.fr", "EUR", true},
		{"demo.myshopify.com", "", false},
		{"shop.in", "INR", true},
	}
	for _, tt := range tests {
		det, ok := FromTLD(tt.shop)
		if ok != tt.ok || det.Code != tt.code {
			t.Errorf("FromTLD(%q) = %+v/%v, want %q/%v", tt.shop, det, ok, tt.code, tt.ok)
		}
		if ok && det.Source != SourceTLD {
			t.Errorf("FromTLD(%q) source = %q, want %q", tt.shop, det.Source, SourceTLD)
		}
	}
}

func TestFromPriceText(t *testing.T) {
	tests := []struct {
		price string
		code  string
		ok    bool
	}{
		{"£9.99", "GBP", true},
		{"100.00 PKR", "PKR", true},
		{"₹2,499", "INR", true},
		{"12.00", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		det, ok := FromPriceText(tt.price)
		if ok != tt.ok || det.Code != tt.code {
			t.Errorf("FromPriceText(%q) = %+v/%v, want %q/%v", tt.price, det, ok, tt.code, tt.ok)
		}
	}
}

func TestFromHTMLMetaTag(t *testing.T) {
	body := `<html><head>
		<meta property="og:price:currency" content="CAD">
	</head><body></body></html>`
	det, ok := FromHTML(body)
	if !ok || det.Code != "CAD" || det.Source != SourceHTMLMeta {
		t.Fatalf("det = %+v, want CAD via %s", det, SourceHTMLMeta)
	}
}

func TestFromHTMLShopifyCurrencyScript(t *testing.T) {
	body := `<html><head><script>
		Shopify.currency = {"active": "AUD", "rate": "1.0"};
	</script></head><body></body></html>`
	det, ok := FromHTML(body)
	if !ok || det.Code != "AUD" || det.Source != SourceHTMLScript {
		t.Fatalf("det = %+v, want AUD via %s", det, SourceHTMLScript)
	}
}

func TestFromHTMLMetaBeatsScript(t *testing.T) {
	body := `<html><head>
		<meta itemprop="priceCurrency" content="JPY">
		<script>Shopify.currency = {"active": "USD"};</script>
	</head><body></body></html>`
	det, ok := FromHTML(body)
	if !ok || det.Code != "JPY" || det.Source != SourceHTMLMeta {
		t.Fatalf("det = %+v, want JPY via %s", det, SourceHTMLMeta)
	}
}

func TestFromHTMLPriceText(t *testing.T) {
	body := `<html><body>
		<span class="product-price">₩15,000</span>
	</body></html>`
	det, ok := FromHTML(body)
	if !ok || det.Code != "KRW" || det.Source != SourceHTMLText {
		t.Fatalf("det = %+v, want KRW via %s", det, SourceHTMLText)
	}
}

func TestFromHTMLNoSignal(t *testing.T) {
	if det, ok := FromHTML(`<html><body><p>hello</p></body></html>`); ok {
		t.Fatalf("expected no detection, got %+v", det)
	}
}
