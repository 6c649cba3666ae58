package extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestVisibleTextStripsNonContent(t *testing.T) {
	html := `<html><head>
		<script>var tracking = "secret";</script>
		<style>.hidden { display: none }</style>
	</head><body>
		<h1>Super Widget 3000</h1>
		<noscript>enable javascript</noscript>
		<p>In stock, dispatched tomorrow. £24.99</p>
	</body></html>`

	text := VisibleText(html, 0)

	assert.True(t, strings.HasPrefix(text, "Super Widget 3000"), "headings come first")
	assert.Contains(t, text, "£24.99")
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "display: none")
	assert.NotContains(t, text, "enable javascript")
}

func TestVisibleTextBounded(t *testing.T) {
	html := "<html><body><p>" + strings.Repeat("word ", 10_000) + "</p></body></html>"
	text := VisibleText(html, 500)
	assert.LessOrEqual(t, len(text), 500)
}

func TestTruncateNeverSplitsRunes(t *testing.T) {
	s := "aaaa£24.99"
	for maxLen := 1; maxLen <= len(s); maxLen++ {
		got := truncate(s, maxLen)
		assert.True(t, utf8.ValidString(got), "maxLen=%d produced invalid UTF-8: %q", maxLen, got)
		assert.LessOrEqual(t, len(got), maxLen)
	}
	// The pound sign starts at byte 4 and is two bytes wide; cutting at 5
	// must drop the whole rune.
	assert.Equal(t, "aaaa", truncate(s, 5))
	assert.Equal(t, "aaaa£", truncate(s, 6))
}

func TestParseLoose(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantName string
		price    string
		currency string
		avail    Availability
	}{
		{
			name:     "full product page text",
			text:     "Super Widget 3000\nAdd to basket\nNow £24.99",
			wantName: "Super Widget 3000",
			price:    "£24.99",
			currency: "GBP",
			avail:    InStock,
		},
		{
			name:     "sold out beats add to cart",
			text:     "Gadget\nSold out\nAdd to cart when back\n£10.00",
			wantName: "Gadget",
			price:    "£10.00",
			currency: "GBP",
			avail:    OutOfStock,
		},
		{
			name:     "pre-order beats limited",
			text:     "Console\nPre-order now, limited stock expected\n€499.99",
			wantName: "Console",
			price:    "€499.99",
			currency: "EUR",
			avail:    PreOrder,
		},
		{
			name:     "limited beats add to cart",
			text:     "Lamp\nOnly a few left\nAdd to bag\n$19.99",
			wantName: "Lamp",
			price:    "$19.99",
			currency: "USD",
			avail:    LimitedStock,
		},
		{
			name:  "nothing recognizable",
			text:  "x\ny",
			avail: Unknown,
		},
		{
			name:     "thousands separator",
			text:     "Television\nAdd to trolley\n£1,299.00",
			wantName: "Television",
			price:    "£1,299.00",
			currency: "GBP",
			avail:    InStock,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ParseLoose(tt.text)
			assert.Equal(t, tt.wantName, e.Name)
			assert.Equal(t, tt.price, e.Price)
			assert.Equal(t, tt.currency, e.Currency)
			assert.Equal(t, tt.avail, e.Availability)
		})
	}
}

func TestParseLooseSkipsPriceLinesForName(t *testing.T) {
	e := ParseLoose("£5.99 per unit\nActual Product Name\nAdd to basket")
	assert.Equal(t, "Actual Product Name", e.Name)
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"£24.99", "£24.99"},
		{"Now £24.99 was £30", "£24.99"},
		{"£ 24.99", "£24.99"},
		{"£1,299.00", "£1,299.00"},
		{"24.99", "24.99"}, // no symbol, passed through untouched
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePrice(tt.in), tt.in)
	}
}

func TestCurrencyOf(t *testing.T) {
	assert.Equal(t, "GBP", currencyOf("£9.99"))
	assert.Equal(t, "EUR", currencyOf("€9.99"))
	assert.Equal(t, "USD", currencyOf("$9.99"))
	assert.Equal(t, "", currencyOf("9.99"))
}
