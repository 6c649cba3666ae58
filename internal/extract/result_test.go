package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAvailability(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Availability
	}{
		{"exact in stock", "In Stock", InStock},
		{"exact out of stock", "Out of Stock", OutOfStock},
		{"exact pre-order", "Pre-order", PreOrder},
		{"exact with padding", "  Limited Stock  ", LimitedStock},
		{"lexical sold out", "Currently SOLD OUT online", OutOfStock},
		{"lexical unavailable", "This item is unavailable", OutOfStock},
		{"lexical preorder", "Preorder now for release day", PreOrder},
		{"lexical low stock", "Hurry, low stock!", LimitedStock},
		{"lexical only n left", "Only 2 left in stock", LimitedStock},
		{"lexical in stock", "in stock, dispatched tomorrow", InStock},
		{"lexical available", "Available for home delivery", InStock},
		{"unrecognized", "lorem ipsum", Unknown},
		{"empty", "", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAvailability(tt.in))
		})
	}
}

func TestExtractionUsable(t *testing.T) {
	tests := []struct {
		name string
		e    *Extraction
		want bool
	}{
		{"nil", nil, false},
		{"all unknown", &Extraction{Availability: Unknown}, false},
		{"availability alone carries", &Extraction{Availability: OutOfStock}, true},
		{"name and price without availability", &Extraction{Name: "Widget", Price: "£9.99", Availability: Unknown}, true},
		{"name only", &Extraction{Name: "Widget", Availability: Unknown}, false},
		{"price only", &Extraction{Price: "£9.99", Availability: Unknown}, false},
		{"unknown placeholders rejected", &Extraction{Name: "Unknown", Price: "Unknown", Availability: Unknown}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.e.Usable())
		})
	}
}

func TestResultSuccessful(t *testing.T) {
	assert.False(t, (*Result)(nil).Successful())
	assert.False(t, (&Result{Price: ""}).Successful())
	assert.False(t, (&Result{Price: "Unknown"}).Successful())
	assert.False(t, (&Result{Price: "Price not found"}).Successful())
	assert.True(t, (&Result{Price: "£9.99"}).Successful())
}

func TestFromExtractionFillsDefaults(t *testing.T) {
	r := FromExtraction(nil, "https://example.com/p", MethodCSS)
	require.NotNil(t, r)
	assert.Equal(t, "https://example.com/p", r.URL)
	assert.Equal(t, "Unknown", r.ProductName)
	assert.Equal(t, "Unknown", r.Price)
	assert.Equal(t, Unknown, r.Availability)
	assert.Equal(t, MethodCSS, r.Method)
	assert.False(t, r.CheckedAt.IsZero())
}

func TestFromExtractionCopiesFields(t *testing.T) {
	r := FromExtraction(&Extraction{
		Name:          "Widget",
		Price:         "£9.99",
		Availability:  LimitedStock,
		OriginalPrice: "£14.99",
		Currency:      "GBP",
	}, "https://example.com/p", MethodAI)

	assert.Equal(t, "Widget", r.ProductName)
	assert.Equal(t, "£9.99", r.Price)
	assert.Equal(t, LimitedStock, r.Availability)
	assert.Equal(t, "£14.99", r.OriginalPrice)
	assert.Equal(t, "GBP", r.Currency)
	assert.Equal(t, MethodAI, r.Method)
}
