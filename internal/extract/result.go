package extract

import (
	"strings"
	"time"
)

// Availability is the closed set of stock states a check can report.
type Availability string

const (
	InStock      Availability = "In Stock"
	OutOfStock   Availability = "Out of Stock"
	LimitedStock Availability = "Limited Stock"
	PreOrder     Availability = "Pre-order"
	Unknown      Availability = "Unknown"
)

// Method identifies which extraction strategy produced a result.
type Method string

const (
	MethodCSS Method = "css"
	MethodAI  Method = "ai"
)

const priceNotFound = "Price not found"

// Result is the normalized outcome of one product check.
type Result struct {
	URL           string       `json:"url"`
	ProductName   string       `json:"productName"`
	Price         string       `json:"price"`
	Availability  Availability `json:"availability"`
	OriginalPrice string       `json:"originalPrice,omitempty"`
	Currency      string       `json:"currency,omitempty"`
	Method        Method       `json:"extractionMethod,omitempty"`
	CheckedAt     time.Time    `json:"checkedAt"`
}

// Extraction is the raw field set a vendor extractor or the AI fallback
// yields before it is stamped into a Result.
type Extraction struct {
	Name          string
	Price         string
	Availability  Availability
	OriginalPrice string
	Currency      string
}

// NormalizeAvailability maps free-form availability text onto the closed
// enum. Anything unrecognized becomes Unknown rather than an error.
func NormalizeAvailability(s string) Availability {
	switch v := Availability(strings.TrimSpace(s)); v {
	case InStock, OutOfStock, LimitedStock, PreOrder, Unknown:
		return v
	}

	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "out of stock"),
		strings.Contains(lower, "sold out"),
		strings.Contains(lower, "unavailable"):
		return OutOfStock
	case strings.Contains(lower, "pre-order"), strings.Contains(lower, "preorder"):
		return PreOrder
	case strings.Contains(lower, "limited"), strings.Contains(lower, "low stock"),
		strings.Contains(lower, "only") && strings.Contains(lower, "left"):
		return LimitedStock
	case strings.Contains(lower, "in stock"), strings.Contains(lower, "available"):
		return InStock
	}
	return Unknown
}

// Usable reports whether a site-specific extraction is good enough to be
// final. Availability alone is decisive for downstream price comparison, so
// a known availability carries the result even when name and price parsing
// failed; otherwise both name and price must be known.
func (e *Extraction) Usable() bool {
	if e == nil {
		return false
	}
	if e.Availability != Unknown && e.Availability != "" {
		return true
	}
	return e.Name != "" && e.Name != string(Unknown) &&
		e.Price != "" && e.Price != string(Unknown)
}

// Successful reports whether a result ends the retry loop: the price must
// have actually been found.
func (r *Result) Successful() bool {
	if r == nil {
		return false
	}
	return r.Price != "" && r.Price != string(Unknown) && r.Price != priceNotFound
}

// FromExtraction stamps raw extracted fields into a Result, filling
// defaults for anything the extractor left empty.
func FromExtraction(e *Extraction, url string, method Method) *Result {
	r := &Result{
		URL:          url,
		ProductName:  string(Unknown),
		Price:        string(Unknown),
		Availability: Unknown,
		Method:       method,
		CheckedAt:    time.Now().UTC(),
	}
	if e == nil {
		return r
	}
	if e.Name != "" {
		r.ProductName = e.Name
	}
	if e.Price != "" {
		r.Price = e.Price
	}
	if e.Availability != "" {
		r.Availability = e.Availability
	}
	r.OriginalPrice = e.OriginalPrice
	r.Currency = e.Currency
	return r
}
