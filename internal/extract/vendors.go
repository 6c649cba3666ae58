package extract

import (
	"log/slog"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// vendorSelectors is the declarative per-site lookup table: CSS selectors
// for the three core fields, tried in order.
type vendorSelectors struct {
	name  []string
	price []string
	avail []string
}

// DefaultRegistry returns the built-in vendor registry. Order matters:
// it is the precedence order for ambiguous hostnames.
func DefaultRegistry() []Vendor {
	return []Vendor{
		tableVendor("amazon.co.uk", vendorSelectors{
			name:  []string{"#productTitle"},
			price: []string{"span.a-price span.a-offscreen", "#priceblock_ourprice"},
			avail: []string{"#availability span", "#outOfStock"},
		}),
		tableVendor("argos.co.uk", vendorSelectors{
			name:  []string{"h1[data-test='product-title']", "h1"},
			price: []string{"[data-test='product-price-primary']", "li h2"},
			avail: []string{"[data-test='fulfilment-method']", "[data-test='component-att-button']"},
		}),
		tableVendor("currys.co.uk", vendorSelectors{
			name:  []string{"h1.product-name", "h1"},
			price: []string{".product-price .value", "[data-product='price']"},
			avail: []string{".stock-status", ".add-to-basket-container button"},
		}),
		tableVendor("johnlewis.com", vendorSelectors{
			name:  []string{"h1[data-testid='product:title']", "h1"},
			price: []string{"[data-testid='product:price']", ".price"},
			avail: []string{"[data-testid='stock-availability']", "button[data-testid='add-to-basket']"},
		}),
		tableVendor("boots.com", vendorSelectors{
			name:  []string{"#estore_product_title", "h1"},
			price: []string{"#PDP_productPrice", ".product-price"},
			avail: []string{"#PDP_availability", "#add-to-basket"},
		}),
		tableVendor("superdrug.com", vendorSelectors{
			name:  []string{".product-details__name", "h1"},
			price: []string{".product-details__price", ".price__current"},
			avail: []string{".product-details__stock", ".add-to-cart button"},
		}),
		// Screwfix hides stock and delivery pricing behind a postcode
		// dialog, so inject one before reading availability.
		{
			Domain:  "screwfix.com",
			Prepare: preparePostcode,
			Extract: tableExtract(vendorSelectors{
				name:  []string{"h1[data-qaid='pdp-product-name']", "h1"},
				price: []string{"[data-qaid='pdp-price']", ".price"},
				avail: []string{"[data-qaid='pdp-stock-status']", "#product-stock"},
			}),
		},
		tableVendor("tesco.com", vendorSelectors{
			name:  []string{"h1.product-details-tile__title", "h1"},
			price: []string{".price-control-wrapper .value", "[data-auto='price-value']"},
			avail: []string{"[data-auto='availability']", ".button--add"},
		}),
	}
}

func tableVendor(domain string, sels vendorSelectors) Vendor {
	return Vendor{Domain: domain, Extract: tableExtract(sels)}
}

func tableExtract(sels vendorSelectors) func(page playwright.Page) *Extraction {
	return func(page playwright.Page) *Extraction {
		e := &Extraction{
			Name:         textOf(page, sels.name...),
			Availability: Unknown,
		}
		if raw := textOf(page, sels.price...); raw != "" {
			e.Price = normalizePrice(raw)
			e.Currency = currencyOf(e.Price)
		}
		if raw := textOf(page, sels.avail...); raw != "" {
			e.Availability = NormalizeAvailability(raw)
		}
		return e
	}
}

// preparePostcode fills a delivery-postcode dialog with a central London
// postcode so stock data renders. Best-effort: extraction proceeds either
// way.
func preparePostcode(page playwright.Page, logger *slog.Logger) {
	input := page.Locator("input[name='postcode'], input#postcode").First()
	if n, err := input.Count(); err != nil || n == 0 {
		return
	}
	if err := input.Fill("EC1A 1BB", playwright.LocatorFillOptions{
		Timeout: playwright.Float(5_000),
	}); err != nil {
		logger.Warn("postcode injection failed", "error", err)
		return
	}
	submit := page.Locator("button[type='submit'], button[data-qaid='postcode-submit']").First()
	if err := submit.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(5_000),
	}); err != nil {
		logger.Warn("postcode submit failed", "error", err)
	}
}

// textOf returns the first non-empty trimmed text among the selectors.
func textOf(page playwright.Page, selectors ...string) string {
	for _, sel := range selectors {
		loc := page.Locator(sel).First()
		if n, err := loc.Count(); err != nil || n == 0 {
			continue
		}
		txt, err := loc.TextContent(playwright.LocatorTextContentOptions{
			Timeout: playwright.Float(5_000),
		})
		if err != nil {
			continue
		}
		if txt = strings.TrimSpace(txt); txt != "" {
			return txt
		}
	}
	return ""
}

// normalizePrice reduces a raw price string to its first currency token.
func normalizePrice(raw string) string {
	raw = strings.TrimSpace(raw)
	if tok := priceTokenRe.FindString(raw); tok != "" {
		return strings.ReplaceAll(tok, " ", "")
	}
	return raw
}

func currencyOf(price string) string {
	switch {
	case strings.HasPrefix(price, "£"):
		return "GBP"
	case strings.HasPrefix(price, "€"):
		return "EUR"
	case strings.HasPrefix(price, "$"):
		return "USD"
	}
	return ""
}
