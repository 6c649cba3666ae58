package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/danvale/product-checker/internal/llm"
)

const maxPromptChars = 24_000

const systemPrompt = `You are a product-page reader for a UK price-comparison service.
You are given the visible text of a retail product page. Extract data for the
PRIMARY product only: the block adjacent to the main H1 title with its price
and add-to-basket control. Ignore promotional banners, recommendation
carousels, "customers also bought" sections, and sponsored products.

Classify availability in this exact priority order:
1. Out-of-stock indicators (sold out, unavailable) => "Out of Stock"
2. Pre-order indicators => "Pre-order"
3. Limited-stock indicators (low stock, only N left) => "Limited Stock"
4. An enabled add-to-cart/add-to-basket control => "In Stock"
5. Otherwise => "Unknown"

The price must be the currency-symbol-prefixed string as shown on the page.`

var productSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name": map[string]any{
			"type":        "string",
			"description": "Primary product title",
		},
		"price": map[string]any{
			"type":        "string",
			"description": "Current price with currency symbol, e.g. £24.99",
		},
		"availability": map[string]any{
			"type": "string",
			"enum": []any{"In Stock", "Out of Stock", "Limited Stock", "Pre-order", "Unknown"},
		},
		"originalPrice": map[string]any{
			"type":        "string",
			"description": "Pre-discount price if shown, else empty",
		},
		"currency": map[string]any{
			"type":        "string",
			"description": "ISO currency code if determinable, else empty",
		},
	},
	"required":             []any{"name", "price", "availability"},
	"additionalProperties": false,
}

type aiPayload struct {
	Name          string `json:"name"`
	Price         string `json:"price"`
	Availability  string `json:"availability"`
	OriginalPrice string `json:"originalPrice"`
	Currency      string `json:"currency"`
}

// AIExtractor recovers product data from a live page when no site-specific
// extractor produced usable data.
type AIExtractor struct {
	provider llm.Provider
	logger   *slog.Logger
}

// NewAIExtractor builds the fallback extractor over a model provider.
func NewAIExtractor(provider llm.Provider, logger *slog.Logger) *AIExtractor {
	return &AIExtractor{
		provider: provider,
		logger:   logger.With("component", "ai_extractor"),
	}
}

// Extract dismisses any cookie banner, snapshots the page, and runs the
// structured-extraction call against its visible text.
func (a *AIExtractor) Extract(ctx context.Context, page playwright.Page, rawURL, expectedName string) (*Extraction, error) {
	a.dismissCookieBanner(page)

	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}
	return a.ExtractFromHTML(ctx, html, rawURL, expectedName)
}

// ExtractFromHTML runs the model call over page HTML. When the structured
// output is malformed or the call fails outright, the loose text parser
// takes over so the attempt still yields a best-effort extraction.
func (a *AIExtractor) ExtractFromHTML(ctx context.Context, html, rawURL, expectedName string) (*Extraction, error) {
	text := VisibleText(html, maxPromptChars)

	var prompt strings.Builder
	prompt.WriteString("Page URL: ")
	prompt.WriteString(rawURL)
	prompt.WriteString("\n")
	if expectedName != "" {
		prompt.WriteString("The page is expected to sell: ")
		prompt.WriteString(expectedName)
		prompt.WriteString("\nIf several products appear, pick the one matching that name.\n")
	}
	prompt.WriteString("\nPage text:\n")
	prompt.WriteString(text)

	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: prompt.String()},
		},
		MaxTokens:   1024,
		Temperature: 0.1,
		JSONSchema:  productSchema,
	})
	if err != nil {
		a.logger.Warn("model call failed, using loose text parse", "url", rawURL, "error", err)
		return ParseLoose(text), nil
	}

	var payload aiPayload
	if err := json.Unmarshal([]byte(resp.Content), &payload); err != nil || payload.Name == "" && payload.Price == "" {
		a.logger.Warn("structured output unparseable, using loose text parse",
			"url", rawURL, "provider", a.provider.Name())
		return ParseLoose(text), nil
	}

	return &Extraction{
		Name:          payload.Name,
		Price:         payload.Price,
		Availability:  NormalizeAvailability(payload.Availability),
		OriginalPrice: payload.OriginalPrice,
		Currency:      payload.Currency,
	}, nil
}

// dismissCookieBanner clicks through the usual consent prompts. Absence of
// a banner is not an error; every failure here is swallowed.
func (a *AIExtractor) dismissCookieBanner(page playwright.Page) {
	selectors := []string{
		"#onetrust-accept-btn-handler",
		"button#accept-cookies",
		"button[data-testid='cookie-accept-all']",
		"button:has-text('Accept all')",
		"button:has-text('Accept All Cookies')",
		"button:has-text('Allow all')",
	}
	for _, sel := range selectors {
		btn := page.Locator(sel).First()
		if n, err := btn.Count(); err != nil || n == 0 {
			continue
		}
		if err := btn.Click(playwright.LocatorClickOptions{
			Timeout: playwright.Float(3_000),
		}); err == nil {
			return
		}
	}
}
