package extract

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// ErrNotApplicable signals that no site-specific extractor matched, or that
// the matched extractor produced nothing usable. The caller should go to the
// AI fallback; this is a routing signal, not a failure.
var ErrNotApplicable = errors.New("extract: no site-specific data")

// Vendor binds a hostname fragment to a deterministic extractor. Prepare is
// an optional best-effort pre-step (e.g. injecting a delivery postcode
// before stock data becomes visible); extraction proceeds whether or not it
// succeeded.
type Vendor struct {
	Domain  string
	Prepare func(page playwright.Page, logger *slog.Logger)
	Extract func(page playwright.Page) *Extraction
}

// Selector routes a URL to a site-specific extractor when one exists.
type Selector struct {
	registry []Vendor
	logger   *slog.Logger
}

// NewSelector builds a selector over a vendor registry. Registry order is
// precedence order: the first domain fragment contained in the hostname
// wins.
func NewSelector(registry []Vendor, logger *slog.Logger) *Selector {
	return &Selector{
		registry: registry,
		logger:   logger.With("component", "selector"),
	}
}

// Match finds the vendor for a URL by substring containment against the
// hostname, first match in declaration order.
func (s *Selector) Match(rawURL string) (*Vendor, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, false
	}
	host := strings.ToLower(u.Hostname())
	for i := range s.registry {
		if strings.Contains(host, s.registry[i].Domain) {
			return &s.registry[i], true
		}
	}
	return nil, false
}

// Extract runs the site-specific path: match, wait for content to
// stabilize, run vendor pre-steps, extract, and validate against the
// acceptance threshold. Every non-usable outcome maps to ErrNotApplicable.
func (s *Selector) Extract(ctx context.Context, page playwright.Page, rawURL string) (*Extraction, error) {
	vendor, ok := s.Match(rawURL)
	if !ok {
		return nil, ErrNotApplicable
	}
	s.logger.Info("site-specific extractor matched", "vendor", vendor.Domain, "url", rawURL)

	// Never extract from a half-loaded page.
	if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(60_000),
	}); err != nil {
		s.logger.Warn("page content never stabilized", "vendor", vendor.Domain, "error", err)
		return nil, ErrNotApplicable
	}

	if vendor.Prepare != nil {
		vendor.Prepare(page, s.logger)
	}

	extraction := vendor.Extract(page)
	if !extraction.Usable() {
		s.logger.Info("site-specific extraction below validity threshold", "vendor", vendor.Domain)
		return nil, ErrNotApplicable
	}
	return extraction, nil
}
