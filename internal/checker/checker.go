// Package checker turns "check this URL" into a best-effort, retried,
// normalized product result, choosing between the pooled-browser and
// proxy-aware paths.
package checker

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	neturl "net/url"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/danvale/product-checker/internal/browser"
	"github.com/danvale/product-checker/internal/browserpool"
	"github.com/danvale/product-checker/internal/extract"
	"github.com/danvale/product-checker/internal/metrics"
	"github.com/danvale/product-checker/internal/ratelimit"
)

// SiteExtractor routes a URL to a deterministic site-specific extraction.
type SiteExtractor interface {
	Extract(ctx context.Context, page playwright.Page, rawURL string) (*extract.Extraction, error)
}

// FallbackExtractor recovers product data when no site-specific extractor
// produced usable data.
type FallbackExtractor interface {
	Extract(ctx context.Context, page playwright.Page, rawURL, expectedName string) (*extract.Extraction, error)
}

// Config holds retry, pacing, and proxy parameters for the orchestrator.
type Config struct {
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	NavGapMin     time.Duration
	NavGapMax     time.Duration
	ProxyServer   string
	ProxyUsername string
	ProxyPassword string
}

// DefaultConfig returns the production profile: 3 retries (4 attempts
// total), 2s base doubling per attempt capped at 15s, and 1-3s spacing
// between navigations to the same host.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		BackoffBase: 2 * time.Second,
		BackoffMax:  15 * time.Second,
		NavGapMin:   time.Second,
		NavGapMax:   3 * time.Second,
	}
}

type attemptFunc func(ctx context.Context, attempt int) (*extract.Result, error)

// Checker drives one product check end to end.
type Checker struct {
	pool     *browserpool.Pool
	selector SiteExtractor
	ai       FallbackExtractor
	pw       *playwright.Playwright
	opts     *browser.Options
	cfg      Config
	limiter  *ratelimit.HostLimiter
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// Seams swapped out in tests: backoff sleeping, navigation, humanize
	// jitter, and dedicated (non-pooled) page provisioning.
	sleep            func(ctx context.Context, d time.Duration) error
	navigate         func(page playwright.Page, url string, logger *slog.Logger) error
	humanize         func(page playwright.Page)
	newDedicatedPage func(opts *browser.Options) (playwright.Page, func(), error)
}

// New constructs a checker. pw is used for dedicated (non-pooled) browser
// launches on the proxied first attempt and its direct fallback.
func New(pool *browserpool.Pool, selector SiteExtractor, ai FallbackExtractor,
	pw *playwright.Playwright, opts *browser.Options, cfg Config,
	logger *slog.Logger, m *metrics.Metrics) *Checker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultConfig().BackoffMax
	}
	if opts == nil {
		opts = browser.DefaultOptions()
	}
	c := &Checker{
		pool:     pool,
		selector: selector,
		ai:       ai,
		pw:       pw,
		opts:     opts,
		cfg:      cfg,
		limiter:  ratelimit.NewHostLimiter(cfg.NavGapMin, cfg.NavGapMax),
		logger:   logger.With("component", "checker"),
		metrics:  m,
	}
	c.sleep = sleepCtx
	c.navigate = browser.Navigate
	c.humanize = browser.Humanize
	c.newDedicatedPage = c.launchDedicatedPage
	return c
}

// Check runs the full retried product check for one URL. productName is an
// optional hint for disambiguating multi-product pages.
func (c *Checker) Check(ctx context.Context, url, productName string) (*extract.Result, error) {
	return c.withRetry(ctx, func(ctx context.Context, attempt int) (*extract.Result, error) {
		return c.attempt(ctx, url, productName, attempt)
	})
}

// withRetry wraps one attempt in the exponential-backoff loop. A returned
// result with an unknown price is remembered as best-effort and preferred
// over an error once attempts are exhausted.
func (c *Checker) withRetry(ctx context.Context, fn attemptFunc) (*extract.Result, error) {
	var lastErr error
	var bestEffort *extract.Result

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.IncRetry()
			delay := c.backoffDelay(attempt - 1)
			c.logger.Info("retrying check", "attempt", attempt+1, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				break
			}
		}

		res, err := fn(ctx, attempt)
		if err != nil {
			lastErr = err
			c.logger.Warn("check attempt failed", "attempt", attempt+1, "error", err)
			continue
		}
		if res.Successful() {
			c.metrics.IncCheck("success")
			return res, nil
		}
		bestEffort = res
		c.logger.Info("check attempt incomplete", "attempt", attempt+1, "price", res.Price)
	}

	if bestEffort != nil {
		c.metrics.IncCheck("best_effort")
		return bestEffort, nil
	}
	c.metrics.IncCheck("failed")
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return nil, lastErr
}

// backoffDelay computes the sleep before a retry:
// min(base * 2^n + jitter up to 1s, max) for failed-attempt index n.
func (c *Checker) backoffDelay(n int) time.Duration {
	d := c.cfg.BackoffBase << uint(n)
	d += time.Duration(rand.Int63n(int64(time.Second)))
	if d > c.cfg.BackoffMax {
		d = c.cfg.BackoffMax
	}
	return d
}

// attempt runs one end-to-end try. Without a proxy everything goes through
// the pool. With a proxy, the first attempt uses a dedicated single-use
// proxied browser and retries use the pool (whose processes carry the same
// proxy); any tunnel-signature failure falls back to a dedicated
// NON-proxied browser within the same attempt.
func (c *Checker) attempt(ctx context.Context, url, productName string, attempt int) (*extract.Result, error) {
	if c.cfg.ProxyServer == "" {
		return c.pooledAttempt(ctx, url, productName)
	}

	var res *extract.Result
	var err error
	if attempt == 0 {
		res, err = c.dedicatedAttempt(ctx, url, productName, c.proxyOptions())
	} else {
		res, err = c.pooledAttempt(ctx, url, productName)
	}
	if err == nil || !browser.IsTunnelError(err) {
		return res, err
	}

	c.metrics.IncTunnelFallback()
	c.logger.Warn("proxy tunnel failed, falling back to direct navigation", "url", url)
	return c.dedicatedAttempt(ctx, url, productName, c.directOptions())
}

func (c *Checker) proxyOptions() *browser.Options {
	opts := *c.opts
	opts.ProxyServer = c.cfg.ProxyServer
	opts.ProxyUsername = c.cfg.ProxyUsername
	opts.ProxyPassword = c.cfg.ProxyPassword
	return &opts
}

func (c *Checker) directOptions() *browser.Options {
	opts := *c.opts
	opts.ProxyServer = ""
	opts.ProxyUsername = ""
	opts.ProxyPassword = ""
	return &opts
}

// pooledAttempt runs an attempt on a pooled context. Release is scoped so
// it executes on every exit path.
func (c *Checker) pooledAttempt(ctx context.Context, url, productName string) (*extract.Result, error) {
	lease, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := lease.Release(); rerr != nil && !errors.Is(rerr, browserpool.ErrLeaseReleased) {
			c.logger.Warn("lease release failed", "lease", lease.ID, "error", rerr)
		}
	}()
	return c.runAttempt(ctx, lease.Page, url, productName)
}

// dedicatedAttempt runs an attempt on a single-use browser outside the pool
// and tears it down afterwards.
func (c *Checker) dedicatedAttempt(ctx context.Context, url, productName string, opts *browser.Options) (*extract.Result, error) {
	page, cleanup, err := c.newDedicatedPage(opts)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return c.runAttempt(ctx, page, url, productName)
}

// launchDedicatedPage is the production page provisioner for dedicated
// attempts: one browser process, one fingerprint context, one page.
func (c *Checker) launchDedicatedPage(opts *browser.Options) (playwright.Page, func(), error) {
	if c.pw == nil {
		return nil, nil, errors.New("checker: no playwright driver for dedicated launch")
	}
	b, err := browser.Launch(c.pw, opts)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if cerr := b.Close(); cerr != nil {
			c.logger.Warn("failed to close dedicated browser", "error", cerr)
		}
	}
	bctx, err := browser.NewFingerprintContext(b)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	page, err := bctx.NewPage()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return page, cleanup, nil
}

// runAttempt is the shared navigate-then-extract core of both paths.
func (c *Checker) runAttempt(ctx context.Context, page playwright.Page, rawURL, productName string) (*extract.Result, error) {
	if u, perr := neturl.Parse(rawURL); perr == nil {
		if err := c.limiter.Wait(ctx, u.Hostname()); err != nil {
			return nil, err
		}
	}

	c.humanize(page)
	if err := c.navigate(page, rawURL, c.logger); err != nil {
		return nil, err
	}
	c.humanize(page)

	extraction, err := c.selector.Extract(ctx, page, rawURL)
	method := extract.MethodCSS
	if err != nil {
		if !errors.Is(err, extract.ErrNotApplicable) {
			return nil, err
		}
		extraction, err = c.ai.Extract(ctx, page, rawURL, productName)
		if err != nil {
			return nil, err
		}
		method = extract.MethodAI
	}

	c.metrics.IncExtraction(string(method))
	return extract.FromExtraction(extraction, rawURL, method), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
