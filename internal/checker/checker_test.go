package checker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danvale/product-checker/internal/browser"
	"github.com/danvale/product-checker/internal/browserpool"
	"github.com/danvale/product-checker/internal/extract"
)

func newTestChecker(t *testing.T, cfg Config) *Checker {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(nil, nil, nil, nil, nil, cfg, logger, nil)
	c.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return c
}

func successResult(url string) *extract.Result {
	return &extract.Result{
		URL:          url,
		ProductName:  "Widget",
		Price:        "£9.99",
		Availability: extract.InStock,
		CheckedAt:    time.Now().UTC(),
	}
}

func unknownPriceResult(url string) *extract.Result {
	return &extract.Result{
		URL:          url,
		ProductName:  "Widget",
		Price:        string(extract.Unknown),
		Availability: extract.InStock,
		CheckedAt:    time.Now().UTC(),
	}
}

func TestWithRetrySucceedsWithoutRetrying(t *testing.T) {
	c := newTestChecker(t, DefaultConfig())

	calls := 0
	res, err := c.withRetry(context.Background(), func(ctx context.Context, attempt int) (*extract.Result, error) {
		calls++
		return successResult("https://example.com/p"), nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "£9.99", res.Price)
}

func TestWithRetryExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	c := newTestChecker(t, Config{MaxRetries: 3, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond})

	calls := 0
	wantErr := errors.New("navigation timed out")
	res, err := c.withRetry(context.Background(), func(ctx context.Context, attempt int) (*extract.Result, error) {
		calls++
		return nil, wantErr
	})

	assert.Nil(t, res)
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 4, calls, "MaxRetries=3 means four attempts in total")
}

func TestWithRetryRecoversAfterFailure(t *testing.T) {
	c := newTestChecker(t, DefaultConfig())

	calls := 0
	res, err := c.withRetry(context.Background(), func(ctx context.Context, attempt int) (*extract.Result, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("blocked")
		}
		return successResult("https://example.com/p"), nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, res.Successful())
}

func TestWithRetryPrefersBestEffortOverError(t *testing.T) {
	c := newTestChecker(t, Config{MaxRetries: 2, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond})

	calls := 0
	res, err := c.withRetry(context.Background(), func(ctx context.Context, attempt int) (*extract.Result, error) {
		calls++
		if calls == 2 {
			return unknownPriceResult("https://example.com/p"), nil
		}
		return nil, errors.New("blocked")
	})

	require.NoError(t, err, "a price-less result beats reporting failure")
	require.NotNil(t, res)
	assert.Equal(t, 3, calls, "an incomplete result still burns retries hunting for a price")
	assert.Equal(t, string(extract.Unknown), res.Price)
	assert.False(t, res.Successful())
}

func TestWithRetryKeepsRetryingOnUnknownPrice(t *testing.T) {
	c := newTestChecker(t, Config{MaxRetries: 1, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond})

	calls := 0
	res, err := c.withRetry(context.Background(), func(ctx context.Context, attempt int) (*extract.Result, error) {
		calls++
		if calls == 1 {
			return unknownPriceResult("https://example.com/p"), nil
		}
		return successResult("https://example.com/p"), nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, res.Successful(), "a later complete result replaces the best-effort one")
}

func TestWithRetryStopsOnCancelledContext(t *testing.T) {
	c := newTestChecker(t, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	wantErr := errors.New("blocked")
	res, err := c.withRetry(ctx, func(ctx context.Context, attempt int) (*extract.Result, error) {
		calls++
		cancel()
		return nil, wantErr
	})

	assert.Nil(t, res)
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls, "no retry once the caller has gone away")
}

func TestBackoffDelayBounds(t *testing.T) {
	c := newTestChecker(t, Config{
		MaxRetries:  3,
		BackoffBase: 2 * time.Second,
		BackoffMax:  15 * time.Second,
	})

	tests := []struct {
		name string
		n    int
		min  time.Duration
		max  time.Duration
	}{
		{"first retry", 0, 2 * time.Second, 3 * time.Second},
		{"second retry", 1, 4 * time.Second, 5 * time.Second},
		{"third retry", 2, 8 * time.Second, 9 * time.Second},
		{"capped", 4, 15 * time.Second, 15 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				d := c.backoffDelay(tt.n)
				assert.GreaterOrEqual(t, d, tt.min)
				assert.LessOrEqual(t, d, tt.max)
			}
		})
	}
}

func TestNewFillsRetryDefaults(t *testing.T) {
	c := newTestChecker(t, Config{})

	assert.Equal(t, 3, c.cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, c.cfg.BackoffBase)
	assert.Equal(t, 15*time.Second, c.cfg.BackoffMax)
}

type stubSelector struct {
	extraction *extract.Extraction
	err        error
	calls      int
}

func (s *stubSelector) Extract(ctx context.Context, page playwright.Page, rawURL string) (*extract.Extraction, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.extraction, nil
}

type stubFallback struct {
	extraction *extract.Extraction
	calls      int
}

func (s *stubFallback) Extract(ctx context.Context, page playwright.Page, rawURL, expectedName string) (*extract.Extraction, error) {
	s.calls++
	return s.extraction, nil
}

type stubPoolBrowser struct{}

func (stubPoolBrowser) NewContext() (browserpool.Context, error) { return stubPoolContext{}, nil }
func (stubPoolBrowser) IsConnected() bool                        { return true }
func (stubPoolBrowser) Close() error                             { return nil }

type stubPoolContext struct{}

func (stubPoolContext) NewPage() (playwright.Page, error) { return nil, nil }
func (stubPoolContext) Close() error                      { return nil }

func stubPool(t *testing.T, logger *slog.Logger) *browserpool.Pool {
	t.Helper()
	return browserpool.New(browserpool.Config{Size: 1},
		func(ctx context.Context) (browserpool.Browser, error) { return stubPoolBrowser{}, nil },
		logger, nil)
}

func TestCheckSiteSpecificPathSucceedsFirstAttempt(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sel := &stubSelector{extraction: &extract.Extraction{
		Name: "Kettle", Price: "£24.99", Availability: extract.InStock, Currency: "GBP",
	}}
	fb := &stubFallback{}
	pool := stubPool(t, logger)

	c := New(pool, sel, fb, nil, nil, Config{}, logger, nil)
	sleeps, navCalls := 0, 0
	c.sleep = func(ctx context.Context, d time.Duration) error { sleeps++; return nil }
	c.humanize = func(playwright.Page) {}
	c.navigate = func(page playwright.Page, url string, l *slog.Logger) error { navCalls++; return nil }

	res, err := c.Check(context.Background(), "https://www.amazon.co.uk/dp/B000", "Kettle")
	require.NoError(t, err)
	assert.Equal(t, "Kettle", res.ProductName)
	assert.Equal(t, "£24.99", res.Price)
	assert.Equal(t, extract.MethodCSS, res.Method)
	assert.Equal(t, 1, navCalls, "first attempt succeeds, no retry")
	assert.Equal(t, 0, sleeps)
	assert.Equal(t, 1, sel.calls)
	assert.Equal(t, 0, fb.calls, "AI fallback stays out of the site-specific path")
	assert.Equal(t, 0, pool.Stats().Busy, "lease released on exit")
}

func TestCheckRoutesToAIWhenSiteNotApplicable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sel := &stubSelector{err: extract.ErrNotApplicable}
	fb := &stubFallback{extraction: &extract.Extraction{
		Name: "Kettle", Price: "£24.99", Availability: extract.InStock,
	}}

	c := New(stubPool(t, logger), sel, fb, nil, nil, Config{}, logger, nil)
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	c.humanize = func(playwright.Page) {}
	c.navigate = func(page playwright.Page, url string, l *slog.Logger) error { return nil }

	res, err := c.Check(context.Background(), "https://example.com/p", "Kettle")
	require.NoError(t, err)
	assert.Equal(t, extract.MethodAI, res.Method)
	assert.Equal(t, 1, sel.calls)
	assert.Equal(t, 1, fb.calls)
}

func TestCheckProxyTunnelFallsBackDirectWithinAttempt(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sel := &stubSelector{extraction: &extract.Extraction{
		Name: "Kettle", Price: "£24.99", Availability: extract.InStock,
	}}

	c := New(nil, sel, &stubFallback{}, nil, nil, Config{
		ProxyServer:   "http://proxy.example.com:8080",
		ProxyUsername: "user",
		ProxyPassword: "pass",
	}, logger, nil)

	sleeps := 0
	c.sleep = func(ctx context.Context, d time.Duration) error { sleeps++; return nil }
	c.humanize = func(playwright.Page) {}

	var egress []string
	c.newDedicatedPage = func(opts *browser.Options) (playwright.Page, func(), error) {
		egress = append(egress, opts.ProxyServer)
		return nil, func() {}, nil
	}

	navCalls := 0
	c.navigate = func(page playwright.Page, url string, l *slog.Logger) error {
		navCalls++
		if navCalls == 1 {
			return errors.New("page.goto: net::ERR_TUNNEL_CONNECTION_FAILED at https://example.com")
		}
		return nil
	}

	res, err := c.Check(context.Background(), "https://example.com/p", "")
	require.NoError(t, err)
	assert.Equal(t, extract.MethodCSS, res.Method)
	require.Equal(t, []string{"http://proxy.example.com:8080", ""}, egress,
		"proxied browser first, then a dedicated non-proxied one")
	assert.Equal(t, 2, navCalls)
	assert.Equal(t, 0, sleeps, "tunnel fallback happens within the attempt, consuming no retry")
}
