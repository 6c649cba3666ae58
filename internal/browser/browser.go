// Package browser wraps playwright with the launch flags, fingerprint
// profile, and navigation behavior the checker depends on.
package browser

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Options control browser process launch and proxy binding. The proxy is
// bound at the process level, so every context created from that instance
// shares the same egress.
type Options struct {
	Headless      bool
	ProxyServer   string
	ProxyUsername string
	ProxyPassword string
}

// DefaultOptions returns the production launch profile.
func DefaultOptions() *Options {
	return &Options{Headless: true}
}

// Launch starts one Chromium process with sandbox-disabling and
// anti-automation-fingerprint flags.
func Launch(pw *playwright.Playwright, opts *Options) (playwright.Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--window-size=1920,1080",
			"--user-agent=" + userAgent,
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
		if opts.ProxyUsername != "" {
			launchOpts.Proxy.Username = playwright.String(opts.ProxyUsername)
			launchOpts.Proxy.Password = playwright.String(opts.ProxyPassword)
		}
	}

	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return b, nil
}

// NewFingerprintContext creates an isolated context with a fixed, realistic
// UK desktop profile: 1920x1080 viewport, en-GB locale, London timezone and
// geolocation, light color scheme, desktop Chrome user agent.
func NewFingerprintContext(b playwright.Browser) (playwright.BrowserContext, error) {
	ctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(userAgent),
		Locale:            playwright.String("en-GB"),
		TimezoneId:        playwright.String("Europe/London"),
		Viewport:          &playwright.Size{Width: 1920, Height: 1080},
		DeviceScaleFactor: playwright.Float(1),
		HasTouch:          playwright.Bool(false),
		ColorScheme:       playwright.ColorSchemeLight,
		Geolocation:       &playwright.Geolocation{Latitude: 51.5074, Longitude: -0.1278},
		Permissions:       []string{"geolocation"},
		JavaScriptEnabled: playwright.Bool(true),
		AcceptDownloads:   playwright.Bool(false),
		ExtraHttpHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "en-GB,en;q=0.9",
			"DNT":             "1",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	return ctx, nil
}

// Navigate loads a URL with a two-tier wait: a 60s domcontentloaded attempt
// first, then a single 90s networkidle retry if the first times out or lands
// on an error or blank page.
func Navigate(page playwright.Page, url string, logger *slog.Logger) error {
	_, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(60_000),
	})
	if err == nil && !IsErrorPage(page) {
		return nil
	}
	if err != nil {
		if IsTunnelError(err) {
			return err
		}
		logger.Warn("navigation failed, retrying with networkidle", "url", url, "error", err)
	} else {
		logger.Warn("landed on error page, retrying with networkidle", "url", url)
	}

	_, err = page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(90_000),
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	if IsErrorPage(page) {
		return fmt.Errorf("navigation landed on error page: %s", url)
	}
	return nil
}

// IsErrorPage applies cheap heuristics for error or blank landings.
func IsErrorPage(page playwright.Page) bool {
	title, err := page.Title()
	if err != nil {
		return true
	}
	lower := strings.ToLower(title)
	if strings.Contains(lower, "404") ||
		strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "not found") {
		return true
	}
	content, err := page.Content()
	if err != nil {
		return true
	}
	return len(content) < 500
}

// Humanize injects a randomized delay and a mouse move to reduce the
// automation fingerprint around navigation.
func Humanize(page playwright.Page) {
	time.Sleep(time.Duration(500+rand.Intn(1000)) * time.Millisecond)
	x := float64(200 + rand.Intn(800))
	y := float64(150 + rand.Intn(500))
	if err := page.Mouse().Move(x, y); err == nil {
		_, _ = page.Evaluate(`window.scrollBy(0, Math.random() * 300)`)
	}
	time.Sleep(time.Duration(200+rand.Intn(600)) * time.Millisecond)
}

// IsTunnelError reports whether a navigation error carries the proxy tunnel
// failure signature, which triggers the attempt-local direct fallback.
func IsTunnelError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "ERR_TUNNEL_CONNECTION_FAILED") ||
		strings.Contains(msg, "ERR_PROXY_CONNECTION_FAILED") ||
		strings.Contains(msg, "ERR_NO_SUPPORTED_PROXIES")
}
