package browser

import (
	"context"

	"github.com/playwright-community/playwright-go"

	"github.com/danvale/product-checker/internal/browserpool"
)

// PoolLauncher adapts a playwright driver into the pool's launch function.
// Contexts created on pooled instances carry the standard fingerprint
// profile.
func PoolLauncher(pw *playwright.Playwright, opts *Options) browserpool.LaunchFunc {
	return func(_ context.Context) (browserpool.Browser, error) {
		b, err := Launch(pw, opts)
		if err != nil {
			return nil, err
		}
		return &pooledBrowser{b: b}, nil
	}
}

type pooledBrowser struct {
	b playwright.Browser
}

func (p *pooledBrowser) NewContext() (browserpool.Context, error) {
	ctx, err := NewFingerprintContext(p.b)
	if err != nil {
		return nil, err
	}
	return &pooledContext{ctx: ctx}, nil
}

func (p *pooledBrowser) IsConnected() bool {
	return p.b.IsConnected()
}

func (p *pooledBrowser) Close() error {
	return p.b.Close()
}

type pooledContext struct {
	ctx playwright.BrowserContext
}

func (c *pooledContext) NewPage() (playwright.Page, error) {
	return c.ctx.NewPage()
}

func (c *pooledContext) Close() error {
	return c.ctx.Close()
}
