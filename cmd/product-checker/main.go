package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/playwright-community/playwright-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danvale/product-checker/internal/api"
	"github.com/danvale/product-checker/internal/browser"
	"github.com/danvale/product-checker/internal/browserpool"
	"github.com/danvale/product-checker/internal/checker"
	"github.com/danvale/product-checker/internal/config"
	"github.com/danvale/product-checker/internal/extract"
	"github.com/danvale/product-checker/internal/llm"
	"github.com/danvale/product-checker/internal/metrics"
)

func main() {
	// Setup logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Playwright driver
	pw, err := playwright.Run()
	if err != nil {
		logger.Error("failed to start playwright", "error", err)
		os.Exit(1)
	}
	defer pw.Stop()

	m := metrics.New()

	// Browser pool, initialized eagerly: the server must not serve traffic
	// on a pool that launched zero browsers. The proxy binds at the browser
	// process level, so every pooled context shares the same egress.
	opts := &browser.Options{
		Headless:      cfg.Pool.Headless,
		ProxyServer:   cfg.Proxy.Server,
		ProxyUsername: cfg.Proxy.Username,
		ProxyPassword: cfg.Proxy.Password,
	}
	pool := browserpool.New(
		browserpool.Config{Size: cfg.Pool.Size},
		browser.PoolLauncher(pw, opts),
		logger, m,
	)
	if err := pool.Initialize(ctx); err != nil {
		logger.Error("failed to initialize browser pool", "error", err)
		os.Exit(1)
	}
	defer pool.Shutdown()

	// Model provider for the AI fallback extractor
	if cfg.LLM.APIKey == "" {
		logger.Warn("LLM_API_KEY not set; AI fallback will rely on loose text parsing")
	}
	provider, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		logger.Error("failed to construct llm provider", "error", err)
		os.Exit(1)
	}

	// Orchestrator
	selector := extract.NewSelector(extract.DefaultRegistry(), logger)
	ai := extract.NewAIExtractor(provider, logger)
	chk := checker.New(pool, selector, ai, pw, opts, checker.Config{
		MaxRetries:    3,
		BackoffBase:   2 * time.Second,
		BackoffMax:    15 * time.Second,
		NavGapMin:     cfg.Nav.GapMin,
		NavGapMax:     cfg.Nav.GapMax,
		ProxyServer:   cfg.Proxy.Server,
		ProxyUsername: cfg.Proxy.Username,
		ProxyPassword: cfg.Proxy.Password,
	}, logger, m)

	handlers := api.NewHandlers(chk, pool, api.Options{
		BatchConcurrency: cfg.Batch.Concurrency,
		CacheSize:        cfg.Cache.Size,
		CacheTTL:         cfg.Cache.TTL,
	}, logger)

	// Setup Chi router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	handlers.Routes(r)
	r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	// Start server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "port", cfg.Server.Port, "pool_size", cfg.Pool.Size)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
