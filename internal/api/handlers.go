// Package api exposes the product-checker HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/danvale/product-checker/internal/browserpool"
	"github.com/danvale/product-checker/internal/extract"
)

// ProductChecker is the orchestrator surface the handlers depend on.
type ProductChecker interface {
	Check(ctx context.Context, url, productName string) (*extract.Result, error)
}

// PoolInspector exposes read-only pool introspection for health reporting.
type PoolInspector interface {
	Stats() browserpool.Stats
	IsInitialized() bool
}

// Options tune handler behavior.
type Options struct {
	BatchConcurrency int
	CacheSize        int
	CacheTTL         time.Duration
}

// Handlers carries the HTTP handlers and their collaborators.
type Handlers struct {
	checker  ProductChecker
	pool     PoolInspector
	cache    *expirable.LRU[string, *extract.Result]
	validate *validator.Validate
	logger   *slog.Logger
	opts     Options
}

// NewHandlers wires the HTTP layer. pool may be nil when the service runs
// without a browser pool (health then reports disabled).
func NewHandlers(checker ProductChecker, pool PoolInspector, opts Options, logger *slog.Logger) *Handlers {
	if opts.BatchConcurrency < 1 {
		opts.BatchConcurrency = 3
	}
	h := &Handlers{
		checker:  checker,
		pool:     pool,
		validate: validator.New(),
		logger:   logger.With("component", "api"),
		opts:     opts,
	}
	if opts.CacheSize > 0 && opts.CacheTTL > 0 {
		h.cache = expirable.NewLRU[string, *extract.Result](opts.CacheSize, nil, opts.CacheTTL)
	}
	return h
}

// Routes registers the HTTP endpoints.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/check", h.Check)
	r.Post("/check", h.Check)
	r.Post("/check-batch", h.CheckBatch)
	r.Get("/health", h.Health)
}

// CheckRequest is the single-check payload.
type CheckRequest struct {
	URL         string `json:"url" validate:"required,url"`
	ProductName string `json:"productName"`
}

// Check handles GET and POST /check.
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if r.Method == http.MethodGet {
		req.URL = r.URL.Query().Get("url")
		req.ProductName = r.URL.Query().Get("productName")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request", "url is required and must be a valid URL")
		return
	}

	if res, ok := h.cachedResult(req); ok {
		h.respondJSON(w, http.StatusOK, res)
		return
	}

	res, err := h.checker.Check(r.Context(), req.URL, req.ProductName)
	if err != nil {
		h.logger.Error("check failed", "url", req.URL, "error", err)
		h.respondError(w, http.StatusInternalServerError, "check failed", err.Error())
		return
	}

	if h.cache != nil && res.Successful() {
		h.cache.Add(cacheKey(req), res)
	}
	h.respondJSON(w, http.StatusOK, res)
}

// BatchItem is one URL in a batch check.
type BatchItem struct {
	URL         string `json:"url" validate:"required,url"`
	ProductName string `json:"productName"`
}

// BatchRequest is the /check-batch payload.
type BatchRequest struct {
	Items       []BatchItem `json:"items" validate:"required,min=1,dive"`
	Concurrency int         `json:"concurrency"`
}

// BatchResult extends a check result with per-item success reporting.
type BatchResult struct {
	extract.Result
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BatchSummary aggregates a batch run.
type BatchSummary struct {
	Total       int   `json:"total"`
	Successful  int   `json:"successful"`
	Failed      int   `json:"failed"`
	DurationMS  int64 `json:"duration"`
	Concurrency int   `json:"concurrency"`
}

// BatchResponse is the /check-batch response body.
type BatchResponse struct {
	Results []BatchResult `json:"results"`
	Summary BatchSummary  `json:"summary"`
}

// CheckBatch handles POST /check-batch. Failures of individual items never
// abort the batch; the response is always 200 with per-item success flags.
func (h *Handlers) CheckBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request", "items is required and every item needs a valid url")
		return
	}

	concurrency := req.Concurrency
	if concurrency < 1 {
		concurrency = h.opts.BatchConcurrency
	}
	// A cap above the pool size just moves queueing inside the pool, which
	// is harmless but less observable.
	if h.pool != nil {
		if size := h.pool.Stats().Size; size > 0 && concurrency > size {
			concurrency = size
		}
	}

	batchID := uuid.New().String()
	h.logger.Info("batch started", "batch_id", batchID,
		"items", len(req.Items), "concurrency", concurrency)

	start := time.Now()
	results := make([]BatchResult, len(req.Items))

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(concurrency)
	for i, item := range req.Items {
		g.Go(func() error {
			res, err := h.checker.Check(ctx, item.URL, item.ProductName)
			if err != nil {
				results[i] = BatchResult{
					Result: extract.Result{
						URL:          item.URL,
						ProductName:  string(extract.Unknown),
						Price:        string(extract.Unknown),
						Availability: extract.Unknown,
						CheckedAt:    time.Now().UTC(),
					},
					Success: false,
					Error:   err.Error(),
				}
				return nil
			}
			results[i] = BatchResult{Result: *res, Success: true}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // item errors are captured per slot

	summary := BatchSummary{
		Total:       len(req.Items),
		DurationMS:  time.Since(start).Milliseconds(),
		Concurrency: concurrency,
	}
	for _, res := range results {
		if res.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}

	h.logger.Info("batch finished", "batch_id", batchID,
		"successful", summary.Successful, "failed", summary.Failed,
		"duration_ms", summary.DurationMS)

	h.respondJSON(w, http.StatusOK, BatchResponse{Results: results, Summary: summary})
}

// Health reports pool stats, or that pooling is disabled.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		h.respondJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"initialized": h.pool.IsInitialized(),
		"pool":        h.pool.Stats(),
	})
}

func (h *Handlers) cachedResult(req CheckRequest) (*extract.Result, bool) {
	if h.cache == nil {
		return nil, false
	}
	return h.cache.Get(cacheKey(req))
}

func cacheKey(req CheckRequest) string {
	return req.URL + "|" + req.ProductName
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, errMsg, detail string) {
	h.respondJSON(w, status, map[string]string{"error": errMsg, "message": detail})
}
