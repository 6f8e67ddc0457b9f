// Package handler exposes the recommendation facade and index administration
// over HTTP.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/recommend"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/similarity"
	apperrors "github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/middleware"
)

type Recommender interface {
	Recommend(ctx context.Context, productID int64, k int) (*recommend.Response, error)
	Heuristic(ctx context.Context, productID int64) (*recommend.Response, error)
	DefaultK() int
}

type IndexAdmin interface {
	Build(ctx context.Context, force bool) error
	Status() similarity.Status
}

// BuildNotifier is told about builds triggered over HTTP so other replicas
// can reload.
type BuildNotifier interface {
	IndexBuilt(ctx context.Context, status similarity.Status) error
}

type Handler struct {
	recs     Recommender
	index    IndexAdmin
	cache    *recommend.Cache
	notifier BuildNotifier
	logger   *slog.Logger
}

// New creates a Handler. cache and notifier may be nil.
func New(recs Recommender, index IndexAdmin, cache *recommend.Cache, notifier BuildNotifier) *Handler {
	return &Handler{
		recs:     recs,
		index:    index,
		cache:    cache,
		notifier: notifier,
		logger:   slog.Default().With("component", "recommend-handler"),
	}
}

// RouterOptions wires ambient middleware and probes into the router.
type RouterOptions struct {
	Metrics        *metrics.Metrics
	Health         *health.Checker
	RequestTimeout time.Duration
	CORS           middleware.CORSConfig

	// AdminRateLimit caps rebuild and cache invalidation per client IP per
	// AdminRateWindow. Zero disables it.
	AdminRateLimit  int
	AdminRateWindow time.Duration
}

// Router mounts every endpoint on a chi router.
func (h *Handler) Router(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(opts.CORS))
	if opts.Metrics != nil {
		r.Use(middleware.Metrics(opts.Metrics))
	}
	if opts.Health != nil {
		r.Get("/health/live", opts.Health.LiveHandler())
		r.Get("/health/ready", opts.Health.ReadyHandler())
	}
	r.Route("/api/v1", func(r chi.Router) {
		admin := middleware.RateLimit(opts.AdminRateLimit, opts.AdminRateWindow)
		// Rebuilds scan the whole catalog and are not bound by the request
		// timeout.
		r.With(admin).Post("/index/rebuild", h.Rebuild)
		r.Group(func(r chi.Router) {
			if opts.RequestTimeout > 0 {
				r.Use(middleware.Timeout(opts.RequestTimeout))
			}
			r.Get("/products/{productID}/recommendations", h.Recommendations)
			r.Get("/products/{productID}/recommendations/heuristic", h.HeuristicRecommendations)
			r.Get("/index/status", h.IndexStatus)
			r.Get("/cache/stats", h.CacheStats)
			r.With(admin).Post("/cache/invalidate", h.CacheInvalidate)
		})
	})
	return r
}

// Recommendations handles GET /api/v1/products/{productID}/recommendations?k=
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	k := h.recs.DefaultK()
	if kStr := r.URL.Query().Get("k"); kStr != "" {
		parsed, err := strconv.Atoi(kStr)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "k must be a non-negative integer")
			return
		}
		k = parsed
	}

	resp, err := h.recs.Recommend(ctx, productID, k)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	log.Info("recommendations served",
		"product_id", productID,
		"k", k,
		"count", resp.Count,
		"source", resp.Source,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// HeuristicRecommendations handles
// GET /api/v1/products/{productID}/recommendations/heuristic
func (h *Handler) HeuristicRecommendations(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	resp, err := h.recs.Heuristic(r.Context(), productID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) IndexStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.index.Status())
}

// Rebuild handles POST /api/v1/index/rebuild?force=
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "force must be a boolean")
			return
		}
		force = parsed
	}

	before := h.index.Status().Generation
	if err := h.index.Build(ctx, force); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	status := h.index.Status()
	if status.Generation != before {
		if h.cache != nil {
			if err := h.cache.Invalidate(ctx); err != nil {
				log.Warn("cache invalidation after rebuild failed", "error", err)
			}
		}
		if h.notifier != nil {
			if err := h.notifier.IndexBuilt(ctx, status); err != nil {
				log.Warn("publishing index built event failed", "error", err)
			}
		}
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	switch {
	case errors.Is(err, apperrors.ErrProductNotFound):
		h.writeError(w, status, "product not found")
	case errors.Is(err, apperrors.ErrInvalidInput):
		h.writeError(w, status, err.Error())
	default:
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		h.writeError(w, status, http.StatusText(status))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
