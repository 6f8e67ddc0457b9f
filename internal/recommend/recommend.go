// Package recommend is the query entrypoint for product recommendations. It
// resolves the reference product, asks the similarity index for neighbours,
// and maps them back to catalog records in ranked order, falling back to a
// catalog heuristic when the index has nothing to offer.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/similarity"
	apperrors "github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/metrics"
)

// Recommendation sources reported in responses.
const (
	SourceTFIDF     = "tfidf"
	SourceHeuristic = "heuristic"
)

// Response is the payload returned to callers.
type Response struct {
	Recommendations []catalog.Product `json:"recommendations"`
	Count           int               `json:"count"`
	Source          string            `json:"source"`
}

func newResponse(products []catalog.Product, source string) *Response {
	if products == nil {
		products = []catalog.Product{}
	}
	return &Response{Recommendations: products, Count: len(products), Source: source}
}

// Index is the part of similarity.Index the facade needs.
type Index interface {
	QuerySimilar(ctx context.Context, productID int64, k int) ([]similarity.Hit, error)
	Degenerate() bool
	Generation() string
}

// Options configures a Facade.
type Options struct {
	DefaultK        int
	MaxK            int
	HeuristicLimit  int
	FallbackEnabled bool
	Cache           *Cache
	Metrics         *metrics.Metrics
}

// Facade serves recommendation queries.
type Facade struct {
	catalog catalog.Catalog
	index   Index
	opts    Options
	logger  *slog.Logger
}

func NewFacade(cat catalog.Catalog, index Index, opts Options) *Facade {
	if opts.DefaultK <= 0 {
		opts.DefaultK = 6
	}
	if opts.HeuristicLimit <= 0 {
		opts.HeuristicLimit = 6
	}
	return &Facade{
		catalog: cat,
		index:   index,
		opts:    opts,
		logger:  slog.Default().With("component", "recommend-facade"),
	}
}

// DefaultK is the count used when a caller does not supply one.
func (f *Facade) DefaultK() int {
	return f.opts.DefaultK
}

// Recommend returns up to k products similar to productID, most similar
// first. It fails with errors.ErrProductNotFound for unknown products and
// with errors.ErrInvalidInput for negative k. When the index is degenerate
// or cannot be built and fallback is enabled, the heuristic answers instead.
func (f *Facade) Recommend(ctx context.Context, productID int64, k int) (*Response, error) {
	start := time.Now()
	if k < 0 {
		return nil, fmt.Errorf("%w: k must be >= 0, got %d", apperrors.ErrInvalidInput, k)
	}
	if f.opts.MaxK > 0 && k > f.opts.MaxK {
		k = f.opts.MaxK
	}
	ref, err := f.catalog.Get(ctx, productID)
	if err != nil {
		f.observe(SourceTFIDF, outcome(err, nil), start, 0)
		return nil, err
	}

	compute := func() (*Response, error) { return f.tfidf(ctx, ref, k) }
	var resp *Response
	gen := f.index.Generation()
	if f.opts.Cache != nil && gen != "" {
		key := CacheKey{Source: SourceTFIDF, ProductID: productID, K: k, Generation: gen}
		resp, _, err = f.opts.Cache.GetOrCompute(ctx, key, compute)
	} else {
		resp, err = compute()
	}
	if err != nil {
		f.observe(SourceTFIDF, outcome(err, nil), start, 0)
		return nil, err
	}
	f.observe(resp.Source, outcome(nil, resp), start, resp.Count)
	return resp, nil
}

func (f *Facade) tfidf(ctx context.Context, ref *catalog.Product, k int) (*Response, error) {
	log := logger.FromContext(ctx)
	hits, err := f.index.QuerySimilar(ctx, ref.ID, k)
	if err != nil {
		if f.opts.FallbackEnabled && errors.Is(err, apperrors.ErrBuildFailed) {
			log.Warn("index unavailable, serving heuristic", "product_id", ref.ID, "error", err)
			return f.heuristic(ctx, ref, min(k, f.opts.HeuristicLimit))
		}
		return nil, fmt.Errorf("querying similar products: %w", err)
	}
	if len(hits) == 0 && f.opts.FallbackEnabled && f.index.Degenerate() {
		log.Debug("index degenerate, serving heuristic", "product_id", ref.ID)
		return f.heuristic(ctx, ref, min(k, f.opts.HeuristicLimit))
	}
	if len(hits) == 0 {
		return newResponse(nil, SourceTFIDF), nil
	}

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ProductID
	}
	products, err := f.catalog.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching recommended products: %w", err)
	}
	return newResponse(inRankOrder(ids, products), SourceTFIDF), nil
}

// Heuristic answers with the catalog heuristic only.
func (f *Facade) Heuristic(ctx context.Context, productID int64) (*Response, error) {
	start := time.Now()
	ref, err := f.catalog.Get(ctx, productID)
	if err != nil {
		f.observe(SourceHeuristic, outcome(err, nil), start, 0)
		return nil, err
	}
	resp, err := f.heuristic(ctx, ref, f.opts.HeuristicLimit)
	if err != nil {
		f.observe(SourceHeuristic, outcome(err, nil), start, 0)
		return nil, err
	}
	f.observe(SourceHeuristic, outcome(nil, resp), start, resp.Count)
	return resp, nil
}

// heuristic serves at most limit products. A fallback passes the caller's k
// so it never returns more than was asked for.
func (f *Facade) heuristic(ctx context.Context, ref *catalog.Product, limit int) (*Response, error) {
	if limit <= 0 {
		return newResponse(nil, SourceHeuristic), nil
	}
	products, err := f.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing catalog for heuristic: %w", err)
	}
	return newResponse(Heuristic(*ref, products, limit), SourceHeuristic), nil
}

// inRankOrder arranges products in the order of ids. Ids with no product
// (deleted since the index was built) are skipped.
func inRankOrder(ids []int64, products []catalog.Product) []catalog.Product {
	byID := make(map[int64]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	out := make([]catalog.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func outcome(err error, resp *Response) string {
	switch {
	case errors.Is(err, apperrors.ErrProductNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return "invalid"
	case err != nil:
		return "error"
	case resp.Count == 0:
		return "empty"
	default:
		return "ok"
	}
}

func (f *Facade) observe(source, result string, start time.Time, count int) {
	if f.opts.Metrics == nil {
		return
	}
	f.opts.Metrics.QueriesTotal.WithLabelValues(source, result).Inc()
	f.opts.Metrics.QueryLatency.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if result == "ok" || result == "empty" {
		f.opts.Metrics.RecommendationsCount.WithLabelValues(source).Observe(float64(count))
	}
}
