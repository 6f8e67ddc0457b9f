// Package similarity builds and queries the content-based product similarity
// index: TF-IDF vectors over product text, compared by cosine similarity.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/similarity/artifact"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/similarity/vector"
	apperrors "github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/metrics"
)

// selfScore ranks the query product below every real candidate.
const selfScore = -1.0

// Documents supplies the corpus at build time. corpus.Extractor satisfies it.
type Documents interface {
	Extract(ctx context.Context) ([]corpus.Document, error)
}

// Hit is one ranked neighbour.
type Hit struct {
	ProductID int64   `json:"product_id"`
	Score     float64 `json:"score"`
}

// Options configures an Index.
type Options struct {
	MaxFeatures int
	Metrics     *metrics.Metrics
}

// Index owns the lifecycle of the persisted artifact and answers
// nearest-neighbour queries from an immutable in-memory snapshot. Builds are
// serialised; queries never wait for a build and always see one complete
// generation.
type Index struct {
	store       artifact.Store
	docs        Documents
	maxFeatures int
	metrics     *metrics.Metrics
	logger      *slog.Logger

	buildMu  sync.Mutex
	snap     atomic.Pointer[snapshot]
	building atomic.Bool
	stale    atomic.Bool
	loads    singleflight.Group
}

// New creates an Index over store. Nothing is loaded until the first query,
// Build or Reload.
func New(store artifact.Store, docs Documents, opts Options) *Index {
	if opts.MaxFeatures <= 0 {
		opts.MaxFeatures = vector.DefaultMaxFeatures
	}
	ix := &Index{
		store:       store,
		docs:        docs,
		maxFeatures: opts.MaxFeatures,
		metrics:     opts.Metrics,
		logger:      slog.Default().With("component", "similarity-index"),
	}
	ix.publishState()
	return ix
}

// Build makes a complete artifact available. Without force it is a no-op
// when one already exists, and the catalog is not read. With force, or when
// the stored artifact is missing or corrupt, it extracts the corpus, weighs
// it and stores a new generation. A failed build leaves the previous
// generation active.
func (ix *Index) Build(ctx context.Context, force bool) error {
	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()

	if !force {
		exists, err := ix.store.Exists(ctx)
		if errors.Is(err, apperrors.ErrArtifactCorrupt) {
			ix.logger.Warn("stored artifact unusable, rebuilding", "error", err)
			exists, err = false, nil
		}
		if err != nil {
			return ix.buildFailed(fmt.Errorf("checking artifact: %w", err))
		}
		if exists {
			if ix.snap.Load() != nil {
				ix.observeBuild("skipped")
				return nil
			}
			err := ix.loadLocked(ctx)
			if err == nil {
				ix.observeBuild("skipped")
				return nil
			}
			if !errors.Is(err, apperrors.ErrArtifactCorrupt) && !errors.Is(err, apperrors.ErrArtifactNotFound) {
				return ix.buildFailed(err)
			}
			ix.logger.Warn("stored artifact unusable, rebuilding", "error", err)
		}
	}
	return ix.rebuildLocked(ctx)
}

func (ix *Index) rebuildLocked(ctx context.Context) error {
	ix.building.Store(true)
	ix.publishState()
	defer func() {
		ix.building.Store(false)
		ix.publishState()
	}()

	start := time.Now()
	ix.logger.Info("index build started")
	docs, err := ix.docs.Extract(ctx)
	if err != nil {
		return ix.buildFailed(fmt.Errorf("extracting corpus: %w", err))
	}

	a := buildArtifact(docs, ix.maxFeatures)
	a.Generation = uuid.NewString()
	a.BuiltAt = time.Now().UTC()
	if err := ix.store.Store(ctx, a); err != nil {
		return ix.buildFailed(fmt.Errorf("storing generation %s: %w", a.Generation, err))
	}

	ix.install(a)
	ix.stale.Store(false)
	duration := time.Since(start)
	if ix.metrics != nil {
		ix.metrics.IndexBuildDuration.Observe(duration.Seconds())
	}
	ix.observeBuild("built")
	terms := 0
	if a.Model != nil {
		terms = a.Model.Len()
	}
	ix.logger.Info("index build completed",
		"generation", a.Generation,
		"products", len(a.ProductIDs),
		"terms", terms,
		"duration", duration,
	)
	return nil
}

// buildArtifact weighs docs into an artifact. An empty corpus yields the
// empty artifact.
func buildArtifact(docs []corpus.Document, maxFeatures int) *artifact.Artifact {
	if len(docs) == 0 {
		return artifact.Empty()
	}
	texts := make([]string, len(docs))
	ids := make([]int64, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
		ids[i] = d.ProductID
	}
	model, matrix := vector.Fit(texts, maxFeatures)
	return &artifact.Artifact{Model: model, Matrix: matrix, ProductIDs: ids}
}

func (ix *Index) buildFailed(err error) error {
	ix.observeBuild("failed")
	ix.logger.Error("index build failed", "error", err)
	return fmt.Errorf("%w: %w", apperrors.ErrBuildFailed, err)
}

// QuerySimilar returns up to k products most similar to productID, best
// first, ties broken by ascending product id. The product itself and
// candidates scoring zero or less are never returned. A product missing from
// the index, or an index with nothing in it, yields an empty result. The
// first query on a cold index loads or builds the artifact.
func (ix *Index) QuerySimilar(ctx context.Context, productID int64, k int) ([]Hit, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: k must be >= 0, got %d", apperrors.ErrInvalidInput, k)
	}
	s, err := ix.ensure(ctx)
	if err != nil {
		return nil, err
	}
	if k == 0 {
		return []Hit{}, nil
	}
	return s.similar(productID, k), nil
}

// ensure returns the active snapshot, loading or building it on first use.
// Concurrent cold callers share one load, which runs detached from any single
// caller's cancellation; each caller still stops waiting when its own ctx is
// done.
func (ix *Index) ensure(ctx context.Context) (*snapshot, error) {
	if s := ix.snap.Load(); s != nil {
		return s, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := ix.loads.DoChan("ensure", func() (any, error) {
		if ix.snap.Load() != nil {
			return nil, nil
		}
		return nil, ix.Build(shared, false)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for index load: %w", ctx.Err())
	}
	s := ix.snap.Load()
	if s == nil {
		return nil, fmt.Errorf("%w: index not loaded", apperrors.ErrInternal)
	}
	return s, nil
}

// Reload replaces the active snapshot with the store's current generation,
// for use after another process published a build. On failure the active
// snapshot is kept.
func (ix *Index) Reload(ctx context.Context) error {
	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()
	return ix.loadLocked(ctx)
}

func (ix *Index) loadLocked(ctx context.Context) error {
	a, err := ix.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading artifact: %w", err)
	}
	if cur := ix.snap.Load(); cur != nil && cur.artifact.Generation == a.Generation {
		return nil
	}
	ix.install(a)
	ix.stale.Store(false)
	ix.publishState()
	ix.logger.Info("index generation loaded", "generation", a.Generation, "products", len(a.ProductIDs))
	return nil
}

// MarkStale records that the catalog changed after the active generation was
// built. Queries keep using it until the next successful build. Staleness is
// only ever set by callers; the index does not detect catalog changes.
func (ix *Index) MarkStale() {
	if ix.snap.Load() == nil {
		return
	}
	ix.stale.Store(true)
	ix.publishState()
	ix.logger.Info("index marked stale")
}

// Degenerate reports whether the active snapshot cannot produce any
// recommendation: nothing loaded, no products, or an empty vocabulary.
func (ix *Index) Degenerate() bool {
	s := ix.snap.Load()
	return s == nil || s.degenerate()
}

// Generation returns the active generation, or "" before one is loaded.
func (ix *Index) Generation() string {
	if s := ix.snap.Load(); s != nil {
		return s.artifact.Generation
	}
	return ""
}

// Status describes the index for operators.
type Status struct {
	State      string    `json:"state"`
	Generation string    `json:"generation,omitempty"`
	Products   int       `json:"products"`
	Terms      int       `json:"terms"`
	BuiltAt    time.Time `json:"built_at,omitempty"`
}

func (ix *Index) Status() Status {
	st := Status{State: ix.State().String()}
	if s := ix.snap.Load(); s != nil {
		st.Generation = s.artifact.Generation
		st.Products = len(s.artifact.ProductIDs)
		st.BuiltAt = s.artifact.BuiltAt
		if s.artifact.Model != nil {
			st.Terms = s.artifact.Model.Len()
		}
	}
	return st
}

// State returns the current lifecycle state. Building takes precedence, so
// a rebuild of a Ready index reports Building while queries continue to be
// served from the previous generation.
func (ix *Index) State() State {
	switch {
	case ix.building.Load():
		return StateBuilding
	case ix.snap.Load() == nil:
		return StateAbsent
	case ix.stale.Load():
		return StateStale
	default:
		return StateReady
	}
}

func (ix *Index) install(a *artifact.Artifact) {
	ix.snap.Store(newSnapshot(a))
	if ix.metrics != nil {
		ix.metrics.IndexedProducts.Set(float64(len(a.ProductIDs)))
		terms := 0
		if a.Model != nil {
			terms = a.Model.Len()
		}
		ix.metrics.VocabularySize.Set(float64(terms))
	}
}

func (ix *Index) publishState() {
	if ix.metrics != nil {
		ix.metrics.IndexState.Set(float64(ix.State()))
	}
}

func (ix *Index) observeBuild(status string) {
	if ix.metrics != nil {
		ix.metrics.IndexBuildsTotal.WithLabelValues(status).Inc()
	}
}

// snapshot is an immutable loaded generation with its query-side lookups.
type snapshot struct {
	artifact *artifact.Artifact
	rows     map[int64]int
	norms    []float64
}

func newSnapshot(a *artifact.Artifact) *snapshot {
	s := &snapshot{artifact: a, rows: make(map[int64]int, len(a.ProductIDs))}
	for i, id := range a.ProductIDs {
		s.rows[id] = i
	}
	if a.Matrix != nil {
		s.norms = a.Matrix.Norms()
	}
	return s
}

func (s *snapshot) degenerate() bool {
	return s.artifact.IsEmpty() || s.artifact.Model.Len() == 0
}

func (s *snapshot) similar(productID int64, k int) []Hit {
	if s.artifact.IsEmpty() {
		return []Hit{}
	}
	row, ok := s.rows[productID]
	if !ok {
		return []Hit{}
	}
	scores := s.artifact.Matrix.CosineAll(row, s.norms)
	scores[row] = selfScore

	ids := s.artifact.ProductIDs
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if scores[ia] != scores[ib] {
			return scores[ia] > scores[ib]
		}
		return ids[ia] < ids[ib]
	})

	if k > len(order) {
		k = len(order)
	}
	hits := make([]Hit, 0, k)
	for _, i := range order[:k] {
		if scores[i] <= 0 {
			break
		}
		hits = append(hits, Hit{ProductID: ids[i], Score: scores[i]})
	}
	return hits
}
