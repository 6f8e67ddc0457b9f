package recommend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/similarity/artifact"
	apperrors "github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/errors"
)

// stubIndex returns fixed hits.
type stubIndex struct {
	hits       []similarity.Hit
	err        error
	degenerate bool
	generation string
	calls      int
}

func (s *stubIndex) QuerySimilar(ctx context.Context, productID int64, k int) ([]similarity.Hit, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if k < len(s.hits) {
		return s.hits[:k], nil
	}
	return s.hits, nil
}

func (s *stubIndex) Degenerate() bool   { return s.degenerate }
func (s *stubIndex) Generation() string { return s.generation }

// memoryBackend is an in-process CacheBackend.
type memoryBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{data: make(map[string][]byte)}
}

func (m *memoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (m *memoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryBackend) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.data))
	m.data = make(map[string][]byte)
	return n, nil
}

func threeProducts() *catalog.MemoryStore {
	return catalog.NewMemoryStore(
		catalog.Product{ID: 1, Name: catalog.Str("Wireless Mouse"), Description: catalog.Str("ergonomic wireless mouse"), Price: catalog.Price(25)},
		catalog.Product{ID: 2, Name: catalog.Str("Wireless Keyboard"), Description: catalog.Str("mechanical wireless keyboard"), Price: catalog.Price(60)},
		catalog.Product{ID: 3, Name: catalog.Str("Desk Lamp"), Description: catalog.Str("LED desk lamp"), Price: catalog.Price(30)},
	)
}

func TestRecommendPreservesRankOrder(t *testing.T) {
	idx := &stubIndex{hits: []similarity.Hit{{ProductID: 3, Score: 0.9}, {ProductID: 1, Score: 0.4}}}
	f := NewFacade(threeProducts(), idx, Options{})

	resp, err := f.Recommend(context.Background(), 2, 6)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if got := productIDs(resp.Recommendations); !equalIDs(got, []int64{3, 1}) {
		t.Errorf("order = %v, want [3 1]", got)
	}
	if resp.Count != 2 || resp.Source != SourceTFIDF {
		t.Errorf("count/source = %d/%s, want 2/tfidf", resp.Count, resp.Source)
	}
}

func TestRecommendSkipsDeletedProducts(t *testing.T) {
	idx := &stubIndex{hits: []similarity.Hit{{ProductID: 9, Score: 0.9}, {ProductID: 1, Score: 0.4}}}
	f := NewFacade(threeProducts(), idx, Options{})
	resp, err := f.Recommend(context.Background(), 2, 6)
	if err != nil {
		t.Fatal(err)
	}
	if got := productIDs(resp.Recommendations); !equalIDs(got, []int64{1}) || resp.Count != 1 {
		t.Errorf("Recommend() = %v (count %d), want [1]", got, resp.Count)
	}
}

func TestRecommendNotFound(t *testing.T) {
	idx := &stubIndex{}
	f := NewFacade(threeProducts(), idx, Options{FallbackEnabled: true})
	_, err := f.Recommend(context.Background(), 42, 6)
	if !errors.Is(err, apperrors.ErrProductNotFound) {
		t.Fatalf("Recommend() error = %v, want ErrProductNotFound", err)
	}
	if apperrors.HTTPStatusCode(err) != 404 {
		t.Errorf("status = %d, want 404", apperrors.HTTPStatusCode(err))
	}
	if idx.calls != 0 {
		t.Error("index queried for unknown product")
	}
}

func TestRecommendInvalidK(t *testing.T) {
	f := NewFacade(threeProducts(), &stubIndex{}, Options{})
	if _, err := f.Recommend(context.Background(), 1, -1); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("Recommend(k=-1) error = %v, want ErrInvalidInput", err)
	}
}

func TestRecommendEmptyIsNotAnError(t *testing.T) {
	f := NewFacade(threeProducts(), &stubIndex{}, Options{FallbackEnabled: true})
	resp, err := f.Recommend(context.Background(), 3, 6)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Count != 0 || resp.Recommendations == nil || resp.Source != SourceTFIDF {
		t.Errorf("Recommend() = %+v, want empty tfidf response", resp)
	}
}

func TestRecommendFallsBackWhenDegenerate(t *testing.T) {
	cat := threeProducts()
	tests := []struct {
		name       string
		idx        *stubIndex
		fallback   bool
		k          int
		wantSource string
		wantCount  int
	}{
		{"degenerate with fallback", &stubIndex{degenerate: true}, true, 6, SourceHeuristic, 2},
		{"degenerate fallback honours k", &stubIndex{degenerate: true}, true, 1, SourceHeuristic, 1},
		{"degenerate fallback with k=0", &stubIndex{degenerate: true}, true, 0, SourceHeuristic, 0},
		{"degenerate without fallback", &stubIndex{degenerate: true}, false, 6, SourceTFIDF, 0},
		{"build failure with fallback", &stubIndex{err: apperrors.ErrBuildFailed}, true, 6, SourceHeuristic, 2},
		{"build failure fallback honours k", &stubIndex{err: apperrors.ErrBuildFailed}, true, 1, SourceHeuristic, 1},
		{"build failure fallback with k=0", &stubIndex{err: apperrors.ErrBuildFailed}, true, 0, SourceHeuristic, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFacade(cat, tt.idx, Options{FallbackEnabled: tt.fallback})
			resp, err := f.Recommend(context.Background(), 1, tt.k)
			if err != nil {
				t.Fatalf("Recommend() error = %v", err)
			}
			if resp.Source != tt.wantSource {
				t.Errorf("Source = %s, want %s", resp.Source, tt.wantSource)
			}
			if resp.Count != tt.wantCount || len(resp.Recommendations) != tt.wantCount {
				t.Errorf("Count = %d (%d items), want %d", resp.Count, len(resp.Recommendations), tt.wantCount)
			}
		})
	}

	f := NewFacade(cat, &stubIndex{err: apperrors.ErrBuildFailed}, Options{})
	if _, err := f.Recommend(context.Background(), 1, 6); !errors.Is(err, apperrors.ErrBuildFailed) {
		t.Errorf("without fallback error = %v, want ErrBuildFailed", err)
	}
}

func TestRecommendClampsK(t *testing.T) {
	idx := &stubIndex{hits: []similarity.Hit{{ProductID: 3, Score: 0.9}, {ProductID: 1, Score: 0.4}}}
	f := NewFacade(threeProducts(), idx, Options{MaxK: 1})
	resp, err := f.Recommend(context.Background(), 2, 50)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 {
		t.Errorf("Count = %d, want 1", resp.Count)
	}
}

func TestRecommendUsesCache(t *testing.T) {
	idx := &stubIndex{hits: []similarity.Hit{{ProductID: 3, Score: 0.9}}, generation: "g1"}
	cache := NewCache(newMemoryBackend(), time.Minute, nil)
	f := NewFacade(threeProducts(), idx, Options{Cache: cache})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		resp, err := f.Recommend(ctx, 1, 6)
		if err != nil {
			t.Fatal(err)
		}
		if got := productIDs(resp.Recommendations); !equalIDs(got, []int64{3}) {
			t.Fatalf("Recommend() = %v", got)
		}
	}
	if idx.calls != 1 {
		t.Errorf("index queried %d times, want 1", idx.calls)
	}
	if hits, misses := cache.Stats(); hits != 2 || misses != 1 {
		t.Errorf("cache stats = %d/%d, want 2/1", hits, misses)
	}

	idx.generation = "g2"
	if _, err := f.Recommend(ctx, 1, 6); err != nil {
		t.Fatal(err)
	}
	if idx.calls != 2 {
		t.Errorf("new generation served from cache")
	}

	if err := cache.Invalidate(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Recommend(ctx, 1, 6); err != nil {
		t.Fatal(err)
	}
	if idx.calls != 3 {
		t.Errorf("invalidated cache still served")
	}
}

func TestHeuristicEndpoint(t *testing.T) {
	f := NewFacade(threeProducts(), &stubIndex{}, Options{})
	resp, err := f.Heuristic(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	// 2 shares "wireless" (weight 2), 3 is priced within 30% of 25 (weight 1)
	if got := productIDs(resp.Recommendations); !equalIDs(got, []int64{2, 3}) || resp.Source != SourceHeuristic {
		t.Errorf("Heuristic() = %v/%s, want [2 3]/heuristic", got, resp.Source)
	}
	if _, err := f.Heuristic(context.Background(), 99); !errors.Is(err, apperrors.ErrProductNotFound) {
		t.Errorf("Heuristic(99) error = %v", err)
	}
}

func TestRecommendEndToEnd(t *testing.T) {
	cat := threeProducts()
	ix := similarity.New(artifact.NewMemoryStore(), corpus.NewExtractor(cat), similarity.Options{})
	f := NewFacade(cat, ix, Options{FallbackEnabled: true})

	resp, err := f.Recommend(context.Background(), 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := productIDs(resp.Recommendations); !equalIDs(got, []int64{2}) || resp.Source != SourceTFIDF {
		t.Errorf("Recommend() = %v/%s, want [2]/tfidf", got, resp.Source)
	}
}
