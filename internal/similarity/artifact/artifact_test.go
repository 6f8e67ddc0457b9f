package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/similarity/vector"
	apperrors "github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/errors"
)

func sampleArtifact(gen string) *Artifact {
	model, m := vector.Fit([]string{
		"Wireless Mouse ergonomic wireless mouse",
		"Wireless Keyboard mechanical wireless keyboard",
		"Desk Lamp LED desk lamp",
	}, 0)
	return &Artifact{
		Generation: gen,
		BuiltAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Model:      model,
		Matrix:     m,
		ProductIDs: []int64{1, 2, 3},
	}
}

func TestValidate(t *testing.T) {
	good := sampleArtifact("g")
	tests := []struct {
		name   string
		mutate func(a *Artifact)
		ok     bool
	}{
		{"valid", func(a *Artifact) {}, true},
		{"empty", func(a *Artifact) { *a = *Empty() }, true},
		{"row count mismatch", func(a *Artifact) { a.ProductIDs = []int64{1, 2} }, false},
		{"duplicate ids", func(a *Artifact) { a.ProductIDs = []int64{1, 2, 1} }, false},
		{"model without matrix", func(a *Artifact) { a.Matrix = nil }, false},
		{"ids without model", func(a *Artifact) { a.Model, a.Matrix = nil, nil }, false},
		{"column mismatch", func(a *Artifact) {
			a.Model = &vector.Model{Terms: []string{"x"}, IDF: []float64{1}}
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := *good
			tt.mutate(&a)
			err := a.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if !tt.ok && !errors.Is(err, apperrors.ErrArtifactCorrupt) {
				t.Fatalf("Validate() error = %v, want ErrArtifactCorrupt", err)
			}
		})
	}
}

func TestFrameDetectsDamage(t *testing.T) {
	b := frame([]byte(`{"generation":"g"}`))
	if _, err := unframe(b); err != nil {
		t.Fatalf("unframe() error = %v", err)
	}

	flipped := append([]byte(nil), b...)
	flipped[HeaderSize] ^= 0xff
	if _, err := unframe(flipped); err == nil {
		t.Error("checksum mismatch not detected")
	}
	if _, err := unframe(b[:len(b)-1]); err == nil {
		t.Error("truncation not detected")
	}
	badMagic := append([]byte(nil), b...)
	badMagic[0] = 0
	if _, err := unframe(badMagic); err == nil {
		t.Error("bad magic not detected")
	}
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	ok, err := s.Exists(ctx)
	if err != nil || ok {
		t.Fatalf("Exists() on fresh store = %v, %v; want false", ok, err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, apperrors.ErrArtifactNotFound) {
		t.Fatalf("Load() on fresh store error = %v, want ErrArtifactNotFound", err)
	}

	want := sampleArtifact("11111111-1111-1111-1111-111111111111")
	if err := s.Store(ctx, want); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if ok, err := s.Exists(ctx); err != nil || !ok {
		t.Fatalf("Exists() after Store = %v, %v; want true", ok, err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Generation != want.Generation || !got.BuiltAt.Equal(want.BuiltAt) {
		t.Errorf("metadata = %s/%v, want %s/%v", got.Generation, got.BuiltAt, want.Generation, want.BuiltAt)
	}
	if len(got.ProductIDs) != 3 || got.Matrix.Rows != 3 || got.Model.Len() != want.Model.Len() {
		t.Errorf("loaded artifact shape differs: ids=%v rows=%d terms=%d", got.ProductIDs, got.Matrix.Rows, got.Model.Len())
	}
	for i := 0; i < 3; i++ {
		if c := vector.Cosine(got.Matrix.Row(i), want.Matrix.Row(i)); c < 0.999999 {
			t.Errorf("row %d changed in round trip: cosine %v", i, c)
		}
	}

	// Generations come from the caller; a store never invents one.
	unnamed := Empty()
	if err := s.Store(ctx, unnamed); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("Store(no generation) error = %v, want ErrInvalidInput", err)
	}
	if unnamed.Generation != "" {
		t.Errorf("Store() assigned generation %q to the caller's artifact", unnamed.Generation)
	}
	if got, err := s.Load(ctx); err != nil || got.Generation != want.Generation {
		t.Fatalf("rejected Store changed the current artifact: %v, %v", got, err)
	}

	// A second generation replaces the first wholesale.
	empty := Empty()
	empty.Generation = "22222222-2222-2222-2222-222222222222"
	if err := s.Store(ctx, empty); err != nil {
		t.Fatalf("Store(empty) error = %v", err)
	}
	got, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() after empty store error = %v", err)
	}
	if !got.IsEmpty() || got.Model != nil || got.Matrix != nil || got.ProductIDs == nil {
		t.Errorf("empty artifact loaded as %+v", got)
	}
	if got.Generation != empty.Generation {
		t.Errorf("empty artifact generation = %q, want %q", got.Generation, empty.Generation)
	}

	bad := sampleArtifact("33333333-3333-3333-3333-333333333333")
	bad.ProductIDs = []int64{1, 1, 2}
	if err := s.Store(ctx, bad); !errors.Is(err, apperrors.ErrArtifactCorrupt) {
		t.Fatalf("Store(invalid) error = %v, want ErrArtifactCorrupt", err)
	}
	if got, err := s.Load(ctx); err != nil || !got.IsEmpty() {
		t.Errorf("invalid Store changed the current artifact: %+v, %v", got, err)
	}
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	storeContract(t, NewFileStore(t.TempDir()))
}

func TestBadgerStore(t *testing.T) {
	s, err := OpenBadgerStore("")
	if err != nil {
		t.Fatalf("OpenBadgerStore() error = %v", err)
	}
	defer s.Close()
	storeContract(t, s)
}

func TestMemoryStorePartialArtifactIsCorrupt(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Store(ctx, sampleArtifact("g1")); err != nil {
		t.Fatal(err)
	}
	s.SetBlob(MatrixBlob, nil)
	if ok, _ := s.Exists(ctx); ok {
		t.Error("Exists() = true with a missing blob")
	}
	if _, err := s.Load(ctx); !errors.Is(err, apperrors.ErrArtifactCorrupt) {
		t.Fatalf("Load() error = %v, want ErrArtifactCorrupt", err)
	}
}

func TestFileStoreMixedGenerationsAreCorrupt(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	ctx := context.Background()
	if err := s.Store(ctx, sampleArtifact("gen-a")); err != nil {
		t.Fatal(err)
	}
	if err := s.Store(ctx, sampleArtifact("gen-b")); err != nil {
		t.Fatal(err)
	}

	// Splice an ids blob from the older generation into the current one.
	old, err := os.ReadFile(filepath.Join(dir, "gen-gen-a", "ids.blob"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "gen-gen-b", "ids.blob"), old, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, apperrors.ErrArtifactCorrupt) {
		t.Fatalf("Load() error = %v, want ErrArtifactCorrupt", err)
	}
}

func TestFileStoreMissingBlob(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	ctx := context.Background()
	if err := s.Store(ctx, sampleArtifact("g1")); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "gen-g1", "model.blob")); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.Exists(ctx); err != nil || ok {
		t.Errorf("Exists() = %v, %v; want false", ok, err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, apperrors.ErrArtifactCorrupt) {
		t.Fatalf("Load() error = %v, want ErrArtifactCorrupt", err)
	}
}

func TestFileStorePrunesOldGenerations(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i, gen := range []string{"g1", "g2", "g3", "g4"} {
		if err := s.Store(ctx, sampleArtifact(gen)); err != nil {
			t.Fatal(err)
		}
		// pin modification times so generation age follows store order
		at := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(filepath.Join(dir, "gen-"+gen), at, at); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var gens []string
	for _, e := range entries {
		if e.IsDir() {
			gens = append(gens, e.Name())
		}
	}
	if len(gens) != keepGenerations {
		t.Errorf("generations on disk = %v, want %d", gens, keepGenerations)
	}
	if _, err := os.Stat(filepath.Join(dir, "gen-g4")); err != nil {
		t.Errorf("current generation removed: %v", err)
	}
}

func TestOpen(t *testing.T) {
	for _, backend := range []string{BackendFile, BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			store, closeFn, err := Open(backend, t.TempDir())
			if err != nil {
				t.Fatalf("Open(%q) error = %v", backend, err)
			}
			defer closeFn()
			ctx := context.Background()
			if err := store.Store(ctx, sampleArtifact("g1")); err != nil {
				t.Fatalf("Store() error = %v", err)
			}
			if ok, err := store.Exists(ctx); err != nil || !ok {
				t.Errorf("Exists() = %v, %v", ok, err)
			}
		})
	}
	if _, _, err := Open("s3", t.TempDir()); err == nil {
		t.Error("unknown backend should fail")
	}
}
