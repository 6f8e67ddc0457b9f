package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/kafka"
)

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (f *fakeProducer) Publish(ctx context.Context, event kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type fakeIndex struct {
	generation string
	reloads    int
	builds     []bool
	stale      bool
	reloadErr  error
}

func (f *fakeIndex) Build(ctx context.Context, force bool) error {
	f.builds = append(f.builds, force)
	if force {
		f.generation += "+"
	}
	return nil
}

func (f *fakeIndex) Reload(ctx context.Context) error {
	f.reloads++
	if f.reloadErr != nil {
		return f.reloadErr
	}
	f.generation = "g2"
	return nil
}

func (f *fakeIndex) MarkStale()         { f.stale = true }
func (f *fakeIndex) Generation() string { return f.generation }

type fakeCache struct{ invalidations int }

func (f *fakeCache) Invalidate(ctx context.Context) error {
	f.invalidations++
	return nil
}

func message(t *testing.T, eventType string, value any) kafka.Message {
	t.Helper()
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Key: []byte(partitionKey), Type: eventType, Value: data}
}

func TestPublisher(t *testing.T) {
	prod := &fakeProducer{}
	p := NewPublisher(prod, nil)
	ctx := context.Background()

	status := similarity.Status{Generation: "g1", Products: 3, Terms: 8, BuiltAt: time.Now().UTC()}
	if err := p.IndexBuilt(ctx, status); err != nil {
		t.Fatal(err)
	}
	if err := p.CatalogChanged(ctx, []int64{4}); err != nil {
		t.Fatal(err)
	}
	if err := p.RequestRebuild(ctx, true); err != nil {
		t.Fatal(err)
	}
	want := []string{TypeIndexBuilt, TypeCatalogChanged, TypeIndexRebuild}
	if len(prod.events) != len(want) {
		t.Fatalf("published %d events, want %d", len(prod.events), len(want))
	}
	for i, typ := range want {
		if prod.events[i].Type != typ || prod.events[i].Key != partitionKey {
			t.Errorf("event %d = %s/%s, want %s", i, prod.events[i].Type, prod.events[i].Key, typ)
		}
	}
	if built := prod.events[0].Value.(IndexBuilt); built.Generation != "g1" || built.Products != 3 {
		t.Errorf("index.built payload = %+v", built)
	}

	prod.err = errors.New("broker down")
	if err := p.RequestRebuild(ctx, false); err == nil {
		t.Error("expected publish error")
	}
}

func TestHandleIndexBuilt(t *testing.T) {
	idx := &fakeIndex{generation: "g1"}
	cache := &fakeCache{}
	h := Handle(Deps{Index: idx, Cache: cache})
	ctx := context.Background()

	// Own generation: nothing to do.
	if err := h(ctx, message(t, TypeIndexBuilt, IndexBuilt{Generation: "g1"})); err != nil {
		t.Fatal(err)
	}
	if idx.reloads != 0 || cache.invalidations != 0 {
		t.Errorf("reloads=%d invalidations=%d, want 0/0", idx.reloads, cache.invalidations)
	}

	if err := h(ctx, message(t, TypeIndexBuilt, IndexBuilt{Generation: "g2"})); err != nil {
		t.Fatal(err)
	}
	if idx.reloads != 1 || cache.invalidations != 1 || idx.generation != "g2" {
		t.Errorf("reloads=%d invalidations=%d generation=%s", idx.reloads, cache.invalidations, idx.generation)
	}

	idx.reloadErr = errors.New("corrupt")
	if err := h(ctx, message(t, TypeIndexBuilt, IndexBuilt{Generation: "g3"})); err == nil {
		t.Error("reload failure should be returned")
	}
}

func TestHandleCatalogChangedMarksStale(t *testing.T) {
	idx := &fakeIndex{generation: "g1"}
	h := Handle(Deps{Index: idx})
	if err := h(context.Background(), message(t, TypeCatalogChanged, CatalogChanged{ProductIDs: []int64{7}})); err != nil {
		t.Fatal(err)
	}
	if !idx.stale {
		t.Error("index not marked stale")
	}
	if len(idx.builds) != 0 {
		t.Error("catalog change must not trigger a build")
	}
}

func TestHandleRebuild(t *testing.T) {
	idx := &fakeIndex{generation: "g1"}
	cache := &fakeCache{}
	h := Handle(Deps{Index: idx, Cache: cache})
	ctx := context.Background()

	if err := h(ctx, message(t, TypeIndexRebuild, RebuildRequested{Force: false})); err != nil {
		t.Fatal(err)
	}
	if err := h(ctx, message(t, TypeIndexRebuild, RebuildRequested{Force: true})); err != nil {
		t.Fatal(err)
	}
	if len(idx.builds) != 2 || idx.builds[0] || !idx.builds[1] {
		t.Errorf("builds = %v, want [false true]", idx.builds)
	}
	if cache.invalidations != 1 {
		t.Errorf("invalidations = %d, want 1", cache.invalidations)
	}
}

func TestHandleDropsUnknownAndMalformed(t *testing.T) {
	idx := &fakeIndex{}
	h := Handle(Deps{Index: idx})
	ctx := context.Background()
	if err := h(ctx, kafka.Message{Type: "something.else", Value: []byte("{}")}); err != nil {
		t.Errorf("unknown type error = %v", err)
	}
	if err := h(ctx, kafka.Message{Type: TypeIndexBuilt, Value: []byte("{")}); err != nil {
		t.Errorf("malformed event error = %v", err)
	}
	if idx.reloads != 0 {
		t.Error("malformed event triggered reload")
	}
}
