package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/resilience"
)

type flakyCatalog struct {
	*MemoryStore
	failures int
	calls    int
}

func (f *flakyCatalog) List(ctx context.Context) ([]Product, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset")
	}
	return f.MemoryStore.List(ctx)
}

func fastGuard() GuardConfig {
	return GuardConfig{
		Retry:   resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Breaker: resilience.BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour},
	}
}

func TestGuardedRetriesTransientFailures(t *testing.T) {
	inner := &flakyCatalog{MemoryStore: NewMemoryStore(Product{ID: 1}), failures: 2}
	g := NewGuarded(inner, fastGuard())

	products, err := g.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(products) != 1 || inner.calls != 3 {
		t.Errorf("got %d products after %d calls, want 1 after 3", len(products), inner.calls)
	}
}

func TestGuardedNotFoundIsNotRetried(t *testing.T) {
	g := NewGuarded(NewMemoryStore(), fastGuard())
	for i := 0; i < 5; i++ {
		_, err := g.Get(context.Background(), 7)
		if !errors.Is(err, apperrors.ErrProductNotFound) {
			t.Fatalf("Get() error = %v, want ErrProductNotFound", err)
		}
	}
}

func TestGuardedOpensAfterFailures(t *testing.T) {
	inner := &flakyCatalog{MemoryStore: NewMemoryStore(), failures: 100}
	g := NewGuarded(inner, fastGuard())

	for i := 0; i < 2; i++ {
		if _, err := g.List(context.Background()); err == nil {
			t.Fatal("expected failure")
		}
	}
	calls := inner.calls
	_, err := g.List(context.Background())
	if !errors.Is(err, apperrors.ErrUnavailable) {
		t.Fatalf("List() error = %v, want ErrUnavailable", err)
	}
	if inner.calls != calls {
		t.Errorf("open circuit still reached catalog: %d calls, want %d", inner.calls, calls)
	}
}
