package catalog

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/resilience"
)

// GuardConfig tunes the retry and circuit breaker wrapped around a Catalog.
type GuardConfig struct {
	Retry   resilience.RetryConfig
	Breaker resilience.BreakerConfig
}

// Guarded decorates a Catalog with bounded retries and a circuit breaker.
// Not-found and cancellation results pass straight through and do not count
// against the breaker.
type Guarded struct {
	next    Catalog
	retry   resilience.RetryConfig
	list    *resilience.Breaker[[]Product]
	get     *resilience.Breaker[*Product]
	getMany *resilience.Breaker[[]Product]
}

// NewGuarded wraps next.
func NewGuarded(next Catalog, cfg GuardConfig) *Guarded {
	cfg.Retry.Permanent = expected
	cfg.Breaker.IsSuccessful = func(err error) bool { return err == nil || expected(err) }
	return &Guarded{
		next:    next,
		retry:   cfg.Retry,
		list:    resilience.NewBreaker[[]Product]("catalog-list", cfg.Breaker),
		get:     resilience.NewBreaker[*Product]("catalog-get", cfg.Breaker),
		getMany: resilience.NewBreaker[[]Product]("catalog-get-many", cfg.Breaker),
	}
}

func (g *Guarded) List(ctx context.Context) ([]Product, error) {
	return guard(ctx, g, g.list, "catalog.List", func() ([]Product, error) {
		return g.next.List(ctx)
	})
}

func (g *Guarded) Get(ctx context.Context, id int64) (*Product, error) {
	return guard(ctx, g, g.get, "catalog.Get", func() (*Product, error) {
		return g.next.Get(ctx, id)
	})
}

func (g *Guarded) GetMany(ctx context.Context, ids []int64) ([]Product, error) {
	return guard(ctx, g, g.getMany, "catalog.GetMany", func() ([]Product, error) {
		return g.next.GetMany(ctx, ids)
	})
}

func guard[T any](ctx context.Context, g *Guarded, b *resilience.Breaker[T], name string, fn func() (T, error)) (T, error) {
	v, err := b.Execute(func() (T, error) {
		return resilience.RetryValue(ctx, name, g.retry, fn)
	})
	if err != nil && resilience.IsOpen(err) {
		var zero T
		return zero, fmt.Errorf("%s: %w: %v", name, apperrors.ErrUnavailable, err)
	}
	return v, err
}

func expected(err error) bool {
	return errors.Is(err, apperrors.ErrProductNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

var _ Catalog = (*Guarded)(nil)
