package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/metrics"
)

// Index is the part of similarity.Index that events act on.
type Index interface {
	Build(ctx context.Context, force bool) error
	Reload(ctx context.Context) error
	MarkStale()
	Generation() string
}

// Invalidator drops cached results. *recommend.Cache satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Deps are the collaborators an event handler acts on. Cache and Metrics may
// be nil.
type Deps struct {
	Index   Index
	Cache   Invalidator
	Metrics *metrics.Metrics
}

// Handle returns a kafka.MessageHandler applying index lifecycle events.
// Malformed and unknown events are logged and dropped; failures to apply a
// valid event are returned so the message is not committed.
func Handle(deps Deps) kafka.MessageHandler {
	logger := logger.WithComponent("index-events")
	count := func(eventType, direction string) {
		if deps.Metrics != nil {
			deps.Metrics.EventsTotal.WithLabelValues(eventType, direction).Inc()
		}
	}

	return func(ctx context.Context, msg kafka.Message) error {
		var err error
		switch msg.Type {
		case TypeIndexBuilt:
			err = onIndexBuilt(ctx, deps, logger, msg.Value)
		case TypeCatalogChanged:
			err = onCatalogChanged(deps, logger, msg.Value)
		case TypeIndexRebuild:
			err = onRebuild(ctx, deps, logger, msg.Value)
		default:
			logger.Warn("unknown index event dropped", "type", msg.Type)
			return nil
		}
		if err != nil {
			count(msg.Type, "failed")
			return err
		}
		count(msg.Type, "consumed")
		return nil
	}
}

func onIndexBuilt(ctx context.Context, deps Deps, logger *slog.Logger, value []byte) error {
	evt, err := kafka.DecodeJSON[IndexBuilt](value)
	if err != nil {
		logger.Warn("malformed index.built event dropped", "error", err)
		return nil
	}
	if evt.Generation != "" && evt.Generation == deps.Index.Generation() {
		logger.Debug("index.built for active generation ignored", "generation", evt.Generation)
		return nil
	}
	if err := deps.Index.Reload(ctx); err != nil {
		return fmt.Errorf("reloading index for generation %s: %w", evt.Generation, err)
	}
	logger.Info("index reloaded from event", "generation", deps.Index.Generation(), "announced", evt.Generation)
	invalidate(ctx, deps, logger)
	return nil
}

func onCatalogChanged(deps Deps, logger *slog.Logger, value []byte) error {
	evt, err := kafka.DecodeJSON[CatalogChanged](value)
	if err != nil {
		logger.Warn("malformed catalog.changed event dropped", "error", err)
		return nil
	}
	deps.Index.MarkStale()
	logger.Info("catalog change recorded", "products", len(evt.ProductIDs))
	return nil
}

func onRebuild(ctx context.Context, deps Deps, logger *slog.Logger, value []byte) error {
	evt, err := kafka.DecodeJSON[RebuildRequested](value)
	if err != nil {
		logger.Warn("malformed index.rebuild event dropped", "error", err)
		return nil
	}
	before := deps.Index.Generation()
	if err := deps.Index.Build(ctx, evt.Force); err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}
	if deps.Index.Generation() != before {
		invalidate(ctx, deps, logger)
	}
	return nil
}

func invalidate(ctx context.Context, deps Deps, logger *slog.Logger) {
	if deps.Cache == nil {
		return
	}
	if err := deps.Cache.Invalidate(ctx); err != nil {
		logger.Warn("cache invalidation failed", "error", err)
	}
}
