// Package events carries index lifecycle notifications over Kafka. Builders
// announce new generations, the catalog side reports changes, and operators
// can request rebuilds. Every recommender instance applies them to its local
// index.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/metrics"
)

// Event types, sent in the kafka.TypeHeader header.
const (
	TypeIndexBuilt     = "index.built"
	TypeCatalogChanged = "catalog.changed"
	TypeIndexRebuild   = "index.rebuild"
)

const partitionKey = "recs-index"

// IndexBuilt announces a newly published generation.
type IndexBuilt struct {
	Generation string    `json:"generation"`
	Products   int       `json:"products"`
	Terms      int       `json:"terms"`
	BuiltAt    time.Time `json:"built_at"`
}

// CatalogChanged reports products created, updated or deleted since the last
// build. ProductIDs may be empty for bulk changes.
type CatalogChanged struct {
	ProductIDs []int64   `json:"product_ids,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

// RebuildRequested asks consumers to build their index.
type RebuildRequested struct {
	Force       bool      `json:"force"`
	RequestedAt time.Time `json:"requested_at"`
}

// Producer is satisfied by *kafka.Producer.
type Producer interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher emits index lifecycle events.
type Publisher struct {
	producer Producer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewPublisher(producer Producer, m *metrics.Metrics) *Publisher {
	return &Publisher{
		producer: producer,
		metrics:  m,
		logger:   logger.WithComponent("index-events"),
	}
}

// IndexBuilt publishes a TypeIndexBuilt event for status.
func (p *Publisher) IndexBuilt(ctx context.Context, status similarity.Status) error {
	return p.publish(ctx, TypeIndexBuilt, IndexBuilt{
		Generation: status.Generation,
		Products:   status.Products,
		Terms:      status.Terms,
		BuiltAt:    status.BuiltAt,
	})
}

// CatalogChanged publishes a TypeCatalogChanged event.
func (p *Publisher) CatalogChanged(ctx context.Context, productIDs []int64) error {
	return p.publish(ctx, TypeCatalogChanged, CatalogChanged{
		ProductIDs: productIDs,
		ChangedAt:  time.Now().UTC(),
	})
}

// RequestRebuild publishes a TypeIndexRebuild event.
func (p *Publisher) RequestRebuild(ctx context.Context, force bool) error {
	return p.publish(ctx, TypeIndexRebuild, RebuildRequested{
		Force:       force,
		RequestedAt: time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, eventType string, value any) error {
	err := p.producer.Publish(ctx, kafka.Event{Key: partitionKey, Type: eventType, Value: value})
	if err != nil {
		p.count(eventType, "failed")
		return fmt.Errorf("publishing %s: %w", eventType, err)
	}
	p.count(eventType, "published")
	p.logger.Info("index event published", "type", eventType)
	return nil
}

func (p *Publisher) count(eventType, direction string) {
	if p.metrics != nil {
		p.metrics.EventsTotal.WithLabelValues(eventType, direction).Inc()
	}
}
