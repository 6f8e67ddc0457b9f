// Package corpus turns catalog products into the text documents the
// similarity index is built from.
package corpus

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/catalog"
)

// Document is the indexable text of one product.
type Document struct {
	ProductID int64
	Text      string
}

// Source supplies the products to extract. catalog.Catalog satisfies it.
type Source interface {
	List(ctx context.Context) ([]catalog.Product, error)
}

// Extractor reads the catalog and produces one Document per product.
type Extractor struct {
	source Source
}

func NewExtractor(source Source) *Extractor {
	return &Extractor{source: source}
}

// Extract lists the catalog and converts it. An empty catalog yields an
// empty, non-nil slice.
func (e *Extractor) Extract(ctx context.Context) ([]Document, error) {
	products, err := e.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return Documents(products), nil
}

// Documents converts products in order. Null name or description fields
// become empty strings.
func Documents(products []catalog.Product) []Document {
	docs := make([]Document, 0, len(products))
	for _, p := range products {
		docs = append(docs, Document{
			ProductID: p.ID,
			Text:      p.NameOrEmpty() + " " + p.DescriptionOrEmpty(),
		})
	}
	return docs
}
