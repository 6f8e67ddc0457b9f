// Package catalog is the read side of the product catalog that the
// similarity engine consumes. Products are owned by the storefront's CRUD
// layer; this package only lists and looks them up.
package catalog

import (
	"context"
)

// Product is a catalog record. Name, Description and Price are nullable in
// the storefront schema and stay nullable here; consumers coerce them at
// their own boundary.
type Product struct {
	ID            int64    `json:"id" db:"id"`
	Name          *string  `json:"name" db:"name"`
	Description   *string  `json:"description" db:"description"`
	Price         *float64 `json:"price,omitempty" db:"price"`
	Quantity      int64    `json:"quantity" db:"quantity"`
	AverageRating float64  `json:"average_rating" db:"average_rating"`
}

// NameOrEmpty returns the product name, or "" when it is null.
func (p Product) NameOrEmpty() string {
	if p.Name == nil {
		return ""
	}
	return *p.Name
}

// DescriptionOrEmpty returns the product description, or "" when it is null.
func (p Product) DescriptionOrEmpty() string {
	if p.Description == nil {
		return ""
	}
	return *p.Description
}

// Catalog is the collaborator interface the core reads products through.
type Catalog interface {
	// List returns every product in catalog enumeration order (ascending id).
	List(ctx context.Context) ([]Product, error)
	// Get returns a single product or an error wrapping
	// errors.ErrProductNotFound.
	Get(ctx context.Context, id int64) (*Product, error)
	// GetMany returns the products whose ids are in ids. Missing ids are
	// skipped and the result order is unspecified.
	GetMany(ctx context.Context, ids []int64) ([]Product, error)
}

// Str returns a pointer to s, for building products with literal fields.
func Str(s string) *string { return &s }

// Price returns a pointer to p, for building products with literal prices.
func Price(p float64) *float64 { return &p }
