package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/errors"
	"github.com/jmoiron/sqlx"
)

// selectProducts reads products with their average review rating. The
// storefront owns the api_product and api_review tables; products without
// reviews rate 0.
const selectProducts = `
SELECT p.id, p.name, p.description, p.price, p.quantity,
       COALESCE(AVG(r.rating), 0) AS average_rating
FROM api_product p
LEFT JOIN api_review r ON r.product_id = p.id`

const groupProducts = `
GROUP BY p.id, p.name, p.description, p.price, p.quantity`

// SQLStore is a Catalog backed by the storefront database.
type SQLStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewSQLStore creates a SQLStore over an open sqlx handle.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{
		db:     db,
		logger: slog.Default().With("component", "catalog-sql"),
	}
}

func (s *SQLStore) List(ctx context.Context) ([]Product, error) {
	var products []Product
	query := selectProducts + groupProducts + "\nORDER BY p.id"
	if err := s.db.SelectContext(ctx, &products, query); err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	s.logger.Debug("catalog listed", "products", len(products))
	return products, nil
}

func (s *SQLStore) Get(ctx context.Context, id int64) (*Product, error) {
	var p Product
	query := s.db.Rebind(selectProducts + "\nWHERE p.id = ?" + groupProducts)
	err := s.db.GetContext(ctx, &p, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, apperrors.ErrProductNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

func (s *SQLStore) GetMany(ctx context.Context, ids []int64) ([]Product, error) {
	if len(ids) == 0 {
		return []Product{}, nil
	}
	query, args, err := sqlx.In(selectProducts+"\nWHERE p.id IN (?)"+groupProducts, ids)
	if err != nil {
		return nil, fmt.Errorf("expanding product ids: %w", err)
	}
	var products []Product
	if err := s.db.SelectContext(ctx, &products, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("getting %d products: %w", len(ids), err)
	}
	return products, nil
}

var _ Catalog = (*SQLStore)(nil)
