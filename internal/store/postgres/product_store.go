package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bidstream/bidstream/internal/domain"
)

// ProductStore implements domain.ProductCatalog using PostgreSQL.
type ProductStore struct {
	pool *pgxpool.Pool
}

// NewProductStore creates a new ProductStore backed by the given connection
// pool.
func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

// Get retrieves a product by ID.
func (s *ProductStore) Get(ctx context.Context, productID string) (domain.Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, shop_id, name, price_cents FROM products WHERE id = $1`,
		productID)

	var p domain.Product
	if err := row.Scan(&p.ID, &p.ShopID, &p.Name, &p.PriceCents); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("postgres: get product %s: %w", productID, err)
	}
	return p, nil
}

// ShopOwner returns the id of the user controlling the shop.
func (s *ProductStore) ShopOwner(ctx context.Context, shopID string) (string, error) {
	var ownerID string
	err := s.pool.QueryRow(ctx,
		`SELECT owner_id FROM shops WHERE id = $1`, shopID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrProductNotFound
		}
		return "", fmt.Errorf("postgres: get shop owner %s: %w", shopID, err)
	}
	return ownerID, nil
}

// Compile-time interface check.
var _ domain.ProductCatalog = (*ProductStore)(nil)
