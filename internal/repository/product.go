package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/sogshop/storefront/internal/models"
	"github.com/sogshop/storefront/internal/repository/postgres"
)

const selectProductQuery = `
						SELECT id, name, image, price, in_stock
						FROM products
						WHERE id = $1
`

// ProductRepository is the read-only catalog lookup used by cart validation
type ProductRepository struct {
	db *postgres.DB
}

// NewProductRepository creates new ProductRepository instance
func NewProductRepository(db *postgres.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetProductByID returns a catalog product
func (pr *ProductRepository) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	product := models.Product{}
	err := pr.db.QueryRow(ctx, selectProductQuery, id).Scan(
		&product.ID, &product.Name, &product.Image, &product.Price, &product.InStock,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrDataNotFound
		}
		return nil, err
	}

	return &product, nil
}
