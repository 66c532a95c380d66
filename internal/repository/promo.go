package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/sogshop/storefront/internal/models"
	"github.com/sogshop/storefront/internal/repository/postgres"
)

const (
	selectPromoQuery = `
						SELECT code, discount_type, discount_value, used_count, usage_limit, created_at
						FROM promo_codes
						WHERE code = $1
`
	// single-statement increment: concurrent redemptions never lose updates,
	// and an exhausted code is never incremented past its limit
	incrementPromoQuery = `
						UPDATE promo_codes
						SET used_count = used_count + 1
						WHERE code = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
`
)

// PromoRepository implements promo code persistence over postgres
type PromoRepository struct {
	db *postgres.DB
}

// NewPromoRepository creates new PromoRepository instance
func NewPromoRepository(db *postgres.DB) *PromoRepository {
	return &PromoRepository{db: db}
}

// GetPromoByCode returns a promo code entity
func (pr *PromoRepository) GetPromoByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	promo := models.PromoCode{}
	err := pr.db.QueryRow(ctx, selectPromoQuery, code).Scan(
		&promo.Code, &promo.DiscountType, &promo.DiscountValue,
		&promo.UsedCount, &promo.UsageLimit, &promo.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrDataNotFound
		}
		return nil, err
	}

	return &promo, nil
}

// IncrementPromoUsage atomically increments the usage counter while the usage
// limit allows it
func (pr *PromoRepository) IncrementPromoUsage(ctx context.Context, code string) error {
	cmd, err := pr.db.Exec(ctx, incrementPromoQuery, code)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrPromoExhausted
	}
	return nil
}
