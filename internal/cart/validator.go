package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sogshop/storefront/internal/models"
)

const maxLineQuantity = 100

// CatalogStore is the read-only product lookup validation runs against.
type CatalogStore interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
}

// Item is a client-submitted cart line. ClientPrice is display-only and is
// always replaced with the catalog price.
type Item struct {
	ProductID   string          `json:"productId"`
	Quantity    int             `json:"quantity"`
	Size        string          `json:"size,omitempty"`
	Color       string          `json:"color,omitempty"`
	ClientPrice decimal.Decimal `json:"clientPrice"`
}

// LineError describes why a single cart line was rejected.
type LineError struct {
	ProductID string `json:"productId"`
	Reason    string `json:"reason"`
}

// ValidationError carries every failing line so the client can show all
// problems at once.
type ValidationError struct {
	Lines []LineError
}

func (e *ValidationError) Error() string {
	reasons := make([]string, 0, len(e.Lines))
	for _, line := range e.Lines {
		reasons = append(reasons, fmt.Sprintf("%s: %s", line.ProductID, line.Reason))
	}
	return "cart validation failed: " + strings.Join(reasons, "; ")
}

// Result is the authoritative outcome of cart validation. Items carry catalog
// snapshots; Subtotal is the only subtotal downstream code may use.
type Result struct {
	Valid    bool
	Errors   []LineError
	Items    []models.OrderItem
	Subtotal decimal.Decimal
}

// Validator re-derives prices, quantities and availability for a submitted
// cart against the catalog.
type Validator struct {
	catalog CatalogStore
}

// NewValidator creates new Validator instance
func NewValidator(catalog CatalogStore) *Validator {
	return &Validator{catalog: catalog}
}

// Validate checks every line and returns either validated items with the
// corrected subtotal or the full list of failing lines.
func (v *Validator) Validate(ctx context.Context, items []Item) (*Result, error) {
	if len(items) == 0 {
		return nil, models.ErrEmptyCart
	}

	res := Result{Subtotal: decimal.Zero}

	for _, item := range items {
		product, err := v.catalog.GetProductByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, models.ErrDataNotFound) {
				res.Errors = append(res.Errors, LineError{ProductID: item.ProductID, Reason: "product not found"})
				continue
			}
			return nil, err
		}

		if !product.InStock {
			res.Errors = append(res.Errors, LineError{ProductID: item.ProductID, Reason: "out of stock"})
			continue
		}

		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		if qty > maxLineQuantity {
			qty = maxLineQuantity
		}

		res.Items = append(res.Items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Image:     product.Image,
			UnitPrice: product.Price,
			Quantity:  qty,
			Size:      item.Size,
			Color:     item.Color,
		})
		res.Subtotal = res.Subtotal.Add(product.Price.Mul(decimal.NewFromInt(int64(qty))))
	}

	res.Valid = len(res.Errors) == 0
	return &res, nil
}
