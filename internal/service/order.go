package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sogshop/storefront/internal/models"
)

// OrderReader is the read side of order persistence
type OrderReader interface {
	GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
}

// OrderService serves order reads with the ownership rule applied.
type OrderService struct {
	repo OrderReader
}

// NewOrderService creates new OrderService instance
func NewOrderService(repo OrderReader) *OrderService {
	return &OrderService{repo: repo}
}

// GetOrderByID returns an order subject to ownership: a user-owned order is
// visible only to its owner; a guest order is visible to anyone holding the
// id. Cross-account requests look identical to a missing order.
func (os *OrderService) GetOrderByID(ctx context.Context, id uuid.UUID, requester *uuid.UUID) (*models.Order, error) {
	order, err := os.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if order.UserID != nil {
		if requester == nil || *requester != *order.UserID {
			return nil, models.ErrDataNotFound
		}
	}

	return order, nil
}

// ListUserOrders returns the orders belonging to a user
func (os *OrderService) ListUserOrders(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	return os.repo.GetOrdersByUserID(ctx, userID)
}
