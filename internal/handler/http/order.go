package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sogshop/storefront/internal/middleware"
	"github.com/sogshop/storefront/internal/models"
)

// OrderService serves order reads with ownership applied
type OrderService interface {
	GetOrderByID(ctx context.Context, id uuid.UUID, requester *uuid.UUID) (*models.Order, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
}

// OrderHandler represents HTTP handler for order-related requests
type OrderHandler struct {
	svc OrderService
}

// NewOrderHandler creates new OrderHandler instance
func NewOrderHandler(svc OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

type orderItemResp struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	UnitPrice string `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

type addressResp struct {
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

type orderResp struct {
	ID              string          `json:"id"`
	Number          string          `json:"orderNumber"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"paymentStatus"`
	PaymentMethod   string          `json:"paymentMethod"`
	Subtotal        string          `json:"subtotal"`
	ShippingCost    string          `json:"shippingCost"`
	DiscountAmount  string          `json:"discountAmount"`
	TotalAmount     string          `json:"totalAmount"`
	PromoCode       *string         `json:"promoCode,omitempty"`
	Items           []orderItemResp `json:"items,omitempty"`
	ShippingAddress *addressResp    `json:"shippingAddress,omitempty"`
	CreatedAt       string          `json:"createdAt"`
	PaidAt          *string         `json:"paidAt,omitempty"`
}

// GetOrder returns one order with items and shipping address
// 200 — успешная обработка запроса;
// 404 — заказ не найден или принадлежит другому пользователю;
// 400 — неверный формат идентификатора.
func (oh *OrderHandler) GetOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		var requester *uuid.UUID
		if payload, ok := middleware.AuthPayload(r.Context()); ok {
			requester = &payload.UserID
		}

		order, err := oh.svc.GetOrderByID(r.Context(), id, requester)
		if err != nil {
			if errors.Is(err, models.ErrDataNotFound) {
				http.Error(w, "order not found", http.StatusNotFound)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(toOrderResp(order, true))
	}
}

// ListUserOrders returns the authenticated user's orders
// 200 — успешная обработка запроса;
// 204 — нет данных для ответа;
// 401 — пользователь не авторизован.
func (oh *OrderHandler) ListUserOrders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, ok := middleware.AuthPayload(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		orders, err := oh.svc.ListUserOrders(r.Context(), payload.UserID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if len(orders) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		resp := make([]orderResp, 0, len(orders))
		for i := range orders {
			resp = append(resp, toOrderResp(&orders[i], false))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}
}

func toOrderResp(order *models.Order, full bool) orderResp {
	resp := orderResp{
		ID:             order.ID.String(),
		Number:         order.Number,
		Status:         order.Status,
		PaymentStatus:  order.PaymentStatus,
		PaymentMethod:  string(order.PaymentMethod),
		Subtotal:       order.Subtotal.StringFixed(2),
		ShippingCost:   order.ShippingCost.StringFixed(2),
		DiscountAmount: order.DiscountAmount.StringFixed(2),
		TotalAmount:    order.TotalAmount.StringFixed(2),
		PromoCode:      order.PromoCode,
		CreatedAt:      order.CreatedAt.Format(time.RFC3339),
	}
	if order.PaidAt != nil {
		paidAt := order.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &paidAt
	}

	if !full {
		return resp
	}

	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResp{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
		})
	}
	if order.Address != nil {
		resp.ShippingAddress = &addressResp{
			FullName:   order.Address.FullName,
			Line1:      order.Address.Line1,
			Line2:      order.Address.Line2,
			City:       order.Address.City,
			Region:     order.Address.Region,
			Country:    order.Address.Country,
			PostalCode: order.Address.PostalCode,
			Phone:      order.Address.Phone,
		}
	}

	return resp
}
