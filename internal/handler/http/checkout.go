package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sogshop/storefront/internal/cart"
	"github.com/sogshop/storefront/internal/middleware"
	"github.com/sogshop/storefront/internal/models"
	"github.com/sogshop/storefront/internal/payment"
	"github.com/sogshop/storefront/internal/service"
)

// CheckoutService runs the order-creation pipeline
type CheckoutService interface {
	Checkout(ctx context.Context, req *service.CheckoutRequest) (*service.CheckoutResponse, error)
}

// CheckoutHandler represents HTTP handler for checkout requests
type CheckoutHandler struct {
	svc CheckoutService
}

// NewCheckoutHandler creates new CheckoutHandler instance
func NewCheckoutHandler(svc CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{svc: svc}
}

type addressPayload struct {
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	Region     string `json:"region"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode"`
	Phone      string `json:"phone"`
}

type checkoutRequest struct {
	Items               []cart.Item    `json:"items"`
	Email               string         `json:"email"`
	Phone               string         `json:"phone"`
	ShippingAddress     addressPayload `json:"shippingAddress"`
	DeliveryMethod      string         `json:"deliveryMethod"`
	PromoCode           string         `json:"promoCode"`
	IdempotencyKey      string         `json:"idempotencyKey"`
	MobileMoneyProvider string         `json:"mobileMoneyProvider"`
	MobileMoneyPhone    string         `json:"mobileMoneyPhone"`
}

type checkoutResponse struct {
	OrderID          string `json:"orderId"`
	OrderNumber      string `json:"orderNumber"`
	URL              string `json:"url,omitempty"`
	AuthorizationURL string `json:"authorizationUrl,omitempty"`
	AccessCode       string `json:"accessCode,omitempty"`
	Reference        string `json:"reference,omitempty"`
	TransactionID    string `json:"transactionId,omitempty"`
	Message          string `json:"message,omitempty"`
}

type errorResponse struct {
	Error       string           `json:"error"`
	Details     []cart.LineError `json:"details,omitempty"`
	OrderID     string           `json:"orderId,omitempty"`
	OrderNumber string           `json:"orderNumber,omitempty"`
}

// Checkout handles a checkout submission for one payment method
// 200 — payment session created;
// 400 — validation failed, every failing line listed;
// 409 — duplicate submission, existing order identifiers returned;
// 500 — provider or internal failure.
func (ch *CheckoutHandler) Checkout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		method, err := models.ParsePaymentMethod(chi.URLParam(r, "method"))
		if err != nil {
			writeError(w, http.StatusBadRequest, errorResponse{Error: "unknown payment method"})
			return
		}

		var body checkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, errorResponse{Error: "bad request"})
			return
		}
		defer r.Body.Close()

		req := service.CheckoutRequest{
			Method: method,
			Items:  body.Items,
			Email:  body.Email,
			Phone:  body.Phone,
			Address: models.Address{
				FullName:   body.ShippingAddress.FullName,
				Line1:      body.ShippingAddress.Line1,
				Line2:      body.ShippingAddress.Line2,
				City:       body.ShippingAddress.City,
				Region:     body.ShippingAddress.Region,
				Country:    body.ShippingAddress.Country,
				PostalCode: body.ShippingAddress.PostalCode,
				Phone:      body.ShippingAddress.Phone,
			},
			DeliveryMethod:      body.DeliveryMethod,
			PromoCode:           body.PromoCode,
			IdempotencyKey:      body.IdempotencyKey,
			MobileMoneyProvider: body.MobileMoneyProvider,
			MobileMoneyPhone:    body.MobileMoneyPhone,
		}
		if req.IdempotencyKey == "" {
			req.IdempotencyKey = r.Header.Get("Idempotency-Key")
		}
		if payload, ok := middleware.AuthPayload(r.Context()); ok {
			req.UserID = &payload.UserID
		}

		resp, err := ch.svc.Checkout(r.Context(), &req)
		if err != nil {
			ch.writeCheckoutError(w, method, err)
			return
		}

		middleware.RecordCheckout(string(method), "initialized")

		out := checkoutResponse{
			OrderID:     resp.OrderID.String(),
			OrderNumber: resp.OrderNumber,
			Message:     resp.Message,
		}
		switch method {
		case models.PaymentMethodStripe:
			out.URL = resp.RedirectURL
		case models.PaymentMethodPaystack:
			out.AuthorizationURL = resp.RedirectURL
			out.AccessCode = resp.AccessCode
			out.Reference = resp.Reference
		case models.PaymentMethodMobileMoney:
			out.TransactionID = resp.TransactionID
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(out)
	}
}

func (ch *CheckoutHandler) writeCheckoutError(w http.ResponseWriter, method models.PaymentMethod, err error) {
	var validationErr *cart.ValidationError
	var duplicateErr *service.DuplicateCheckoutError
	var providerErr *payment.ProviderError

	switch {
	case errors.Is(err, models.ErrEmptyCart):
		middleware.RecordCheckout(string(method), "rejected")
		writeError(w, http.StatusBadRequest, errorResponse{Error: "cart is empty"})
	case errors.As(err, &validationErr):
		middleware.RecordCheckout(string(method), "rejected")
		writeError(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Details: validationErr.Lines})
	case errors.As(err, &duplicateErr):
		middleware.RecordCheckout(string(method), "duplicate")
		writeError(w, http.StatusConflict, errorResponse{
			Error:       "checkout already processed",
			OrderID:     duplicateErr.OrderID.String(),
			OrderNumber: duplicateErr.OrderNumber,
		})
	case errors.As(err, &providerErr):
		middleware.RecordCheckout(string(method), "provider_error")
		writeError(w, http.StatusInternalServerError, errorResponse{Error: providerErr.Message})
	default:
		middleware.RecordCheckout(string(method), "error")
		writeError(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeError(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
