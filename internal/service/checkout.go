package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sogshop/storefront/internal/cart"
	"github.com/sogshop/storefront/internal/logger"
	"github.com/sogshop/storefront/internal/models"
	"github.com/sogshop/storefront/internal/payment"
	"go.uber.org/zap"
)

const (
	orderNumberPrefix = "SOG"
	initializeTimeout = 15 * time.Second
)

// delivery methods and their flat shipping fees
var shippingFees = map[string]decimal.Decimal{
	"standard": decimal.NewFromFloat(10.00),
	"express":  decimal.NewFromFloat(20.00),
	"pickup":   decimal.Zero,
}

// CheckoutOrderStore is the order persistence the checkout pipeline needs
type CheckoutOrderStore interface {
	// CreateOrder persists the address, order and items in one transaction
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	// GetOrderByIdempotencyKey returns the order of a previous identical submission
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	// SetStripeSession attaches the provider session id once
	SetStripeSession(ctx context.Context, id uuid.UUID, sessionID string) error
	// DeleteOrder removes an order whose payment session failed to initialize
	DeleteOrder(ctx context.Context, id uuid.UUID) error
}

// PromoStore resolves promo codes
type PromoStore interface {
	GetPromoByCode(ctx context.Context, code string) (*models.PromoCode, error)
}

// CartValidator re-derives authoritative prices for a submitted cart
type CartValidator interface {
	Validate(ctx context.Context, items []cart.Item) (*cart.Result, error)
}

// CheckoutRequest is one checkout attempt.
type CheckoutRequest struct {
	Method         models.PaymentMethod
	Items          []cart.Item
	Email          string
	Phone          string
	Address        models.Address
	DeliveryMethod string
	PromoCode      string

	// IdempotencyKey is the client-supplied replay token. When empty the
	// pipeline derives one from the request content.
	IdempotencyKey string

	UserID *uuid.UUID

	MobileMoneyProvider string
	MobileMoneyPhone    string
}

// CheckoutResponse is the provider session handed back to the client.
type CheckoutResponse struct {
	OrderID       uuid.UUID
	OrderNumber   string
	RedirectURL   string
	AccessCode    string
	Reference     string
	TransactionID string
	Message       string
}

// DuplicateCheckoutError reports a resubmitted checkout attempt with the
// identifiers of the order the first attempt created.
type DuplicateCheckoutError struct {
	OrderID     uuid.UUID
	OrderNumber string
}

func (e *DuplicateCheckoutError) Error() string {
	return fmt.Sprintf("checkout already processed as order %s", e.OrderNumber)
}

// CheckoutService runs the order-creation pipeline. Every payment method goes
// through the same steps; only the gateway call varies.
type CheckoutService struct {
	orders   CheckoutOrderStore
	promos   PromoStore
	cart     CartValidator
	gateways payment.Registry
	baseURL  string
}

// NewCheckoutService creates new CheckoutService instance
func NewCheckoutService(orders CheckoutOrderStore, promos PromoStore, validator CartValidator, gateways payment.Registry, baseURL string) *CheckoutService {
	return &CheckoutService{
		orders:   orders,
		promos:   promos,
		cart:     validator,
		gateways: gateways,
		baseURL:  baseURL,
	}
}

// Checkout validates the cart, creates a PENDING order and initializes a
// payment session. If the provider rejects the session the order is deleted
// again so the customer can retry cleanly.
func (cs *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	if err := validateContact(req); err != nil {
		return nil, err
	}

	res, err := cs.cart.Validate(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return nil, &cart.ValidationError{Lines: res.Errors}
	}

	promo, discount, err := cs.resolvePromo(ctx, req.PromoCode, res.Subtotal)
	if err != nil {
		return nil, err
	}

	shipping, ok := shippingFees[req.DeliveryMethod]
	if !ok {
		return nil, &cart.ValidationError{Lines: []cart.LineError{{Reason: "unknown delivery method"}}}
	}

	key := req.IdempotencyKey
	if key == "" {
		key = deriveIdempotencyKey(req.Items, req.Email, time.Now())
	}

	if existing, err := cs.orders.GetOrderByIdempotencyKey(ctx, key); err == nil {
		return nil, &DuplicateCheckoutError{OrderID: existing.ID, OrderNumber: existing.Number}
	} else if !errors.Is(err, models.ErrDataNotFound) {
		return nil, err
	}

	order := &models.Order{
		ID:             uuid.New(),
		Number:         GenerateOrderNumber(),
		UserID:         req.UserID,
		Email:          req.Email,
		Phone:          req.Phone,
		Status:         models.OrderStatusPending,
		PaymentStatus:  models.PaymentStatusPending,
		PaymentMethod:  req.Method,
		Subtotal:       res.Subtotal,
		DiscountAmount: discount,
		ShippingCost:   shipping,
		TotalAmount:    models.OrderTotal(res.Subtotal, shipping, discount),
		IdempotencyKey: key,
		Items:          res.Items,
		Address:        &req.Address,
	}
	order.Address.UserID = req.UserID
	if promo != nil {
		order.PromoCode = &promo.Code
	}

	// provider correlation ids known before the provider call
	switch req.Method {
	case models.PaymentMethodPaystack:
		order.PaystackReference = &order.Number
	case models.PaymentMethodMobileMoney:
		txnID := "MM-" + uuid.NewString()
		order.MobileMoneyTxnID = &txnID
	}

	created, err := cs.orders.CreateOrder(ctx, order)
	if err != nil {
		if errors.Is(err, models.ErrConflictData) {
			// lost an idempotency race to a concurrent submission
			if existing, lookupErr := cs.orders.GetOrderByIdempotencyKey(ctx, key); lookupErr == nil {
				return nil, &DuplicateCheckoutError{OrderID: existing.ID, OrderNumber: existing.Number}
			}
		}
		return nil, err
	}

	gw, err := cs.gateways.For(req.Method)
	if err != nil {
		cs.compensate(ctx, created.ID)
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()

	result, err := gw.Initialize(initCtx, &payment.InitRequest{
		Order:               created,
		SuccessURL:          cs.baseURL + "/checkout/success?order=" + created.Number,
		CancelURL:           cs.baseURL + "/checkout/cancel?order=" + created.Number,
		MobileMoneyProvider: req.MobileMoneyProvider,
		MobileMoneyPhone:    req.MobileMoneyPhone,
	})
	if err != nil {
		cs.compensate(ctx, created.ID)
		return nil, err
	}

	if req.Method == models.PaymentMethodStripe {
		// without the session id the order can never be reconciled: the
		// webhook lookup misses and the sweeper has no reference to verify.
		// The customer has not been redirected yet, so roll back and fail.
		if err := cs.orders.SetStripeSession(ctx, created.ID, result.ProviderRef); err != nil {
			logger.Log.Error("attach stripe session",
				zap.String("order", created.Number), zap.Error(err))
			cs.compensate(ctx, created.ID)
			return nil, err
		}
	}

	resp := CheckoutResponse{
		OrderID:     created.ID,
		OrderNumber: created.Number,
		RedirectURL: result.RedirectURL,
		AccessCode:  result.AccessCode,
		Reference:   result.ProviderRef,
	}
	if req.Method == models.PaymentMethodMobileMoney {
		resp.TransactionID = *created.MobileMoneyTxnID
		resp.Message = "order accepted, payment will be confirmed via webhook"
	}

	return &resp, nil
}

// compensate deletes the just-created order after a failed payment
// initialization so no unpayable PENDING order is left behind.
func (cs *CheckoutService) compensate(ctx context.Context, id uuid.UUID) {
	if err := cs.orders.DeleteOrder(ctx, id); err != nil {
		logger.Log.Error("compensating order delete failed",
			zap.String("order_id", id.String()), zap.Error(err))
	}
}

func (cs *CheckoutService) resolvePromo(ctx context.Context, code string, subtotal decimal.Decimal) (*models.PromoCode, decimal.Decimal, error) {
	if code == "" {
		return nil, decimal.Zero, nil
	}

	promo, err := cs.promos.GetPromoByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, models.ErrDataNotFound) {
			return nil, decimal.Zero, &cart.ValidationError{Lines: []cart.LineError{{Reason: "invalid promo code"}}}
		}
		return nil, decimal.Zero, err
	}
	if promo.Exhausted() {
		return nil, decimal.Zero, &cart.ValidationError{Lines: []cart.LineError{{Reason: "promo code usage limit reached"}}}
	}

	return promo, promo.DiscountFor(subtotal), nil
}

func validateContact(req *CheckoutRequest) error {
	var lines []cart.LineError

	if _, err := mail.ParseAddress(req.Email); err != nil {
		lines = append(lines, cart.LineError{Reason: "invalid email address"})
	}
	if req.Address.FullName == "" || req.Address.Line1 == "" || req.Address.City == "" || req.Address.Country == "" {
		lines = append(lines, cart.LineError{Reason: "incomplete shipping address"})
	}
	if req.Method == models.PaymentMethodMobileMoney && (req.MobileMoneyPhone == "" || req.MobileMoneyProvider == "") {
		lines = append(lines, cart.LineError{Reason: "mobile money provider and phone are required"})
	}

	if len(lines) > 0 {
		return &cart.ValidationError{Lines: lines}
	}
	return nil
}

const orderNumberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateOrderNumber returns a human-readable unique order number in the
// form SOG-<base36 millis>-<4 random base36 chars>.
func GenerateOrderNumber() string {
	buf := make([]byte, 4)
	rand.Read(buf)
	suffix := make([]byte, 4)
	for i, b := range buf {
		suffix[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	ts := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
	return fmt.Sprintf("%s-%s-%s", orderNumberPrefix, ts, suffix)
}

// deriveIdempotencyKey hashes the stable request content into a replay token:
// a double-click or network retry within the time bucket lands on the same
// key even though the client sent none.
func deriveIdempotencyKey(items []cart.Item, email string, now time.Time) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%s:%d:%s:%s", item.ProductID, item.Quantity, item.Size, item.Color))
	}
	sort.Strings(lines)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d", strings.Join(lines, "|"), email, now.Unix()/60)
	return hex.EncodeToString(h.Sum(nil))
}
