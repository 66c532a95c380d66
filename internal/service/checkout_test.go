package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sogshop/storefront/internal/cart"
	"github.com/sogshop/storefront/internal/models"
	"github.com/sogshop/storefront/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCheckoutStore struct {
	byKey     map[string]*models.Order
	created   *models.Order
	conflict   *models.Order
	createErr  error
	sessionErr error
	deleted    []uuid.UUID
	sessions   map[uuid.UUID]string
}

func newMockCheckoutStore() *mockCheckoutStore {
	return &mockCheckoutStore{
		byKey:    map[string]*models.Order{},
		sessions: map[uuid.UUID]string{},
	}
}

func (m *mockCheckoutStore) CreateOrder(_ context.Context, order *models.Order) (*models.Order, error) {
	if m.conflict != nil {
		// a concurrent submission with the same key committed first
		m.byKey[order.IdempotencyKey] = m.conflict
		return nil, models.ErrConflictData
	}
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = order
	m.byKey[order.IdempotencyKey] = order
	return order, nil
}

func (m *mockCheckoutStore) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	if order, ok := m.byKey[key]; ok {
		return order, nil
	}
	return nil, models.ErrDataNotFound
}

func (m *mockCheckoutStore) SetStripeSession(_ context.Context, id uuid.UUID, sessionID string) error {
	if m.sessionErr != nil {
		return m.sessionErr
	}
	m.sessions[id] = sessionID
	return nil
}

func (m *mockCheckoutStore) DeleteOrder(_ context.Context, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	return nil
}

type mockPromoStore struct {
	promos map[string]*models.PromoCode
}

func (m *mockPromoStore) GetPromoByCode(_ context.Context, code string) (*models.PromoCode, error) {
	if promo, ok := m.promos[code]; ok {
		return promo, nil
	}
	return nil, models.ErrDataNotFound
}

type mockGateway struct {
	method  models.PaymentMethod
	result  *payment.InitResult
	initErr error

	lastInit *payment.InitRequest
}

func (m *mockGateway) Method() models.PaymentMethod { return m.method }

func (m *mockGateway) Initialize(_ context.Context, req *payment.InitRequest) (*payment.InitResult, error) {
	m.lastInit = req
	if m.initErr != nil {
		return nil, m.initErr
	}
	return m.result, nil
}

func (m *mockGateway) Verify(_ context.Context, _ string) (*payment.VerifyResult, error) {
	return nil, errors.New("not implemented")
}

func catalogWith(products ...*models.Product) cart.CatalogStore {
	byID := map[string]*models.Product{}
	for _, p := range products {
		byID[p.ID] = p
	}
	return catalogFunc(func(id string) (*models.Product, error) {
		if p, ok := byID[id]; ok {
			return p, nil
		}
		return nil, models.ErrDataNotFound
	})
}

type catalogFunc func(id string) (*models.Product, error)

func (f catalogFunc) GetProductByID(_ context.Context, id string) (*models.Product, error) {
	return f(id)
}

func validRequest(method models.PaymentMethod) *CheckoutRequest {
	return &CheckoutRequest{
		Method: method,
		Items:  []cart.Item{{ProductID: "p1", Quantity: 2}},
		Email:  "customer@example.com",
		Address: models.Address{
			FullName: "Ada Mensah",
			Line1:    "12 Ring Road",
			City:     "Accra",
			Country:  "GH",
		},
		DeliveryMethod: "standard",
		IdempotencyKey: "key-1",
	}
}

func newCheckoutService(store *mockCheckoutStore, promos *mockPromoStore, gw *mockGateway) *CheckoutService {
	validator := cart.NewValidator(catalogWith(
		&models.Product{ID: "p1", Name: "Tee", Price: decimal.RequireFromString("50.00"), InStock: true},
	))
	if promos == nil {
		promos = &mockPromoStore{}
	}
	return NewCheckoutService(store, promos, validator, payment.NewRegistry(gw), "https://shop.example.com")
}

func TestCheckoutStripeHappyPath(t *testing.T) {
	store := newMockCheckoutStore()
	gw := &mockGateway{
		method: models.PaymentMethodStripe,
		result: &payment.InitResult{RedirectURL: "https://stripe.test/pay", ProviderRef: "cs_test_1"},
	}
	svc := newCheckoutService(store, nil, gw)

	resp, err := svc.Checkout(context.Background(), validRequest(models.PaymentMethodStripe))
	require.NoError(t, err)

	require.NotNil(t, store.created)
	assert.Equal(t, models.OrderStatusPending, store.created.Status)
	assert.Equal(t, models.PaymentStatusPending, store.created.PaymentStatus)
	assert.True(t, store.created.Subtotal.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, store.created.TotalAmount.Equal(decimal.RequireFromString("110.00")),
		"total got %s", store.created.TotalAmount)

	// the gateway saw the server-derived amount, 11000 minor units
	require.NotNil(t, gw.lastInit)
	assert.EqualValues(t, 11000, payment.MinorUnits(gw.lastInit.Order.TotalAmount))
	assert.True(t, strings.HasPrefix(gw.lastInit.SuccessURL, "https://shop.example.com/checkout/success"))

	// the session id is attached after initialization
	assert.Equal(t, "cs_test_1", store.sessions[store.created.ID])

	assert.Equal(t, store.created.Number, resp.OrderNumber)
	assert.Equal(t, "https://stripe.test/pay", resp.RedirectURL)
	assert.Empty(t, store.deleted)
}

func TestCheckoutPaystackReferenceIsOrderNumber(t *testing.T) {
	store := newMockCheckoutStore()
	gw := &mockGateway{
		method: models.PaymentMethodPaystack,
		result: &payment.InitResult{RedirectURL: "https://paystack.test/pay", AccessCode: "ac_1", ProviderRef: "ref"},
	}
	svc := newCheckoutService(store, nil, gw)

	_, err := svc.Checkout(context.Background(), validRequest(models.PaymentMethodPaystack))
	require.NoError(t, err)

	require.NotNil(t, store.created.PaystackReference)
	assert.Equal(t, store.created.Number, *store.created.PaystackReference,
		"paystack reference must be assigned before the provider call")
}

func TestCheckoutMobileMoney(t *testing.T) {
	store := newMockCheckoutStore()
	gw := &mockGateway{method: models.PaymentMethodMobileMoney, result: &payment.InitResult{}}
	svc := newCheckoutService(store, nil, gw)

	req := validRequest(models.PaymentMethodMobileMoney)
	req.MobileMoneyProvider = "mtn"
	req.MobileMoneyPhone = "+233201234567"

	resp, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, store.created.MobileMoneyTxnID)
	assert.True(t, strings.HasPrefix(*store.created.MobileMoneyTxnID, "MM-"))
	assert.Equal(t, *store.created.MobileMoneyTxnID, resp.TransactionID)
	assert.NotEmpty(t, resp.Message)

	// the order stays pending until the webhook settles it
	assert.Equal(t, models.PaymentStatusPending, store.created.PaymentStatus)
}

func TestCheckoutMobileMoneyRequiresProviderAndPhone(t *testing.T) {
	store := newMockCheckoutStore()
	gw := &mockGateway{method: models.PaymentMethodMobileMoney, result: &payment.InitResult{}}
	svc := newCheckoutService(store, nil, gw)

	_, err := svc.Checkout(context.Background(), validRequest(models.PaymentMethodMobileMoney))

	var validationErr *cart.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Nil(t, store.created)
}

func TestCheckoutDuplicateSubmission(t *testing.T) {
	store := newMockCheckoutStore()
	existing := &models.Order{ID: uuid.New(), Number: "SOG-OLD-0001", IdempotencyKey: "key-1"}
	store.byKey["key-1"] = existing

	gw := &mockGateway{method: models.PaymentMethodStripe, result: &payment.InitResult{}}
	svc := newCheckoutService(store, nil, gw)

	_, err := svc.Checkout(context.Background(), validRequest(models.PaymentMethodStripe))

	var dup *DuplicateCheckoutError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, existing.ID, dup.OrderID)
	assert.Equal(t, "SOG-OLD-0001", dup.OrderNumber)
	assert.Nil(t, store.created, "no second order may be created")
	assert.Nil(t, gw.lastInit, "no second payment session may be initialized")
}

func TestCheckoutIdempotencyRaceOnInsert(t *testing.T) {
	store := newMockCheckoutStore()
	existing := &models.Order{ID: uuid.New(), Number: "SOG-RACE-0001"}
	// the key is free at lookup time but taken by the time the insert runs
	store.conflict = existing

	gw := &mockGateway{method: models.PaymentMethodStripe, result: &payment.InitResult{}}
	svc := newCheckoutService(store, nil, gw)

	_, err := svc.Checkout(context.Background(), validRequest(models.PaymentMethodStripe))

	var dup *DuplicateCheckoutError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, existing.ID, dup.OrderID)
	assert.Nil(t, gw.lastInit, "the losing submission must not open a payment session")
}

func TestCheckoutProviderFailureDeletesOrder(t *testing.T) {
	store := newMockCheckoutStore()
	gw := &mockGateway{
		method:  models.PaymentMethodStripe,
		initErr: &payment.ProviderError{Provider: "stripe", Message: "card network unreachable"},
	}
	svc := newCheckoutService(store, nil, gw)

	_, err := svc.Checkout(context.Background(), validRequest(models.PaymentMethodStripe))

	var providerErr *payment.ProviderError
	require.ErrorAs(t, err, &providerErr)

	require.NotNil(t, store.created)
	require.Len(t, store.deleted, 1)
	assert.Equal(t, store.created.ID, store.deleted[0], "failed initialization must roll the order back")
}

func TestCheckoutStripeSessionAttachFailureDeletesOrder(t *testing.T) {
	store := newMockCheckoutStore()
	store.sessionErr = errors.New("connection reset")
	gw := &mockGateway{
		method: models.PaymentMethodStripe,
		result: &payment.InitResult{RedirectURL: "https://stripe.test/pay", ProviderRef: "cs_test_1"},
	}
	svc := newCheckoutService(store, nil, gw)

	// an order without its session id can never be reconciled, so the
	// customer must get an error instead of the redirect URL
	resp, err := svc.Checkout(context.Background(), validRequest(models.PaymentMethodStripe))
	require.Error(t, err)
	assert.Nil(t, resp)

	require.NotNil(t, store.created)
	require.Len(t, store.deleted, 1)
	assert.Equal(t, store.created.ID, store.deleted[0])
	assert.Empty(t, store.sessions)
}

func TestCheckoutAppliesPromo(t *testing.T) {
	store := newMockCheckoutStore()
	promos := &mockPromoStore{promos: map[string]*models.PromoCode{
		"SAVE10": {Code: "SAVE10", DiscountType: models.DiscountTypePercentage, DiscountValue: decimal.NewFromInt(10)},
	}}
	gw := &mockGateway{method: models.PaymentMethodStripe, result: &payment.InitResult{ProviderRef: "cs_1"}}
	svc := newCheckoutService(store, promos, gw)

	req := validRequest(models.PaymentMethodStripe)
	req.PromoCode = "save10" // promo lookup is case-insensitive

	_, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, store.created.DiscountAmount.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, store.created.TotalAmount.Equal(decimal.RequireFromString("100.00")),
		"total got %s", store.created.TotalAmount)
	require.NotNil(t, store.created.PromoCode)
	assert.Equal(t, "SAVE10", *store.created.PromoCode)
}

func TestCheckoutRejectsBadPromoAndContact(t *testing.T) {
	limit := 1
	promos := &mockPromoStore{promos: map[string]*models.PromoCode{
		"SPENT": {Code: "SPENT", DiscountType: models.DiscountTypeFixed, DiscountValue: decimal.NewFromInt(5), UsedCount: 1, UsageLimit: &limit},
	}}

	tests := []struct {
		name   string
		mutate func(req *CheckoutRequest)
	}{
		{name: "unknown promo", mutate: func(req *CheckoutRequest) { req.PromoCode = "NOPE" }},
		{name: "exhausted promo", mutate: func(req *CheckoutRequest) { req.PromoCode = "SPENT" }},
		{name: "bad email", mutate: func(req *CheckoutRequest) { req.Email = "not-an-email" }},
		{name: "missing address", mutate: func(req *CheckoutRequest) { req.Address.City = "" }},
		{name: "unknown delivery method", mutate: func(req *CheckoutRequest) { req.DeliveryMethod = "drone" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockCheckoutStore()
			svc := newCheckoutService(store, promos, &mockGateway{method: models.PaymentMethodStripe, result: &payment.InitResult{}})

			req := validRequest(models.PaymentMethodStripe)
			tt.mutate(req)

			_, err := svc.Checkout(context.Background(), req)

			var validationErr *cart.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Nil(t, store.created)
		})
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc := newCheckoutService(newMockCheckoutStore(), nil, &mockGateway{method: models.PaymentMethodStripe})

	req := validRequest(models.PaymentMethodStripe)
	req.Items = nil

	_, err := svc.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrEmptyCart)
}

func TestDeriveIdempotencyKey(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 30, 5, 0, time.UTC)
	items := []cart.Item{
		{ProductID: "p2", Quantity: 1, Size: "L"},
		{ProductID: "p1", Quantity: 2},
	}
	reordered := []cart.Item{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1, Size: "L"},
	}

	key := deriveIdempotencyKey(items, "a@b.com", now)
	assert.Equal(t, key, deriveIdempotencyKey(reordered, "a@b.com", now),
		"line order must not change the key")
	assert.Equal(t, key, deriveIdempotencyKey(items, "a@b.com", now.Add(30*time.Second)),
		"same minute bucket must yield the same key")

	assert.NotEqual(t, key, deriveIdempotencyKey(items, "a@b.com", now.Add(2*time.Minute)))
	assert.NotEqual(t, key, deriveIdempotencyKey(items, "other@b.com", now))
}

func TestGenerateOrderNumber(t *testing.T) {
	number := GenerateOrderNumber()
	parts := strings.Split(number, "-")

	require.Len(t, parts, 3)
	assert.Equal(t, "SOG", parts[0])
	assert.Len(t, parts[2], 4)
	assert.Equal(t, strings.ToUpper(number), number)
	assert.NotEqual(t, number, GenerateOrderNumber())
}
