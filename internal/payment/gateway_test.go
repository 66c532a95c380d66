package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sogshop/storefront/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder() *models.Order {
	return &models.Order{
		Number:       "SOG-TEST-0001",
		Email:        "customer@example.com",
		Subtotal:     decimal.RequireFromString("100.00"),
		ShippingCost: decimal.RequireFromString("10.00"),
		TotalAmount:  decimal.RequireFromString("110.00"),
		Items: []models.OrderItem{
			{ProductID: "p1", Name: "Tee", UnitPrice: decimal.RequireFromString("50.00"), Quantity: 2},
		},
	}
}

func TestMinorUnits(t *testing.T) {
	assert.EqualValues(t, 11000, MinorUnits(decimal.RequireFromString("110.00")))
	assert.EqualValues(t, 1, MinorUnits(decimal.RequireFromString("0.01")))
	assert.EqualValues(t, 0, MinorUnits(decimal.Zero))
}

func TestRegistryFor(t *testing.T) {
	stripe := NewStripeClient("http://stripe", "sk", "USD")
	registry := NewRegistry(stripe)

	gw, err := registry.For(models.PaymentMethodStripe)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentMethodStripe, gw.Method())

	_, err = registry.For(models.PaymentMethodPaystack)
	assert.ErrorIs(t, err, models.ErrUnknownPaymentMethod)
}

func TestStripeInitialize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)

		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test", user)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.Form.Get("mode"))
		assert.Equal(t, "SOG-TEST-0001", r.Form.Get("client_reference_id"))
		assert.Equal(t, "5000", r.Form.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "2", r.Form.Get("line_items[0][quantity]"))
		assert.Equal(t, "Shipping", r.Form.Get("line_items[1][price_data][product_data][name]"))
		assert.Equal(t, "1000", r.Form.Get("line_items[1][price_data][unit_amount]"))

		json.NewEncoder(w).Encode(map[string]string{
			"id":  "cs_test_1",
			"url": "https://checkout.stripe.com/pay/cs_test_1",
		})
	}))
	defer srv.Close()

	client := NewStripeClient(srv.URL, "sk_test", "USD")
	res, err := client.Initialize(context.Background(), &InitRequest{
		Order:      testOrder(),
		SuccessURL: "https://shop.example.com/success",
		CancelURL:  "https://shop.example.com/cancel",
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_test_1", res.ProviderRef)
	assert.Equal(t, "https://checkout.stripe.com/pay/cs_test_1", res.RedirectURL)
}

func TestStripeInitializeDiscountedOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		// a discounted order is a single aggregate line with the final total
		assert.Equal(t, "Order SOG-TEST-0001", r.Form.Get("line_items[0][price_data][product_data][name]"))
		assert.Equal(t, "10000", r.Form.Get("line_items[0][price_data][unit_amount]"))
		assert.Empty(t, r.Form.Get("line_items[1][quantity]"))

		json.NewEncoder(w).Encode(map[string]string{"id": "cs_test_2", "url": "https://checkout.stripe.com/pay/cs_test_2"})
	}))
	defer srv.Close()

	order := testOrder()
	order.DiscountAmount = decimal.RequireFromString("10.00")
	order.TotalAmount = decimal.RequireFromString("100.00")

	client := NewStripeClient(srv.URL, "sk_test", "USD")
	_, err := client.Initialize(context.Background(), &InitRequest{Order: order})
	require.NoError(t, err)
}

func TestStripeInitializeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "Your card was declined."},
		})
	}))
	defer srv.Close()

	client := NewStripeClient(srv.URL, "sk_test", "USD")
	_, err := client.Initialize(context.Background(), &InitRequest{Order: testOrder()})

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, "stripe", providerErr.Provider)
	assert.Equal(t, "Your card was declined.", providerErr.Message)
}

func TestStripeVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions/cs_test_1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"id":             "cs_test_1",
			"payment_status": "paid",
			"payment_intent": "pi_123",
			"amount_total":   11000,
		})
	}))
	defer srv.Close()

	client := NewStripeClient(srv.URL, "sk_test", "USD")
	res, err := client.Verify(context.Background(), "cs_test_1")
	require.NoError(t, err)

	assert.True(t, res.Succeeded)
	assert.False(t, res.Pending)
	assert.Equal(t, "pi_123", res.ProviderTxnID)
	assert.EqualValues(t, 11000, res.AmountMinor)
}

func TestPaystackInitialize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.EqualValues(t, 11000, payload["amount"])
		assert.Equal(t, "SOG-TEST-0001", payload["reference"])
		assert.Equal(t, "customer@example.com", payload["email"])

		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]string{
				"authorization_url": "https://checkout.paystack.com/abc",
				"access_code":       "ac_1",
				"reference":         "SOG-TEST-0001",
			},
		})
	}))
	defer srv.Close()

	client := NewPaystackClient(srv.URL, "sk_test", "GHS")
	res, err := client.Initialize(context.Background(), &InitRequest{Order: testOrder()})
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.paystack.com/abc", res.RedirectURL)
	assert.Equal(t, "ac_1", res.AccessCode)
	assert.Equal(t, "SOG-TEST-0001", res.ProviderRef)
}

func TestPaystackInitializeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  false,
			"message": "Invalid amount",
		})
	}))
	defer srv.Close()

	client := NewPaystackClient(srv.URL, "sk_test", "GHS")
	_, err := client.Initialize(context.Background(), &InitRequest{Order: testOrder()})

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, "Invalid amount", providerErr.Message)
}

func TestPaystackVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/SOG-TEST-0001", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"status": "success",
				"amount": 11000,
				"id":     4099260516,
			},
		})
	}))
	defer srv.Close()

	client := NewPaystackClient(srv.URL, "sk_test", "GHS")
	res, err := client.Verify(context.Background(), "SOG-TEST-0001")
	require.NoError(t, err)

	assert.True(t, res.Succeeded)
	assert.Equal(t, "4099260516", res.ProviderTxnID)
}

func TestMobileMoneyInitialize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/charges", r.URL.Path)
		assert.Equal(t, "api_key", r.Header.Get("X-Api-Key"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.EqualValues(t, 11000, payload["amount"])
		assert.Equal(t, "MM-abc", payload["external_id"])
		assert.Equal(t, "mtn", payload["provider"])

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "PENDING", "external_id": "MM-abc"})
	}))
	defer srv.Close()

	order := testOrder()
	txnID := "MM-abc"
	order.MobileMoneyTxnID = &txnID

	client := NewMobileMoneyClient(srv.URL, "api_key", "GHS")
	res, err := client.Initialize(context.Background(), &InitRequest{
		Order:               order,
		MobileMoneyProvider: "mtn",
		MobileMoneyPhone:    "+233201234567",
	})
	require.NoError(t, err)

	assert.Equal(t, "MM-abc", res.ProviderRef)
	assert.Empty(t, res.RedirectURL, "mobile money has no redirect")
}

func TestMobileMoneyVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/charges/MM-abc", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"status":      "SUCCESSFUL",
			"external_id": "MM-abc",
			"provider_id": "prov-1",
		})
	}))
	defer srv.Close()

	client := NewMobileMoneyClient(srv.URL, "api_key", "GHS")
	res, err := client.Verify(context.Background(), "MM-abc")
	require.NoError(t, err)

	assert.True(t, res.Succeeded)
	assert.Equal(t, "prov-1", res.ProviderTxnID)
}

func TestMobileMoneyVerifyNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewMobileMoneyClient(srv.URL, "api_key", "GHS")
	_, err := client.Verify(context.Background(), "MM-ghost")
	assert.ErrorIs(t, err, models.ErrDataNotFound)
}
