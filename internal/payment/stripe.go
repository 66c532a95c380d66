package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sogshop/storefront/internal/models"
)

const stripeClientTimeout = 10 * time.Second

// StripeClient creates hosted checkout sessions via the Stripe HTTP API.
type StripeClient struct {
	client    *http.Client
	baseURL   string
	secretKey string
	currency  string
}

// NewStripeClient creates new StripeClient instance
func NewStripeClient(baseURL, secretKey, currency string) *StripeClient {
	return &StripeClient{
		client: &http.Client{
			Timeout: stripeClientTimeout,
		},
		baseURL:   baseURL,
		secretKey: secretKey,
		currency:  strings.ToLower(currency),
	}
}

func (c *StripeClient) Method() models.PaymentMethod {
	return models.PaymentMethodStripe
}

type stripeSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
	PaymentIntent string `json:"payment_intent"`
	AmountTotal   int64  `json:"amount_total"`
}

type stripeError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Initialize creates a hosted checkout session from the order's item
// snapshots, with shipping as an extra line item when non-zero.
func (c *StripeClient) Initialize(ctx context.Context, req *InitRequest) (*InitResult, error) {
	order := req.Order

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("client_reference_id", order.Number)
	form.Set("customer_email", order.Email)

	// Stripe rejects negative line amounts, so a discounted order collapses to
	// one aggregate line carrying the final total
	if order.DiscountAmount.IsPositive() {
		c.setLineItem(form, 0, "Order "+order.Number, MinorUnits(order.TotalAmount), 1)
	} else {
		i := 0
		for _, item := range order.Items {
			c.setLineItem(form, i, item.Name, MinorUnits(item.UnitPrice), item.Quantity)
			i++
		}
		if order.ShippingCost.IsPositive() {
			c.setLineItem(form, i, "Shipping", MinorUnits(order.ShippingCost), 1)
		}
	}

	session := stripeSession{}
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", strings.NewReader(form.Encode()), &session); err != nil {
		return nil, err
	}

	return &InitResult{
		RedirectURL: session.URL,
		ProviderRef: session.ID,
	}, nil
}

// Verify fetches a checkout session and reports whether it is paid.
func (c *StripeClient) Verify(ctx context.Context, sessionID string) (*VerifyResult, error) {
	session := stripeSession{}
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, &session); err != nil {
		return nil, err
	}

	return &VerifyResult{
		Succeeded:     session.PaymentStatus == "paid",
		Pending:       session.PaymentStatus == "unpaid",
		Status:        session.PaymentStatus,
		AmountMinor:   session.AmountTotal,
		ProviderTxnID: session.PaymentIntent,
	}, nil
}

func (c *StripeClient) setLineItem(form url.Values, idx int, name string, unitAmount int64, qty int) {
	prefix := fmt.Sprintf("line_items[%d]", idx)
	form.Set(prefix+"[price_data][currency]", c.currency)
	form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(unitAmount, 10))
	form.Set(prefix+"[price_data][product_data][name]", name)
	form.Set(prefix+"[quantity]", strconv.Itoa(qty))
}

func (c *StripeClient) do(ctx context.Context, method, path string, body *strings.Reader, out any) error {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.secretKey, "")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		errResp := stripeError{}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Message == "" {
			return &ProviderError{Provider: "stripe", Message: "payment session could not be created"}
		}
		return &ProviderError{Provider: "stripe", Message: errResp.Error.Message}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
