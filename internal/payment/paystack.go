package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sogshop/storefront/internal/models"
)

const paystackClientTimeout = 10 * time.Second

// PaystackClient initializes card and mobile money transactions through the
// Paystack hosted gateway. The order number doubles as the transaction
// reference so support staff can cross-reference by eye.
type PaystackClient struct {
	client    *http.Client
	baseURL   string
	secretKey string
	currency  string
}

// NewPaystackClient creates new PaystackClient instance
func NewPaystackClient(baseURL, secretKey, currency string) *PaystackClient {
	return &PaystackClient{
		client: &http.Client{
			Timeout: paystackClientTimeout,
		},
		baseURL:   baseURL,
		secretKey: secretKey,
		currency:  currency,
	}
}

func (c *PaystackClient) Method() models.PaymentMethod {
	return models.PaymentMethodPaystack
}

type paystackCustomField struct {
	DisplayName  string `json:"display_name"`
	VariableName string `json:"variable_name"`
	Value        string `json:"value"`
}

type paystackInitRequest struct {
	Amount    int64  `json:"amount"`
	Email     string `json:"email"`
	Reference string `json:"reference"`
	Currency  string `json:"currency"`
	Metadata  struct {
		CustomFields []paystackCustomField `json:"custom_fields,omitempty"`
	} `json:"metadata"`
}

type paystackResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
		Status           string `json:"status"`
		Amount           int64  `json:"amount"`
		ID               int64  `json:"id"`
	} `json:"data"`
}

// Initialize starts a transaction keyed by amount in minor units, email and
// the order number as reference. Mobile money details travel as custom fields.
func (c *PaystackClient) Initialize(ctx context.Context, req *InitRequest) (*InitResult, error) {
	order := req.Order

	payload := paystackInitRequest{
		Amount:    MinorUnits(order.TotalAmount),
		Email:     order.Email,
		Reference: order.Number,
		Currency:  c.currency,
	}
	if req.MobileMoneyProvider != "" {
		payload.Metadata.CustomFields = append(payload.Metadata.CustomFields,
			paystackCustomField{DisplayName: "Mobile Money Provider", VariableName: "mobile_money_provider", Value: req.MobileMoneyProvider},
			paystackCustomField{DisplayName: "Mobile Money Phone", VariableName: "mobile_money_phone", Value: req.MobileMoneyPhone},
		)
	}

	resp, err := c.do(ctx, http.MethodPost, "/transaction/initialize", &payload)
	if err != nil {
		return nil, err
	}

	return &InitResult{
		RedirectURL: resp.Data.AuthorizationURL,
		AccessCode:  resp.Data.AccessCode,
		ProviderRef: resp.Data.Reference,
	}, nil
}

// Verify fetches the authoritative transaction state for a reference.
func (c *PaystackClient) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	resp, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}

	status := resp.Data.Status
	res := VerifyResult{
		Succeeded:   status == "success",
		Pending:     status == "pending" || status == "ongoing",
		Status:      status,
		AmountMinor: resp.Data.Amount,
	}
	if resp.Data.ID != 0 {
		res.ProviderTxnID = strconv.FormatInt(resp.Data.ID, 10)
	}
	return &res, nil
}

func (c *PaystackClient) do(ctx context.Context, method, path string, payload any) (*paystackResponse, error) {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(req)
	if httpResp != nil {
		defer httpResp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	resp := paystackResponse{}
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, &ProviderError{Provider: "paystack", Message: "unreadable provider response"}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 || !resp.Status {
		msg := resp.Message
		if msg == "" {
			msg = "transaction could not be initialized"
		}
		return nil, &ProviderError{Provider: "paystack", Message: msg}
	}

	return &resp, nil
}
