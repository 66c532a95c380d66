package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/sogshop/storefront/internal/models"
)

const mobileMoneyClientTimeout = 10 * time.Second

// MobileMoneyClient requests a direct debit from a mobile money aggregator.
// There is no redirect and no synchronous confirmation: the charge settles
// only through the aggregator webhook or a later Verify call.
type MobileMoneyClient struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	currency string
}

// NewMobileMoneyClient creates new MobileMoneyClient instance
func NewMobileMoneyClient(baseURL, apiKey, currency string) *MobileMoneyClient {
	return &MobileMoneyClient{
		client: &http.Client{
			Timeout: mobileMoneyClientTimeout,
		},
		baseURL:  baseURL,
		apiKey:   apiKey,
		currency: currency,
	}
}

func (c *MobileMoneyClient) Method() models.PaymentMethod {
	return models.PaymentMethodMobileMoney
}

type mobileMoneyChargeRequest struct {
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Phone      string `json:"phone"`
	Provider   string `json:"provider"`
	ExternalID string `json:"external_id"`
}

type mobileMoneyCharge struct {
	Status     string `json:"status"`
	ExternalID string `json:"external_id"`
	ProviderID string `json:"provider_id"`
	Message    string `json:"message"`
}

// Initialize submits the debit request keyed by the locally generated
// transaction id already attached to the order.
func (c *MobileMoneyClient) Initialize(ctx context.Context, req *InitRequest) (*InitResult, error) {
	order := req.Order

	payload := mobileMoneyChargeRequest{
		Amount:     MinorUnits(order.TotalAmount),
		Currency:   c.currency,
		Phone:      req.MobileMoneyPhone,
		Provider:   req.MobileMoneyProvider,
		ExternalID: *order.MobileMoneyTxnID,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/charges", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("X-Api-Key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		charge := mobileMoneyCharge{}
		if err := json.NewDecoder(resp.Body).Decode(&charge); err != nil || charge.Message == "" {
			return nil, &ProviderError{Provider: "mobile-money", Message: "charge could not be requested"}
		}
		return nil, &ProviderError{Provider: "mobile-money", Message: charge.Message}
	}

	return &InitResult{ProviderRef: *order.MobileMoneyTxnID}, nil
}

// Verify fetches the charge state for a transaction id.
func (c *MobileMoneyClient) Verify(ctx context.Context, txnID string) (*VerifyResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/charges/"+url.PathEscape(txnID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, models.ErrDataNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: "mobile-money", Message: "charge lookup failed"}
	}

	charge := mobileMoneyCharge{}
	if err := json.NewDecoder(resp.Body).Decode(&charge); err != nil {
		return nil, err
	}

	return &VerifyResult{
		Succeeded:     charge.Status == "SUCCESSFUL",
		Pending:       charge.Status == "PENDING",
		Status:        charge.Status,
		ProviderTxnID: charge.ProviderID,
	}, nil
}
