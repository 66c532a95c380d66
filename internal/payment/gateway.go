package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sogshop/storefront/internal/models"
)

// InitRequest carries everything a gateway needs to start a payment session.
// The order already exists in PENDING state before Initialize is called.
type InitRequest struct {
	Order      *models.Order
	SuccessURL string
	CancelURL  string

	// mobile money details, ignored by card gateways
	MobileMoneyProvider string
	MobileMoneyPhone    string
}

// InitResult is the provider session handed back to the client.
type InitResult struct {
	RedirectURL string
	AccessCode  string
	ProviderRef string
}

// VerifyResult is the provider's authoritative view of a payment.
type VerifyResult struct {
	Succeeded bool
	// Pending is set while the provider has not reached a terminal state.
	Pending       bool
	Status        string
	AmountMinor   int64
	ProviderTxnID string
}

// Gateway turns an order into a provider-hosted payment session and verifies
// payments by provider reference. Initialize never marks a payment completed;
// completion is the reconciler's job.
type Gateway interface {
	Method() models.PaymentMethod
	Initialize(ctx context.Context, req *InitRequest) (*InitResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}

// ProviderError is a rejection surfaced by a payment provider. The message is
// safe to return to the client.
type ProviderError struct {
	Provider string
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Registry maps payment methods to their gateways.
type Registry map[models.PaymentMethod]Gateway

// NewRegistry builds a registry from the given gateways.
func NewRegistry(gateways ...Gateway) Registry {
	r := Registry{}
	for _, gw := range gateways {
		r[gw.Method()] = gw
	}
	return r
}

// For returns the gateway for a payment method.
func (r Registry) For(method models.PaymentMethod) (Gateway, error) {
	gw, ok := r[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownPaymentMethod, method)
	}
	return gw, nil
}

// MinorUnits converts a decimal currency amount to the smallest integer unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
