package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fulfillment lifecycle
const (
	OrderStatusPending    = "PENDING"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusShipped    = "SHIPPED"
	OrderStatusDelivered  = "DELIVERED"
	OrderStatusCancelled  = "CANCELLED"
	OrderStatusRefunded   = "REFUNDED"
)

// payment lifecycle, independent of fulfillment
const (
	PaymentStatusPending    = "PENDING"
	PaymentStatusProcessing = "PROCESSING"
	PaymentStatusCompleted  = "COMPLETED"
	PaymentStatusFailed     = "FAILED"
	PaymentStatusRefunded   = "REFUNDED"
)

// PaymentMethod selects the gateway used to collect payment for an order.
type PaymentMethod string

const (
	PaymentMethodStripe      PaymentMethod = "card-stripe"
	PaymentMethodPaystack    PaymentMethod = "card-paystack"
	PaymentMethodMobileMoney PaymentMethod = "mobile_money"
)

// ParsePaymentMethod validates a method string from the request path.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentMethodStripe, PaymentMethodPaystack, PaymentMethodMobileMoney:
		return PaymentMethod(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, s)
}

// Order is the order aggregate root.
type Order struct {
	ID             uuid.UUID
	Number         string
	UserID         *uuid.UUID
	Email          string
	Phone          string
	Status         string
	PaymentStatus  string
	PaymentMethod  PaymentMethod
	Subtotal       decimal.Decimal
	ShippingCost   decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal

	// provider correlation ids, exactly one populated per order
	StripeSessionID   *string
	PaystackReference *string
	MobileMoneyTxnID  *string

	// provider payment intent / transaction id attached on completion
	ProviderTxnID *string

	IdempotencyKey    string
	WebhookProcessed  bool
	PromoCode         *string
	ShippingAddressID uuid.UUID

	Items   []OrderItem
	Address *Address

	CreatedAt time.Time
	UpdatedAt time.Time
	PaidAt    *time.Time
}

// ProviderReference returns whichever provider correlation id is populated.
func (o *Order) ProviderReference() string {
	switch {
	case o.StripeSessionID != nil:
		return *o.StripeSessionID
	case o.PaystackReference != nil:
		return *o.PaystackReference
	case o.MobileMoneyTxnID != nil:
		return *o.MobileMoneyTxnID
	}
	return ""
}

// OrderItem is a line item with catalog values snapshotted at creation time,
// so later catalog edits never alter historical orders.
type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID string
	Name      string
	Image     string
	UnitPrice decimal.Decimal
	Quantity  int
	Size      string
	Color     string
}

// OrderTotal computes subtotal + shipping - discount, clamped at zero.
func OrderTotal(subtotal, shipping, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Add(shipping).Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}
