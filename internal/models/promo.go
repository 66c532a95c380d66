package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// discount type
const (
	DiscountTypePercentage = "PERCENTAGE"
	DiscountTypeFixed      = "FIXED"
)

// PromoCode is a discount code with an atomically maintained usage counter.
type PromoCode struct {
	Code          string
	DiscountType  string
	DiscountValue decimal.Decimal
	UsedCount     int
	UsageLimit    *int
	CreatedAt     time.Time
}

// Exhausted reports whether the usage limit has been reached.
func (p *PromoCode) Exhausted() bool {
	return p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit
}

// DiscountFor returns the discount amount for a subtotal, never exceeding it.
func (p *PromoCode) DiscountFor(subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch p.DiscountType {
	case DiscountTypePercentage:
		d = subtotal.Mul(p.DiscountValue).Div(decimal.NewFromInt(100)).Round(2)
	case DiscountTypeFixed:
		d = p.DiscountValue
	default:
		return decimal.Zero
	}
	if d.GreaterThan(subtotal) {
		return subtotal
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
