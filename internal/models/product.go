package models

import "github.com/shopspring/decimal"

// Product is the read-only catalog view the checkout validates against.
type Product struct {
	ID      string
	Name    string
	Image   string
	Price   decimal.Decimal
	InStock bool
}
