package models

import "errors"

var (
	ErrConflictData         = errors.New("data conflicts with existing data")
	ErrDataNotFound         = errors.New("data not found")
	ErrInvalidCredentials   = errors.New("invalid login or password")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrAlreadyProcessed     = errors.New("payment already processed")
	ErrPromoExhausted       = errors.New("promo code usage limit reached")
	ErrInternalError        = errors.New("internal error")
)
