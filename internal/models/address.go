package models

import (
	"time"

	"github.com/google/uuid"
)

// Address is an immutable shipping destination snapshot owned by the order
// that references it. UserID is kept only so a customer can reuse it later.
type Address struct {
	ID         uuid.UUID
	UserID     *uuid.UUID
	FullName   string
	Line1      string
	Line2      string
	City       string
	Region     string
	Country    string
	PostalCode string
	Phone      string
	CreatedAt  time.Time
}
