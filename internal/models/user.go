package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered customer account.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// TokenPayload is the verified identity carried by an auth token.
type TokenPayload struct {
	UserID uuid.UUID
	Email  string
}
