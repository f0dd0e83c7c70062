package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is a selling organization. Its legal fields go on receipts.
type Tenant struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	LegalName    string    `json:"legal_name"`
	VATNumber    string    `json:"vat_number"`
	LegalAddress string    `json:"legal_address"`
	Country      string    `json:"country"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
