package models

import (
	"time"

	"github.com/google/uuid"
)

// CourseTrack is a sellable seat series in a recurring course period.
type CourseTrack struct {
	ID                 uuid.UUID `json:"id"`
	TenantID           uuid.UUID `json:"tenant_id"`
	Title              string    `json:"title"`
	PriceCents         int64     `json:"price_cents"`
	Currency           string    `json:"currency"`
	VATRateBasisPoints int64     `json:"vat_rate_basis_points"`
	Capacity           int       `json:"capacity"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Event is a sellable one-off event.
type Event struct {
	ID                 uuid.UUID `json:"id"`
	TenantID           uuid.UUID `json:"tenant_id"`
	Title              string    `json:"title"`
	StartsAt           *time.Time `json:"starts_at,omitempty"` // unset while the date is unannounced
	PriceCents         int64     `json:"price_cents"`
	Currency           string    `json:"currency"`
	VATRateBasisPoints int64     `json:"vat_rate_basis_points"`
	Capacity           int       `json:"capacity"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
