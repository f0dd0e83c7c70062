package models

import "github.com/google/uuid"

// OrderLineItem is one priced position stored with an order, kept so receipts
// can be rebuilt without re-deriving prices.
type OrderLineItem struct {
	ID                 uuid.UUID `json:"id"`
	OrderID            uuid.UUID `json:"order_id"`
	Description        string    `json:"description"`
	UnitPriceCents     int64     `json:"unit_price_cents"`
	Quantity           int       `json:"quantity"`
	DiscountCents      int64     `json:"discount_cents"`
	VATRateBasisPoints int64     `json:"vat_rate_basis_points"`
}
