package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderKind distinguishes course-period seat purchases from one-off event tickets.
const (
	OrderKindCoursePeriod = "COURSE_PERIOD"
	OrderKindEvent        = "EVENT"
)

// Order status lifecycle.
const (
	OrderStatusDraft          = "DRAFT"
	OrderStatusPendingPayment = "PENDING_PAYMENT"
	OrderStatusPaid           = "PAID"
	OrderStatusCancelled      = "CANCELLED"
	OrderStatusRefunded       = "REFUNDED"
)

// Order is one purchase transaction owning its registrations and tickets.
// The monetary snapshot is frozen once the order is PAID; total is always
// subtotal - discount + tax.
type Order struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	PurchaserID   uuid.UUID  `json:"purchaser_id"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	OrderNumber   *int64     `json:"order_number,omitempty"` // assigned exactly once, on fulfillment
	SubtotalCents int64      `json:"subtotal_cents"`
	DiscountCents int64      `json:"discount_cents"`
	TaxCents      int64      `json:"tax_cents"`
	TotalCents    int64      `json:"total_cents"`
	Currency      string     `json:"currency"`
	SessionRef    string     `json:"session_ref,omitempty"` // payment provider checkout session
	ChargeRef     string     `json:"charge_ref,omitempty"`  // payment provider charge
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
