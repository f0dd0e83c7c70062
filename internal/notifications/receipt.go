// Package notifications hands fulfilled orders to the rendering and messaging
// collaborators. Nothing here can roll back a fulfillment: every failure
// degrades to "fulfilled but undocumented" and is logged.
package notifications

import (
	"time"

	"github.com/google/uuid"

	"github.com/enrollio/backend/internal/billing"
	"github.com/enrollio/backend/internal/models"
)

// Seller is the tenant's legal identity as printed on receipts.
type Seller struct {
	Name         string `json:"name"`
	LegalName    string `json:"legal_name"`
	VATNumber    string `json:"vat_number"`
	LegalAddress string `json:"legal_address"`
	Country      string `json:"country"`
}

// Transaction identifies the settled payment.
type Transaction struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber int64     `json:"order_number"`
	SessionRef  string    `json:"session_ref"`
	ChargeRef   string    `json:"charge_ref,omitempty"`
	PaidAt      time.Time `json:"paid_at"`
}

// TicketRef is the issued-ticket view a renderer needs.
type TicketRef struct {
	TicketID       uuid.UUID `json:"ticket_id"`
	QRToken        string    `json:"qr_token"`
	SequenceNumber int64     `json:"sequence_number"`
}

// Receipt is the fully-resolved "ticket & receipt" model handed to the
// external document renderer. It is plain data; no rendering happens here.
type Receipt struct {
	Seller      Seller                 `json:"seller"`
	PurchaserID uuid.UUID              `json:"purchaser_id"`
	Transaction Transaction            `json:"transaction"`
	LineItems   []models.OrderLineItem `json:"line_items"`
	Totals      billing.Totals         `json:"totals"`
	Tickets     []TicketRef            `json:"tickets"`
}

// BuildReceipt assembles the receipt model for a paid order.
func BuildReceipt(tenant *models.Tenant, order *models.Order, items []models.OrderLineItem, tickets []TicketRef) Receipt {
	lines := make([]billing.LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, billing.LineItem{
			Description:        it.Description,
			UnitPriceCents:     it.UnitPriceCents,
			Quantity:           it.Quantity,
			DiscountCents:      it.DiscountCents,
			VATRateBasisPoints: it.VATRateBasisPoints,
		})
	}
	totals := billing.Calculate(lines, order.Currency)

	var orderNumber int64
	if order.OrderNumber != nil {
		orderNumber = *order.OrderNumber
	}
	var paidAt time.Time
	if order.PaidAt != nil {
		paidAt = *order.PaidAt
	}

	return Receipt{
		Seller: Seller{
			Name:         tenant.Name,
			LegalName:    tenant.LegalName,
			VATNumber:    tenant.VATNumber,
			LegalAddress: tenant.LegalAddress,
			Country:      tenant.Country,
		},
		PurchaserID: order.PurchaserID,
		Transaction: Transaction{
			OrderID:     order.ID,
			OrderNumber: orderNumber,
			SessionRef:  order.SessionRef,
			ChargeRef:   order.ChargeRef,
			PaidAt:      paidAt,
		},
		LineItems: items,
		Totals:    totals,
		Tickets:   tickets,
	}
}
