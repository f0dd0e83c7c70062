package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enrollio/backend/internal/billing"
	"github.com/enrollio/backend/internal/catalog"
	"github.com/enrollio/backend/internal/clock"
	"github.com/enrollio/backend/internal/models"
)

// Pricer resolves an item to its sales view. *catalog.Repository satisfies it.
type Pricer interface {
	Pricing(ctx context.Context, item models.ItemRef) (*catalog.Pricing, error)
}

// Factory creates the PENDING_PAYMENT order + registration behind an accepted
// waitlist offer.
type Factory struct {
	repo   *Repository
	pricer Pricer
	clock  clock.Clock
	logger *zap.Logger
}

// NewFactory creates an order factory.
func NewFactory(repo *Repository, pricer Pricer, clk clock.Clock, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{repo: repo, pricer: pricer, clock: clk, logger: logger}
}

// CreatePendingOrder creates a one-line order for the item, already submitted
// (PENDING_PAYMENT, totals frozen), plus the holder's registration.
func (f *Factory) CreatePendingOrder(ctx context.Context, item models.ItemRef, holderID uuid.UUID) (uuid.UUID, error) {
	pricing, err := f.pricer.Pricing(ctx, item)
	if err != nil {
		return uuid.Nil, fmt.Errorf("price item %s: %w", item.ItemID, err)
	}

	line := billing.LineItem{
		Description:        pricing.Description,
		UnitPriceCents:     pricing.PriceCents,
		Quantity:           1,
		VATRateBasisPoints: pricing.VATRateBasisPoints,
	}
	totals := billing.Calculate([]billing.LineItem{line}, pricing.Currency)

	kind := models.OrderKindCoursePeriod
	if item.Kind == models.ItemKindEvent {
		kind = models.OrderKindEvent
	}
	o := &models.Order{
		TenantID:      item.TenantID,
		PurchaserID:   holderID,
		Kind:          kind,
		SubtotalCents: totals.SubtotalCents,
		DiscountCents: totals.DiscountCents,
		TaxCents:      totals.TaxCents,
		TotalCents:    totals.TotalCents,
		Currency:      totals.Currency,
	}
	items := []models.OrderLineItem{{
		Description:        line.Description,
		UnitPriceCents:     line.UnitPriceCents,
		Quantity:           line.Quantity,
		VATRateBasisPoints: line.VATRateBasisPoints,
	}}
	if err := f.repo.CreateDraft(ctx, o, items); err != nil {
		return uuid.Nil, err
	}

	if err := Transition(o, models.OrderStatusPendingPayment, f.clock.Now()); err != nil {
		return uuid.Nil, err
	}
	if err := f.repo.SnapshotTotals(ctx, o); err != nil {
		return uuid.Nil, err
	}

	switch kind {
	case models.OrderKindCoursePeriod:
		reg := &models.Registration{OrderID: o.ID, HolderID: holderID, TrackID: item.ItemID}
		if err := f.repo.CreateRegistration(ctx, reg); err != nil {
			return uuid.Nil, err
		}
	case models.OrderKindEvent:
		reg := &models.EventRegistration{OrderID: o.ID, HolderID: holderID, EventID: item.ItemID, Quantity: 1}
		if err := f.repo.CreateEventRegistration(ctx, reg); err != nil {
			return uuid.Nil, err
		}
	}

	f.logger.Info("pending order created from waitlist offer",
		zap.String("order_id", o.ID.String()),
		zap.String("item_id", item.ItemID.String()))
	return o.ID, nil
}
