package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enrollio/backend/internal/billing"
	"github.com/enrollio/backend/internal/clock"
	"github.com/enrollio/backend/internal/models"
)

// Store is the persistence surface the service needs. *Repository satisfies it.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, o *models.Order) error
	SnapshotTotals(ctx context.Context, o *models.Order) error
	ListLineItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error)
	ListRegistrations(ctx context.Context, orderID uuid.UUID) ([]models.Registration, error)
	ListEventRegistrations(ctx context.Context, orderID uuid.UUID) ([]models.EventRegistration, error)
	CancelChildren(ctx context.Context, orderID uuid.UUID, now time.Time) error
}

// CapacityFreer receives capacity-freeing events (cancellation, refund) and
// drives waitlist promotion. It never owns the order being freed.
type CapacityFreer interface {
	FreeCapacity(ctx context.Context, item models.ItemRef, quantity int) error
}

// Notifier sends a transactional notification; failures never roll back the
// state change that triggered them.
type Notifier interface {
	Send(ctx context.Context, template string, recipientID uuid.UUID, vars map[string]string) error
}

// Service drives order submission, cancellation and refunds.
type Service struct {
	store    Store
	freer    CapacityFreer
	notifier Notifier
	clock    clock.Clock
	logger   *zap.Logger
}

// NewService creates an order service.
func NewService(store Store, freer CapacityFreer, notifier Notifier, clk clock.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, freer: freer, notifier: notifier, clock: clk, logger: logger}
}

// Submit moves a DRAFT order to PENDING_PAYMENT, computing and freezing its
// monetary snapshot from the stored line items.
func (s *Service) Submit(ctx context.Context, orderID uuid.UUID, sessionRef string) (*models.Order, error) {
	o, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListLineItems(ctx, orderID)
	if err != nil {
		return nil, err
	}

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
	totals := billing.Calculate(lines, o.Currency)
	o.SubtotalCents = totals.SubtotalCents
	o.DiscountCents = totals.DiscountCents
	o.TaxCents = totals.TaxCents
	o.TotalCents = totals.TotalCents
	o.SessionRef = sessionRef

	if err := Transition(o, models.OrderStatusPendingPayment, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := ValidateTotals(o); err != nil {
		return nil, err
	}
	if err := s.store.SnapshotTotals(ctx, o); err != nil {
		return nil, err
	}
	s.logger.Info("order submitted",
		zap.String("order_id", o.ID.String()),
		zap.Int64("total_cents", o.TotalCents))
	return o, nil
}

// Cancel cancels a DRAFT or PENDING_PAYMENT order, cascading to its children
// and reporting freed capacity to the waitlist. Unreachable once PAID.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	o, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := Transition(o, models.OrderStatusCancelled, now); err != nil {
		return nil, err
	}
	if err := s.store.UpdateStatus(ctx, o); err != nil {
		return nil, err
	}
	if err := s.store.CancelChildren(ctx, orderID, now); err != nil {
		return nil, fmt.Errorf("cascade cancel: %w", err)
	}
	s.freeOrderCapacity(ctx, o)
	s.logger.Info("order cancelled", zap.String("order_id", o.ID.String()))
	return o, nil
}

// Refund moves a PAID order to REFUNDED and emits a credit-note-eligible
// notification. Capacity freeing is a separate event handed to the waitlist
// manager; the refund itself never touches seat counts.
func (s *Service) Refund(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	o, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := Transition(o, models.OrderStatusRefunded, now); err != nil {
		return nil, err
	}
	if err := s.store.UpdateStatus(ctx, o); err != nil {
		return nil, err
	}

	if err := s.notifier.Send(ctx, "order_refunded", o.PurchaserID, map[string]string{
		"order_id":    o.ID.String(),
		"total_cents": fmt.Sprintf("%d", o.TotalCents),
		"currency":    o.Currency,
	}); err != nil {
		s.logger.Warn("credit note notification failed", zap.Error(err), zap.String("order_id", o.ID.String()))
	}

	s.freeOrderCapacity(ctx, o)
	s.logger.Info("order refunded", zap.String("order_id", o.ID.String()))
	return o, nil
}

// freeOrderCapacity reports each child registration's seats back to the
// waitlist manager. Promotion failures are logged, never propagated: the
// order state change already happened.
func (s *Service) freeOrderCapacity(ctx context.Context, o *models.Order) {
	switch o.Kind {
	case models.OrderKindCoursePeriod:
		regs, err := s.store.ListRegistrations(ctx, o.ID)
		if err != nil {
			s.logger.Error("list registrations for capacity free", zap.Error(err), zap.String("order_id", o.ID.String()))
			return
		}
		for _, reg := range regs {
			item := models.ItemRef{TenantID: o.TenantID, Kind: models.ItemKindCourseTrack, ItemID: reg.TrackID}
			if err := s.freer.FreeCapacity(ctx, item, 1); err != nil {
				s.logger.Error("free capacity", zap.Error(err), zap.String("track_id", reg.TrackID.String()))
			}
		}
	case models.OrderKindEvent:
		regs, err := s.store.ListEventRegistrations(ctx, o.ID)
		if err != nil {
			s.logger.Error("list event registrations for capacity free", zap.Error(err), zap.String("order_id", o.ID.String()))
			return
		}
		for _, reg := range regs {
			item := models.ItemRef{TenantID: o.TenantID, Kind: models.ItemKindEvent, ItemID: reg.EventID}
			if err := s.freer.FreeCapacity(ctx, item, reg.Quantity); err != nil {
				s.logger.Error("free capacity", zap.Error(err), zap.String("event_id", reg.EventID.String()))
			}
		}
	}
}
