// Package fulfillment converts a paid order into active registrations and
// issued tickets. Every step is idempotent, so a crash-and-retry or a
// duplicate delivery converges on the same end state.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enrollio/backend/internal/clock"
	"github.com/enrollio/backend/internal/models"
	"github.com/enrollio/backend/internal/notifications"
	"github.com/enrollio/backend/internal/orders"
)

// ErrInvalidState means a payment event references an order that is neither
// PENDING_PAYMENT nor already PAID. That is a data-integrity problem which
// must surface to operators, never a retryable failure.
var ErrInvalidState = errors.New("order not in a fulfillable state")

// OrderStore is the order persistence surface. *orders.Repository satisfies it.
type OrderStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetBySessionRef(ctx context.Context, sessionRef string) (*models.Order, error)
	UpdateStatus(ctx context.Context, o *models.Order) error
	NextOrderNumber(ctx context.Context, tenantID uuid.UUID) (int64, error)
	AssignOrderNumber(ctx context.Context, orderID uuid.UUID, n int64) (int64, error)
	ListLineItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error)
	ListRegistrations(ctx context.Context, orderID uuid.UUID) ([]models.Registration, error)
	ListEventRegistrations(ctx context.Context, orderID uuid.UUID) ([]models.EventRegistration, error)
	SetRegistrationStatus(ctx context.Context, id uuid.UUID, status string) error
	SetEventRegistrationStatus(ctx context.Context, id uuid.UUID, status string) error
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// TicketIssuer issues tickets idempotently. *tickets.Issuer satisfies it.
type TicketIssuer interface {
	IssueCourseTicket(ctx context.Context, tenantID, holderID, trackID uuid.UUID) (*models.Ticket, error)
	IssueEventTicket(ctx context.Context, tenantID uuid.UUID, reg models.EventRegistration, unitIndex int) (*models.EventTicket, error)
}

// Collaborator receives the resolved receipt model and transactional
// notifications. Its failures are logged, never propagated.
type Collaborator interface {
	Send(ctx context.Context, template string, recipientID uuid.UUID, vars map[string]string) error
	DeliverReceipt(ctx context.Context, receipt notifications.Receipt) error
}

// Result reports what one fulfillment run produced or confirmed.
type Result struct {
	OrderID       uuid.UUID            `json:"order_id"`
	OrderNumber   int64                `json:"order_number"`
	AlreadyPaid   bool                 `json:"already_paid"`
	CourseTickets []models.Ticket      `json:"course_tickets,omitempty"`
	EventTickets  []models.EventTicket `json:"event_tickets,omitempty"`
}

// Orchestrator is the single entry point that turns confirmed payments into
// inventory state. Only the orchestrator creates tickets.
type Orchestrator struct {
	store        OrderStore
	issuer       TicketIssuer
	collaborator Collaborator
	clock        clock.Clock
	logger       *zap.Logger
}

// NewOrchestrator creates a fulfillment orchestrator.
func NewOrchestrator(store OrderStore, issuer TicketIssuer, collaborator Collaborator, clk clock.Clock, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{store: store, issuer: issuer, collaborator: collaborator, clock: clk, logger: logger}
}

// Fulfill drives a confirmed payment to its end state:
//  1. load the order; an already-PAID order is the fast idempotent path
//  2. assign the permanent order number if unset
//  3. transition PENDING_PAYMENT -> PAID
//  4. activate children and issue tickets, both idempotent
//  5. hand the receipt model to the collaborators (non-fatal)
func (f *Orchestrator) Fulfill(ctx context.Context, orderID uuid.UUID, sessionRef, chargeRef string) (*Result, error) {
	o, err := f.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if o.Status == models.OrderStatusPaid {
		result, err := f.activateAndIssue(ctx, o)
		if err != nil {
			return nil, err
		}
		result.AlreadyPaid = true
		f.logger.Info("order already fulfilled", zap.String("order_id", o.ID.String()))
		return result, nil
	}
	if o.Status != models.OrderStatusPendingPayment {
		return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidState, o.ID, o.Status)
	}

	if o.OrderNumber == nil {
		next, err := f.store.NextOrderNumber(ctx, o.TenantID)
		if err != nil {
			return nil, err
		}
		assigned, err := f.store.AssignOrderNumber(ctx, o.ID, next)
		if err != nil {
			return nil, err
		}
		o.OrderNumber = &assigned
	}

	o.SessionRef = sessionRef
	o.ChargeRef = chargeRef
	if err := orders.Transition(o, models.OrderStatusPaid, f.clock.Now()); err != nil {
		return nil, err
	}
	if err := f.store.UpdateStatus(ctx, o); err != nil {
		return nil, err
	}

	result, err := f.activateAndIssue(ctx, o)
	if err != nil {
		return nil, err
	}

	f.notify(ctx, o, result)
	f.logger.Info("order fulfilled",
		zap.String("order_id", o.ID.String()),
		zap.Int64("order_number", result.OrderNumber),
		zap.Int("course_tickets", len(result.CourseTickets)),
		zap.Int("event_tickets", len(result.EventTickets)))
	return result, nil
}

// activateAndIssue activates every child registration and issues its tickets.
// Re-running it converges: activation is a status upsert and issuance returns
// existing tickets on conflict.
func (f *Orchestrator) activateAndIssue(ctx context.Context, o *models.Order) (*Result, error) {
	result := &Result{OrderID: o.ID}
	if o.OrderNumber != nil {
		result.OrderNumber = *o.OrderNumber
	}

	switch o.Kind {
	case models.OrderKindCoursePeriod:
		regs, err := f.store.ListRegistrations(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		for _, reg := range regs {
			if reg.Status == models.RegistrationStatusCancelled {
				continue
			}
			if reg.Status != models.RegistrationStatusActive {
				if err := f.store.SetRegistrationStatus(ctx, reg.ID, models.RegistrationStatusActive); err != nil {
					return nil, err
				}
			}
			ticket, err := f.issuer.IssueCourseTicket(ctx, o.TenantID, reg.HolderID, reg.TrackID)
			if err != nil {
				return nil, fmt.Errorf("issue course ticket for registration %s: %w", reg.ID, err)
			}
			result.CourseTickets = append(result.CourseTickets, *ticket)
		}
	case models.OrderKindEvent:
		regs, err := f.store.ListEventRegistrations(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		for _, reg := range regs {
			if reg.Status == models.RegistrationStatusCancelled {
				continue
			}
			if reg.Status != models.RegistrationStatusActive {
				if err := f.store.SetEventRegistrationStatus(ctx, reg.ID, models.RegistrationStatusActive); err != nil {
					return nil, err
				}
			}
			for unit := 0; unit < reg.Quantity; unit++ {
				ticket, err := f.issuer.IssueEventTicket(ctx, o.TenantID, reg, unit)
				if err != nil {
					return nil, fmt.Errorf("issue event ticket for registration %s unit %d: %w", reg.ID, unit, err)
				}
				result.EventTickets = append(result.EventTickets, *ticket)
			}
		}
	default:
		return nil, fmt.Errorf("%w: order %s has unknown kind %q", ErrInvalidState, o.ID, o.Kind)
	}
	return result, nil
}

// notify hands the receipt model and the confirmation notification to the
// collaborators. Failures degrade to "fulfilled but undocumented".
func (f *Orchestrator) notify(ctx context.Context, o *models.Order, result *Result) {
	tenant, err := f.store.GetTenant(ctx, o.TenantID)
	if err != nil {
		f.logger.Error("load tenant for receipt", zap.Error(err), zap.String("order_id", o.ID.String()))
		return
	}
	items, err := f.store.ListLineItems(ctx, o.ID)
	if err != nil {
		f.logger.Error("load line items for receipt", zap.Error(err), zap.String("order_id", o.ID.String()))
		return
	}

	refs := make([]notifications.TicketRef, 0, len(result.CourseTickets)+len(result.EventTickets))
	for _, t := range result.CourseTickets {
		refs = append(refs, notifications.TicketRef{TicketID: t.ID, QRToken: t.QRToken, SequenceNumber: t.SequenceNumber})
	}
	for _, t := range result.EventTickets {
		refs = append(refs, notifications.TicketRef{TicketID: t.ID, QRToken: t.QRToken, SequenceNumber: t.SequenceNumber})
	}

	receipt := notifications.BuildReceipt(tenant, o, items, refs)
	if err := f.collaborator.DeliverReceipt(ctx, receipt); err != nil {
		f.logger.Warn("receipt delivery failed", zap.Error(err), zap.String("order_id", o.ID.String()))
	}
	if err := f.collaborator.Send(ctx, "order_paid", o.PurchaserID, map[string]string{
		"order_id":     o.ID.String(),
		"order_number": fmt.Sprintf("%d", result.OrderNumber),
		"total_cents":  fmt.Sprintf("%d", o.TotalCents),
		"currency":     o.Currency,
		"paid_at":      o.PaidAt.Format(time.RFC3339),
	}); err != nil {
		f.logger.Warn("payment notification failed", zap.Error(err), zap.String("order_id", o.ID.String()))
	}
}
