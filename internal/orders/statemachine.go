// Package orders owns the order monetary state machine, order persistence and
// the per-tenant order-number sequence.
package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/enrollio/backend/internal/models"
)

var (
	// ErrInvalidTransition means a status change outside the legal edge set
	// was requested. This is an integrity violation, never retried silently.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrNotFound means the referenced order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrTotalsMismatch means a snapshot violates total = subtotal - discount + tax.
	ErrTotalsMismatch = errors.New("order totals do not reconcile")
)

// legalTransitions is the full edge set of the order state machine. An order
// is unreachable for cancellation once PAID; refunds only apply to PAID.
var legalTransitions = map[string]map[string]bool{
	models.OrderStatusDraft: {
		models.OrderStatusPendingPayment: true,
		models.OrderStatusCancelled:      true,
	},
	models.OrderStatusPendingPayment: {
		models.OrderStatusPaid:      true,
		models.OrderStatusCancelled: true,
	},
	models.OrderStatusPaid: {
		models.OrderStatusRefunded: true,
	},
}

// CanTransition reports whether from -> to is a legal order status change.
func CanTransition(from, to string) bool {
	return legalTransitions[from][to]
}

// Transition applies a status change to the order in memory, enforcing the
// legal edge set. Transitioning to PAID stamps PaidAt; the monetary snapshot
// is frozen from that point and never recomputed.
func Transition(o *models.Order, to string, now time.Time) error {
	if o.Status == to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = now
	if to == models.OrderStatusPaid {
		t := now
		o.PaidAt = &t
	}
	return nil
}

// ValidateTotals checks the snapshot invariant before it is persisted.
func ValidateTotals(o *models.Order) error {
	if o.TotalCents != o.SubtotalCents-o.DiscountCents+o.TaxCents {
		return fmt.Errorf("%w: order %s", ErrTotalsMismatch, o.ID)
	}
	return nil
}
