package orders

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/enrollio/backend/internal/models"
)

func TestTransition(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	legal := []struct{ from, to string }{
		{models.OrderStatusDraft, models.OrderStatusPendingPayment},
		{models.OrderStatusDraft, models.OrderStatusCancelled},
		{models.OrderStatusPendingPayment, models.OrderStatusPaid},
		{models.OrderStatusPendingPayment, models.OrderStatusCancelled},
		{models.OrderStatusPaid, models.OrderStatusRefunded},
	}
	for _, tc := range legal {
		t.Run(tc.from+" to "+tc.to, func(t *testing.T) {
			o := &models.Order{ID: uuid.New(), Status: tc.from}
			if err := Transition(o, tc.to, now); err != nil {
				t.Fatalf("expected legal transition, got %v", err)
			}
			if o.Status != tc.to {
				t.Fatalf("status = %s, want %s", o.Status, tc.to)
			}
		})
	}

	illegal := []struct{ from, to string }{
		{models.OrderStatusDraft, models.OrderStatusPaid},
		{models.OrderStatusDraft, models.OrderStatusRefunded},
		{models.OrderStatusPendingPayment, models.OrderStatusDraft},
		{models.OrderStatusPendingPayment, models.OrderStatusRefunded},
		{models.OrderStatusPaid, models.OrderStatusCancelled},
		{models.OrderStatusPaid, models.OrderStatusPendingPayment},
		{models.OrderStatusCancelled, models.OrderStatusPaid},
		{models.OrderStatusCancelled, models.OrderStatusPendingPayment},
		{models.OrderStatusRefunded, models.OrderStatusPaid},
		{models.OrderStatusPaid, models.OrderStatusPaid},
	}
	for _, tc := range illegal {
		t.Run("rejects "+tc.from+" to "+tc.to, func(t *testing.T) {
			o := &models.Order{ID: uuid.New(), Status: tc.from}
			if err := Transition(o, tc.to, now); !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			if o.Status != tc.from {
				t.Fatalf("status mutated to %s on illegal transition", o.Status)
			}
		})
	}

	t.Run("paid stamps paid_at", func(t *testing.T) {
		o := &models.Order{Status: models.OrderStatusPendingPayment}
		if err := Transition(o, models.OrderStatusPaid, now); err != nil {
			t.Fatal(err)
		}
		if o.PaidAt == nil || !o.PaidAt.Equal(now) {
			t.Fatalf("paid_at = %v, want %v", o.PaidAt, now)
		}
	})
}

func TestValidateTotals(t *testing.T) {
	t.Parallel()

	o := &models.Order{SubtotalCents: 213500, DiscountCents: 1500, TaxCents: 43080, TotalCents: 255080}
	if err := ValidateTotals(o); err != nil {
		t.Fatalf("expected valid totals, got %v", err)
	}
	o.TotalCents++
	if err := ValidateTotals(o); !errors.Is(err, ErrTotalsMismatch) {
		t.Fatalf("expected ErrTotalsMismatch, got %v", err)
	}
}
