package webhooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/enrollio/backend/internal/clock"
	"github.com/enrollio/backend/internal/models"
)

type fakeLedger struct {
	rows map[string]*models.WebhookEvent
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: make(map[string]*models.WebhookEvent)}
}

func (f *fakeLedger) InsertIfAbsent(_ context.Context, ev *models.WebhookEvent) error {
	if _, ok := f.rows[ev.ID]; ok {
		return ErrDuplicateEvent
	}
	cp := *ev
	f.rows[ev.ID] = &cp
	return nil
}

func (f *fakeLedger) Get(_ context.Context, id string) (*models.WebhookEvent, error) {
	ev, ok := f.rows[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

func (f *fakeLedger) MarkProcessed(_ context.Context, id string, at time.Time) error {
	ev, ok := f.rows[id]
	if !ok {
		return ErrEventNotFound
	}
	ev.Status = models.WebhookStatusProcessed
	ev.ProcessedAt = &at
	ev.LastError = ""
	return nil
}

func (f *fakeLedger) MarkFailed(_ context.Context, id, lastError string, at time.Time) error {
	ev, ok := f.rows[id]
	if !ok {
		return ErrEventNotFound
	}
	ev.Status = models.WebhookStatusFailed
	ev.ProcessedAt = &at
	ev.LastError = lastError
	return nil
}

func TestGuardAdmit(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("n duplicate deliveries admit exactly once", func(t *testing.T) {
		ledger := newFakeLedger()
		guard := NewGuard(ledger, clock.NewFixed(now), nil)

		executions := 0
		for i := 0; i < 5; i++ {
			admission, err := guard.Admit(context.Background(), "evt_1", "checkout.session.completed")
			if err != nil {
				t.Fatal(err)
			}
			if admission == Admitted {
				executions++
				guard.Settle(context.Background(), "evt_1", nil)
			}
		}
		if executions != 1 {
			t.Fatalf("orchestrator body would run %d times, want exactly 1", executions)
		}
		if ledger.rows["evt_1"].Status != models.WebhookStatusProcessed {
			t.Fatalf("ledger status = %s, want PROCESSED", ledger.rows["evt_1"].Status)
		}
	})

	t.Run("processed events answer already processed", func(t *testing.T) {
		ledger := newFakeLedger()
		guard := NewGuard(ledger, clock.NewFixed(now), nil)

		if a, _ := guard.Admit(context.Background(), "evt_2", "checkout.session.completed"); a != Admitted {
			t.Fatalf("first delivery = %v, want Admitted", a)
		}
		guard.Settle(context.Background(), "evt_2", nil)

		a, err := guard.Admit(context.Background(), "evt_2", "checkout.session.completed")
		if err != nil {
			t.Fatal(err)
		}
		if a != AlreadyProcessed {
			t.Fatalf("redelivery = %v, want AlreadyProcessed", a)
		}
	})

	t.Run("in-flight events answer already processing", func(t *testing.T) {
		ledger := newFakeLedger()
		guard := NewGuard(ledger, clock.NewFixed(now), nil)

		guard.Admit(context.Background(), "evt_3", "checkout.session.completed")
		// No Settle yet: a concurrent delivery sees PROCESSING.
		a, err := guard.Admit(context.Background(), "evt_3", "checkout.session.completed")
		if err != nil {
			t.Fatal(err)
		}
		if a != AlreadyProcessing {
			t.Fatalf("concurrent delivery = %v, want AlreadyProcessing", a)
		}
	})

	t.Run("failed events never auto-retry", func(t *testing.T) {
		ledger := newFakeLedger()
		guard := NewGuard(ledger, clock.NewFixed(now), nil)

		guard.Admit(context.Background(), "evt_4", "checkout.session.completed")
		guard.Settle(context.Background(), "evt_4", errors.New("order not in a fulfillable state"))

		if got := ledger.rows["evt_4"].Status; got != models.WebhookStatusFailed {
			t.Fatalf("ledger status = %s, want FAILED", got)
		}
		if ledger.rows["evt_4"].LastError == "" {
			t.Fatal("last error must be recorded for reconciliation")
		}

		a, err := guard.Admit(context.Background(), "evt_4", "checkout.session.completed")
		if err != nil {
			t.Fatal(err)
		}
		if a == Admitted {
			t.Fatal("failed event must not re-admit")
		}
	})

	t.Run("settle stamps processed_at", func(t *testing.T) {
		ledger := newFakeLedger()
		guard := NewGuard(ledger, clock.NewFixed(now), nil)

		guard.Admit(context.Background(), "evt_5", "payment_intent.succeeded")
		guard.Settle(context.Background(), "evt_5", nil)

		ev := ledger.rows["evt_5"]
		if ev.ProcessedAt == nil || !ev.ProcessedAt.Equal(now) {
			t.Fatalf("processed_at = %v, want %v", ev.ProcessedAt, now)
		}
		if !ev.ReceivedAt.Equal(now) {
			t.Fatalf("received_at = %v", ev.ReceivedAt)
		}
	})
}
