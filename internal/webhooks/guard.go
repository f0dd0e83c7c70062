// Package webhooks receives payment provider events and guarantees the
// fulfillment side effects of each event id run at most once.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/enrollio/backend/internal/clock"
	"github.com/enrollio/backend/internal/models"
)

var (
	// ErrDuplicateEvent is the ledger insert-if-absent outcome when the event
	// id is already claimed.
	ErrDuplicateEvent = errors.New("webhook event already recorded")
	// ErrEventNotFound means no ledger row exists for the event id.
	ErrEventNotFound = errors.New("webhook event not found")
)

// Admission is the guard's verdict for one delivery.
type Admission int

const (
	// Admitted means this delivery claimed the event id and must run the
	// orchestrator, then settle the ledger row.
	Admitted Admission = iota
	// AlreadyProcessed means a previous delivery completed; short-circuit with a
	// success-equivalent answer so the provider stops retrying.
	AlreadyProcessed
	// AlreadyProcessing means a concurrent or failed delivery holds the event
	// id; nothing to do for this delivery.
	AlreadyProcessing
)

// Ledger is the idempotency ledger port. *Repository satisfies it.
type Ledger interface {
	InsertIfAbsent(ctx context.Context, ev *models.WebhookEvent) error
	Get(ctx context.Context, id string) (*models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, lastError string, at time.Time) error
}

// Guard deduplicates inbound payment events. The ledger row doubles as a
// mutual-exclusion token per event id.
type Guard struct {
	ledger Ledger
	clock  clock.Clock
	logger *zap.Logger
}

// NewGuard creates an idempotency guard.
func NewGuard(ledger Ledger, clk clock.Clock, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{ledger: ledger, clock: clk, logger: logger}
}

// Admit claims the event id with an atomic insert-if-absent. A duplicate id
// short-circuits before any side effect: PROCESSED rows answer
// AlreadyProcessed, PROCESSING and FAILED rows answer AlreadyProcessing
// (FAILED rows wait for manual reconciliation, never auto-retry).
func (g *Guard) Admit(ctx context.Context, eventID, eventType string) (Admission, error) {
	ev := &models.WebhookEvent{
		ID:         eventID,
		Type:       eventType,
		Status:     models.WebhookStatusProcessing,
		ReceivedAt: g.clock.Now(),
	}
	err := g.ledger.InsertIfAbsent(ctx, ev)
	if err == nil {
		return Admitted, nil
	}
	if !errors.Is(err, ErrDuplicateEvent) {
		return AlreadyProcessing, fmt.Errorf("admit %s: %w", eventID, err)
	}

	existing, err := g.ledger.Get(ctx, eventID)
	if err != nil {
		// The row existed a moment ago; treat a read miss as a concurrent claim.
		if errors.Is(err, ErrEventNotFound) {
			return AlreadyProcessing, nil
		}
		return AlreadyProcessing, err
	}
	switch existing.Status {
	case models.WebhookStatusProcessed:
		return AlreadyProcessed, nil
	case models.WebhookStatusFailed:
		g.logger.Warn("duplicate delivery of failed event, awaiting reconciliation",
			zap.String("event_id", eventID),
			zap.String("last_error", existing.LastError))
		return AlreadyProcessing, nil
	default:
		return AlreadyProcessing, nil
	}
}

// Settle records the orchestrator outcome on the ledger row. It always runs,
// error or not, so a failed fulfillment is observable instead of stuck in
// PROCESSING.
func (g *Guard) Settle(ctx context.Context, eventID string, runErr error) {
	now := g.clock.Now()
	if runErr == nil {
		if err := g.ledger.MarkProcessed(ctx, eventID, now); err != nil {
			g.logger.Error("mark webhook processed", zap.Error(err), zap.String("event_id", eventID))
		}
		return
	}
	if err := g.ledger.MarkFailed(ctx, eventID, runErr.Error(), now); err != nil {
		g.logger.Error("mark webhook failed", zap.Error(err), zap.String("event_id", eventID))
	}
}
