package webhooks

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enrollio/backend/internal/fulfillment"
	"github.com/enrollio/backend/internal/models"
	"github.com/enrollio/backend/internal/orders"
	"github.com/enrollio/backend/pkg/queue"
	"github.com/enrollio/backend/pkg/response"
)

// Payment-completed event types that trigger fulfillment. Async types arrive
// days after checkout for delayed payment methods.
var fulfillableTypes = map[string]bool{
	"checkout.session.completed":               true,
	"checkout.session.async_payment_succeeded": true,
	"payment_intent.succeeded":                 true,
}

// OrderLookup maps provider refs back to orders.
type OrderLookup interface {
	GetBySessionRef(ctx context.Context, sessionRef string) (*models.Order, error)
}

// Fulfiller runs the fulfillment orchestrator. *fulfillment.Orchestrator
// satisfies it.
type Fulfiller interface {
	Fulfill(ctx context.Context, orderID uuid.UUID, sessionRef, chargeRef string) (*fulfillment.Result, error)
}

// Handler receives payment provider webhooks. Transport signature checks
// happen upstream; this boundary only sees verified plain events.
type Handler struct {
	guard    *Guard
	resolver PayloadResolver
	lookup   OrderLookup
	fulfill  Fulfiller
	queue    *queue.Queue
	logger   *zap.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(guard *Guard, resolver PayloadResolver, lookup OrderLookup, fulfill Fulfiller, q *queue.Queue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{guard: guard, resolver: resolver, lookup: lookup, fulfill: fulfill, queue: q, logger: logger}
}

// HandlePaymentEvent handles POST /webhooks/payments. Duplicate deliveries
// always look successful to the provider; genuine integrity failures are
// settled on the ledger for manual reconciliation instead of being retried
// into a wrong state.
func (h *Handler) HandlePaymentEvent(c *gin.Context) {
	var event PaymentEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		response.BadRequest(c, "invalid payload: "+err.Error())
		return
	}
	if event.ID == "" || event.Type == "" {
		response.BadRequest(c, "event id and type required")
		return
	}
	if !fulfillableTypes[event.Type] {
		response.OK(c, gin.H{"event_id": event.ID, "outcome": "ignored"})
		return
	}

	ctx := c.Request.Context()

	if len(event.Raw) > 0 && h.queue != nil {
		if err := h.queue.EnqueueWebhookArchive(ctx, queue.WebhookArchivePayload{EventID: event.ID, Body: event.Raw}); err != nil {
			h.logger.Warn("archive enqueue failed", zap.Error(err), zap.String("event_id", event.ID))
		}
	}

	admission, err := h.guard.Admit(ctx, event.ID, event.Type)
	if err != nil {
		h.logger.Error("webhook admission", zap.Error(err), zap.String("event_id", event.ID))
		response.Internal(c, "admission failed")
		return
	}
	switch admission {
	case AlreadyProcessed:
		response.OK(c, gin.H{"event_id": event.ID, "outcome": "already_processed"})
		return
	case AlreadyProcessing:
		response.OK(c, gin.H{"event_id": event.ID, "outcome": "already_processing"})
		return
	}

	// Admitted: from here on the ledger row must always be settled.
	result, runErr := h.run(ctx, event)
	h.guard.Settle(ctx, event.ID, runErr)

	if runErr != nil {
		// Surfaced to operators via the FAILED ledger row and the log; the
		// provider gets a definitive answer so it stops redelivering.
		h.logger.Error("fulfillment failed, event marked for reconciliation",
			zap.Error(runErr),
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type))
		response.OK(c, gin.H{"event_id": event.ID, "outcome": "failed_recorded"})
		return
	}
	response.OK(c, gin.H{
		"event_id":     event.ID,
		"outcome":      "fulfilled",
		"order_id":     result.OrderID,
		"order_number": result.OrderNumber,
	})
}

// run resolves the payload to an order and executes the orchestrator body.
func (h *Handler) run(ctx context.Context, event PaymentEvent) (*fulfillment.Result, error) {
	if event.Thin() {
		full, err := h.resolver.ResolveFull(ctx, event.Type, event)
		if err != nil {
			return nil, err
		}
		event = full
	}

	var order *models.Order
	if event.OrderRef != "" {
		orderID, err := uuid.Parse(event.OrderRef)
		if err != nil {
			return nil, errors.New("order ref is not a valid id: " + event.OrderRef)
		}
		order = &models.Order{ID: orderID}
	} else {
		found, err := h.lookup.GetBySessionRef(ctx, event.SessionRef)
		if err != nil {
			if errors.Is(err, orders.ErrNotFound) {
				return nil, errors.New("no order for session " + event.SessionRef)
			}
			return nil, err
		}
		order = found
	}

	return h.fulfill.Fulfill(ctx, order.ID, event.SessionRef, event.ChargeRef)
}
