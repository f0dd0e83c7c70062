package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enrollio/backend/pkg/queue"
)

// QueueSender hands notifications and receipts to the background worker via
// the Redis job queue. The worker owns delivery and retries; callers only
// observe enqueue failures.
type QueueSender struct {
	queue  *queue.Queue
	logger *zap.Logger
}

// NewQueueSender creates a queue-backed sender.
func NewQueueSender(q *queue.Queue, logger *zap.Logger) *QueueSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueSender{queue: q, logger: logger}
}

// Send enqueues a transactional notification with a template id and variables.
func (s *QueueSender) Send(ctx context.Context, template string, recipientID uuid.UUID, vars map[string]string) error {
	return s.queue.EnqueueNotification(ctx, queue.NotificationPayload{
		Template:    template,
		RecipientID: recipientID,
		Vars:        vars,
	})
}

// DeliverReceipt enqueues the resolved receipt model for the document
// rendering collaborator.
func (s *QueueSender) DeliverReceipt(ctx context.Context, receipt Receipt) error {
	body, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	return s.queue.EnqueueReceiptRender(ctx, queue.ReceiptRenderPayload{
		OrderID: receipt.Transaction.OrderID,
		Receipt: body,
	})
}
