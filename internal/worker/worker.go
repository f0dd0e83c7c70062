package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/enrollio/backend/internal/notifications"
	"github.com/enrollio/backend/pkg/queue"
)

// Archiver stores raw webhook payloads. *storage.S3 satisfies it.
type Archiver interface {
	ArchiveWebhook(ctx context.Context, eventID string, body []byte) (string, error)
}

// ArchiveKeyRecorder records where an event's payload was archived.
// *webhooks.Repository satisfies it.
type ArchiveKeyRecorder interface {
	SetArchiveKey(ctx context.Context, eventID, key string) error
}

// Mailer delivers a templated notification to a recipient.
type Mailer interface {
	Deliver(ctx context.Context, template, recipientID string, vars map[string]string) error
}

// LogMailer logs deliveries instead of sending them. Used when no email
// provider is configured.
type LogMailer struct {
	Logger *zap.Logger
}

// Deliver logs the notification.
func (m LogMailer) Deliver(_ context.Context, template, recipientID string, vars map[string]string) error {
	m.Logger.Info("notification delivered (log only)",
		zap.String("template", template),
		zap.String("recipient_id", recipientID),
		zap.Any("vars", vars))
	return nil
}

// Processor consumes jobs from the Redis queue: transactional notifications,
// receipt rendering and webhook payload archival.
type Processor struct {
	queue    *queue.Queue
	mailer   Mailer
	archiver Archiver
	recorder ArchiveKeyRecorder
	logger   *zap.Logger
}

// NewProcessor creates a job processor.
func NewProcessor(q *queue.Queue, mailer Mailer, archiver Archiver, recorder ArchiveKeyRecorder, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{queue: q, mailer: mailer, archiver: archiver, recorder: recorder, logger: logger}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeNotification:
		return p.processNotification(ctx, job)
	case queue.JobTypeReceiptRender:
		return p.processReceiptRender(ctx, job)
	case queue.JobTypeWebhookArchive:
		return p.processWebhookArchive(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) processNotification(ctx context.Context, job *queue.Job) error {
	var payload queue.NotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := p.mailer.Deliver(ctx, payload.Template, payload.RecipientID.String(), payload.Vars); err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	return nil
}

func (p *Processor) processReceiptRender(ctx context.Context, job *queue.Job) error {
	var payload queue.ReceiptRenderPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	var receipt notifications.Receipt
	if err := json.Unmarshal(payload.Receipt, &receipt); err != nil {
		return fmt.Errorf("unmarshal receipt: %w", err)
	}
	vars := map[string]string{
		"order_id":     payload.OrderID.String(),
		"order_number": fmt.Sprintf("%d", receipt.Transaction.OrderNumber),
		"seller_name":  receipt.Seller.Name,
		"total_cents":  fmt.Sprintf("%d", receipt.Totals.TotalCents),
		"currency":     receipt.Totals.Currency,
	}
	if err := p.mailer.Deliver(ctx, "receipt", receipt.PurchaserID.String(), vars); err != nil {
		return fmt.Errorf("deliver receipt: %w", err)
	}
	return nil
}

func (p *Processor) processWebhookArchive(ctx context.Context, job *queue.Job) error {
	var payload queue.WebhookArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	key, err := p.archiver.ArchiveWebhook(ctx, payload.EventID, payload.Body)
	if err != nil {
		return fmt.Errorf("archive payload: %w", err)
	}
	if err := p.recorder.SetArchiveKey(ctx, payload.EventID, key); err != nil {
		return fmt.Errorf("record archive key: %w", err)
	}
	p.logger.Info("webhook payload archived",
		zap.String("event_id", payload.EventID),
		zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, key, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("worker stopping")
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, key, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
