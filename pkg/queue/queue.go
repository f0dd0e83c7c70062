package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueNotifications is the Redis list key for transactional notification jobs.
	QueueNotifications = "worker:notifications"
	// QueueReceipts is the Redis list key for receipt rendering jobs.
	QueueReceipts = "worker:receipts"
	// QueueArchives is the Redis list key for webhook payload archival jobs.
	QueueArchives = "worker:archives"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeNotification   JobType = "notification"
	JobTypeReceiptRender  JobType = "receipt_render"
	JobTypeWebhookArchive JobType = "webhook_archive"
)

// NotificationPayload is the payload for transactional notification jobs.
type NotificationPayload struct {
	Template    string            `json:"template"`
	RecipientID uuid.UUID         `json:"recipient_id"`
	Vars        map[string]string `json:"vars"`
}

// ReceiptRenderPayload carries the resolved receipt model to the document
// rendering collaborator.
type ReceiptRenderPayload struct {
	OrderID uuid.UUID       `json:"order_id"`
	Receipt json.RawMessage `json:"receipt"`
}

// WebhookArchivePayload is the payload for raw webhook body archival jobs.
type WebhookArchivePayload struct {
	EventID string `json:"event_id"`
	Body    []byte `json:"body"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

func (q *Queue) enqueue(ctx context.Context, key string, typ JobType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued job", zap.String("job_id", job.ID), zap.String("type", string(typ)))
	return nil
}

// EnqueueNotification enqueues a transactional notification job.
func (q *Queue) EnqueueNotification(ctx context.Context, payload NotificationPayload) error {
	return q.enqueue(ctx, QueueNotifications, JobTypeNotification, payload)
}

// EnqueueReceiptRender enqueues a receipt rendering job.
func (q *Queue) EnqueueReceiptRender(ctx context.Context, payload ReceiptRenderPayload) error {
	return q.enqueue(ctx, QueueReceipts, JobTypeReceiptRender, payload)
}

// EnqueueWebhookArchive enqueues a raw payload archival job.
func (q *Queue) EnqueueWebhookArchive(ctx context.Context, payload WebhookArchivePayload) error {
	return q.enqueue(ctx, QueueArchives, JobTypeWebhookArchive, payload)
}

// Dequeue blocks until a job is available on any worker queue or ctx is done.
// Returns the job and the queue name it came from.
func (q *Queue) Dequeue(ctx context.Context) (*Job, string, error) {
	result, err := q.client.BLPop(ctx, 0, QueueNotifications, QueueReceipts, QueueArchives).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, "", nil
		}
		return nil, "", err
	}
	if len(result) < 2 {
		return nil, "", nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, "", nil
	}
	return &job, result[0], nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries,
// pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, key string, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if job.Attempt >= MaxRetries {
		q.logger.Warn("job moved to DLQ",
			zap.String("job_id", job.ID),
			zap.String("type", string(job.Type)),
			zap.Int("attempt", job.Attempt))
		return q.client.RPush(ctx, QueueDLQ, raw).Err()
	}
	return q.client.RPush(ctx, key, raw).Err()
}
