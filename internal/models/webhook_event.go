package models

import "time"

// Webhook event ledger statuses.
const (
	WebhookStatusProcessing = "PROCESSING"
	WebhookStatusProcessed  = "PROCESSED"
	WebhookStatusFailed     = "FAILED"
)

// WebhookEvent is the idempotency ledger row for one inbound provider event.
// The provider's event id is the primary key; the row is created before any
// side effect so a duplicate delivery is rejected before it can cause one.
type WebhookEvent struct {
	ID          string     `json:"id"` // provider event id, natural key
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	LastError   string     `json:"last_error,omitempty"`
	ArchiveKey  string     `json:"archive_key,omitempty"` // S3 object key of the raw payload
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
