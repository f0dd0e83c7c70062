package webhooks

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enrollio/backend/internal/models"
)

const uniqueViolation = "23505"

// Repository persists the idempotency ledger. The provider's event id is the
// primary key, so the insert itself is the mutual-exclusion token.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a webhook ledger repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertIfAbsent creates the ledger row before any side effect. A primary-key
// violation means a concurrent admitter already claimed the id.
func (r *Repository) InsertIfAbsent(ctx context.Context, ev *models.WebhookEvent) error {
	const q = `INSERT INTO webhook_events (id, type, status, received_at) VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, q, ev.ID, ev.Type, ev.Status, ev.ReceivedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateEvent
		}
		return err
	}
	return nil
}

// Get returns a ledger row by provider event id.
func (r *Repository) Get(ctx context.Context, id string) (*models.WebhookEvent, error) {
	const q = `SELECT id, type, status, last_error, archive_key, received_at, processed_at FROM webhook_events WHERE id = $1`
	var ev models.WebhookEvent
	err := r.pool.QueryRow(ctx, q, id).Scan(&ev.ID, &ev.Type, &ev.Status, &ev.LastError, &ev.ArchiveKey, &ev.ReceivedAt, &ev.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// MarkProcessed settles the row after a successful orchestrator run.
func (r *Repository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE webhook_events SET status = $2, processed_at = $3, last_error = '' WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, models.WebhookStatusProcessed, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// MarkFailed settles the row after a failed orchestrator run. The row stays
// FAILED until manual reconciliation; it never re-admits the event.
func (r *Repository) MarkFailed(ctx context.Context, id, lastError string, at time.Time) error {
	const q = `UPDATE webhook_events SET status = $2, processed_at = $3, last_error = $4 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, models.WebhookStatusFailed, at, lastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// SetArchiveKey records where the raw payload was archived.
func (r *Repository) SetArchiveKey(ctx context.Context, id, key string) error {
	_, err := r.pool.Exec(ctx, `UPDATE webhook_events SET archive_key = $2 WHERE id = $1`, id, key)
	return err
}
