package waitlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enrollio/backend/internal/models"
)

const uniqueViolation = "23505"

// Repository persists waitlist entries and per-item capacity credits. Two
// partial unique indexes back the invariants: one non-terminal entry per
// (holder, item) and one OFFERED entry per item.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a waitlist repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `id, tenant_id, item_kind, item_id, holder_id, status,
	enqueued_at, offer_expires_at, resolved_at, created_at, updated_at`

func scanEntry(row pgx.Row) (*models.WaitlistEntry, error) {
	var e models.WaitlistEntry
	err := row.Scan(&e.ID, &e.TenantID, &e.ItemKind, &e.ItemID, &e.HolderID, &e.Status,
		&e.EnqueuedAt, &e.OfferExpiresAt, &e.ResolvedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

// InsertEntry enqueues a holder. The partial unique index on non-terminal
// entries rejects double joins.
func (r *Repository) InsertEntry(ctx context.Context, e *models.WaitlistEntry) error {
	const q = `INSERT INTO waitlist_entries (id, tenant_id, item_kind, item_id, holder_id, status, enqueued_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, e.TenantID, e.ItemKind, e.ItemID, e.HolderID, e.Status, e.EnqueuedAt).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyQueued
		}
		return err
	}
	return nil
}

// GetEntry returns an entry by id.
func (r *Repository) GetEntry(ctx context.Context, id uuid.UUID) (*models.WaitlistEntry, error) {
	return scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM waitlist_entries WHERE id = $1`, id))
}

// HeadQueued returns the oldest QUEUED entry for the item, FIFO by enqueue time.
func (r *Repository) HeadQueued(ctx context.Context, item models.ItemRef) (*models.WaitlistEntry, error) {
	const q = `SELECT ` + entryColumns + ` FROM waitlist_entries
		WHERE tenant_id = $1 AND item_kind = $2 AND item_id = $3 AND status = $4
		ORDER BY enqueued_at, id LIMIT 1`
	return scanEntry(r.pool.QueryRow(ctx, q, item.TenantID, item.Kind, item.ItemID, models.WaitlistStatusQueued))
}

// OfferedEntry returns the item's single OFFERED entry if one exists.
func (r *Repository) OfferedEntry(ctx context.Context, item models.ItemRef) (*models.WaitlistEntry, error) {
	const q = `SELECT ` + entryColumns + ` FROM waitlist_entries
		WHERE tenant_id = $1 AND item_kind = $2 AND item_id = $3 AND status = $4`
	return scanEntry(r.pool.QueryRow(ctx, q, item.TenantID, item.Kind, item.ItemID, models.WaitlistStatusOffered))
}

// MarkOffered promotes a QUEUED entry to OFFERED. The conditional WHERE makes
// a raced promotion a detectable no-op and the partial unique index rejects a
// second offer on the same item.
func (r *Repository) MarkOffered(ctx context.Context, entryID uuid.UUID, expiresAt time.Time) error {
	const q = `UPDATE waitlist_entries SET status = $2, offer_expires_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4`
	tag, err := r.pool.Exec(ctx, q, entryID, models.WaitlistStatusOffered, expiresAt, models.WaitlistStatusQueued)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrOfferOutstanding
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotOffered
	}
	return nil
}

// Resolve flips an OFFERED entry to a terminal status. Only succeeds while
// the entry still holds the offer, which serializes accept against expiry.
func (r *Repository) Resolve(ctx context.Context, entryID uuid.UUID, status string, now time.Time) error {
	const q = `UPDATE waitlist_entries SET status = $2, resolved_at = $3, offer_expires_at = NULL, updated_at = $3
		WHERE id = $1 AND status = $4`
	tag, err := r.pool.Exec(ctx, q, entryID, status, now, models.WaitlistStatusOffered)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotOffered
	}
	return nil
}

// ListDueOffers returns OFFERED entries whose expiry has passed.
func (r *Repository) ListDueOffers(ctx context.Context, now time.Time) ([]models.WaitlistEntry, error) {
	const q = `SELECT ` + entryColumns + ` FROM waitlist_entries
		WHERE status = $1 AND offer_expires_at <= $2
		ORDER BY offer_expires_at`
	rows, err := r.pool.Query(ctx, q, models.WaitlistStatusOffered, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.WaitlistEntry
	for rows.Next() {
		var e models.WaitlistEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ItemKind, &e.ItemID, &e.HolderID, &e.Status,
			&e.EnqueuedAt, &e.OfferExpiresAt, &e.ResolvedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// AddCapacity records freed seats for an item.
func (r *Repository) AddCapacity(ctx context.Context, item models.ItemRef, n int) error {
	const q = `INSERT INTO capacity_credits (tenant_id, item_kind, item_id, credits) VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, item_kind, item_id) DO UPDATE SET credits = capacity_credits.credits + $4`
	_, err := r.pool.Exec(ctx, q, item.TenantID, item.Kind, item.ItemID, n)
	return err
}

// TakeCapacity consumes one freed seat; reports false when none remain.
func (r *Repository) TakeCapacity(ctx context.Context, item models.ItemRef) (bool, error) {
	const q = `UPDATE capacity_credits SET credits = credits - 1
		WHERE tenant_id = $1 AND item_kind = $2 AND item_id = $3 AND credits > 0`
	tag, err := r.pool.Exec(ctx, q, item.TenantID, item.Kind, item.ItemID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AvailableCapacity returns the item's freed-seat count.
func (r *Repository) AvailableCapacity(ctx context.Context, item models.ItemRef) (int, error) {
	const q = `SELECT credits FROM capacity_credits WHERE tenant_id = $1 AND item_kind = $2 AND item_id = $3`
	var n int
	err := r.pool.QueryRow(ctx, q, item.TenantID, item.Kind, item.ItemID).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}
