package tickets

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enrollio/backend/internal/models"
)

// uniqueViolation is the Postgres error code for unique constraint violations.
const uniqueViolation = "23505"

// Repository handles ticket persistence. Uniqueness constraints back the
// insert-if-absent semantics: a partial unique index on ACTIVE course tickets
// per (holder, track), and a unique index per (registration, unit_index) for
// event tickets.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a tickets repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// InsertCourseTicket inserts a course ticket, returning ErrAlreadyExists when
// an ACTIVE ticket for (holder, track) already holds the constraint.
func (r *Repository) InsertCourseTicket(ctx context.Context, t *models.Ticket) error {
	const q = `INSERT INTO tickets (id, tenant_id, holder_id, track_id, qr_token, status, sequence_number)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, t.TenantID, t.HolderID, t.TrackID, t.QRToken, t.Status, t.SequenceNumber).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// ActiveCourseTicket returns the ACTIVE ticket for (holder, track).
func (r *Repository) ActiveCourseTicket(ctx context.Context, holderID, trackID uuid.UUID) (*models.Ticket, error) {
	const q = `SELECT id, tenant_id, holder_id, track_id, qr_token, status, sequence_number, created_at, updated_at
		FROM tickets WHERE holder_id = $1 AND track_id = $2 AND status = $3`
	var t models.Ticket
	err := r.pool.QueryRow(ctx, q, holderID, trackID, models.TicketStatusActive).
		Scan(&t.ID, &t.TenantID, &t.HolderID, &t.TrackID, &t.QRToken, &t.Status, &t.SequenceNumber, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// InsertEventTicket inserts an event ticket, returning ErrAlreadyExists when
// the (registration, unit_index) slot is taken.
func (r *Repository) InsertEventTicket(ctx context.Context, t *models.EventTicket) error {
	const q = `INSERT INTO event_tickets (id, tenant_id, registration_id, holder_id, event_id, unit_index, qr_token, status, sequence_number)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, t.TenantID, t.RegistrationID, t.HolderID, t.EventID, t.UnitIndex, t.QRToken, t.Status, t.SequenceNumber).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// EventTicketByUnit returns the ticket for one unit of an event registration.
func (r *Repository) EventTicketByUnit(ctx context.Context, registrationID uuid.UUID, unitIndex int) (*models.EventTicket, error) {
	const q = `SELECT id, tenant_id, registration_id, holder_id, event_id, unit_index, qr_token, status, sequence_number, created_at, updated_at
		FROM event_tickets WHERE registration_id = $1 AND unit_index = $2`
	var t models.EventTicket
	err := r.pool.QueryRow(ctx, q, registrationID, unitIndex).
		Scan(&t.ID, &t.TenantID, &t.RegistrationID, &t.HolderID, &t.EventID, &t.UnitIndex, &t.QRToken, &t.Status, &t.SequenceNumber, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// NextSequence atomically increments and returns the tenant's ticket counter.
func (r *Repository) NextSequence(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	const q = `INSERT INTO ticket_sequence_counters (tenant_id, value) VALUES ($1, 1)
		ON CONFLICT (tenant_id) DO UPDATE SET value = ticket_sequence_counters.value + 1
		RETURNING value`
	var n int64
	err := r.pool.QueryRow(ctx, q, tenantID).Scan(&n)
	return n, err
}

// VoidCourseTicket marks a course ticket VOID. Idempotent.
func (r *Repository) VoidCourseTicket(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tickets SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, models.TicketStatusVoid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// VoidEventTicket marks an event ticket VOID. Idempotent.
func (r *Repository) VoidEventTicket(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE event_tickets SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, models.TicketStatusVoid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindEventByQRToken resolves a scanned event ticket token.
func (r *Repository) FindEventByQRToken(ctx context.Context, token string) (*models.EventTicket, error) {
	const q = `SELECT id, tenant_id, registration_id, holder_id, event_id, unit_index, qr_token, status, sequence_number, created_at, updated_at
		FROM event_tickets WHERE qr_token = $1`
	var t models.EventTicket
	err := r.pool.QueryRow(ctx, q, token).
		Scan(&t.ID, &t.TenantID, &t.RegistrationID, &t.HolderID, &t.EventID, &t.UnitIndex, &t.QRToken, &t.Status, &t.SequenceNumber, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// FindByQRToken resolves a scanned course ticket token.
func (r *Repository) FindByQRToken(ctx context.Context, token string) (*models.Ticket, error) {
	const q = `SELECT id, tenant_id, holder_id, track_id, qr_token, status, sequence_number, created_at, updated_at
		FROM tickets WHERE qr_token = $1`
	var t models.Ticket
	err := r.pool.QueryRow(ctx, q, token).
		Scan(&t.ID, &t.TenantID, &t.HolderID, &t.TrackID, &t.QRToken, &t.Status, &t.SequenceNumber, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
