package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enrollio/backend/internal/models"
)

// Repository handles order, line-item and registration persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an orders repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, tenant_id, purchaser_id, kind, status, order_number,
	subtotal_cents, discount_cents, tax_cents, total_cents, currency,
	session_ref, charge_ref, paid_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.TenantID, &o.PurchaserID, &o.Kind, &o.Status, &o.OrderNumber,
		&o.SubtotalCents, &o.DiscountCents, &o.TaxCents, &o.TotalCents, &o.Currency,
		&o.SessionRef, &o.ChargeRef, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// CreateDraft inserts a DRAFT order together with its line items.
func (r *Repository) CreateDraft(ctx context.Context, o *models.Order, items []models.OrderLineItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `INSERT INTO orders (id, tenant_id, purchaser_id, kind, status,
			subtotal_cents, discount_cents, tax_cents, total_cents, currency)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`
	err = tx.QueryRow(ctx, q, o.TenantID, o.PurchaserID, o.Kind, models.OrderStatusDraft,
		o.SubtotalCents, o.DiscountCents, o.TaxCents, o.TotalCents, o.Currency).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}
	o.Status = models.OrderStatusDraft

	const itemQ = `INSERT INTO order_line_items (id, order_id, description, unit_price_cents, quantity, discount_cents, vat_rate_basis_points)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6) RETURNING id`
	for i := range items {
		items[i].OrderID = o.ID
		if err := tx.QueryRow(ctx, itemQ, o.ID, items[i].Description, items[i].UnitPriceCents,
			items[i].Quantity, items[i].DiscountCents, items[i].VATRateBasisPoints).Scan(&items[i].ID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetByID returns an order by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// GetBySessionRef returns the order attached to a provider checkout session.
func (r *Repository) GetBySessionRef(ctx context.Context, sessionRef string) (*models.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE session_ref = $1`, sessionRef))
}

// UpdateStatus persists a status change with its timestamps and provider refs.
func (r *Repository) UpdateStatus(ctx context.Context, o *models.Order) error {
	const q = `UPDATE orders SET status = $2, session_ref = $3, charge_ref = $4, paid_at = $5, updated_at = $6 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, o.ID, o.Status, o.SessionRef, o.ChargeRef, o.PaidAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SnapshotTotals freezes the monetary snapshot on submission.
func (r *Repository) SnapshotTotals(ctx context.Context, o *models.Order) error {
	const q = `UPDATE orders SET status = $2, subtotal_cents = $3, discount_cents = $4, tax_cents = $5, total_cents = $6, currency = $7, session_ref = $8, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	return r.pool.QueryRow(ctx, q, o.ID, o.Status, o.SubtotalCents, o.DiscountCents,
		o.TaxCents, o.TotalCents, o.Currency, o.SessionRef).Scan(&o.UpdatedAt)
}

// NextOrderNumber atomically increments and returns the tenant's counter.
// Gaps are acceptable (a crashed fulfillment burns a number), duplicates are not.
func (r *Repository) NextOrderNumber(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	const q = `INSERT INTO order_number_counters (tenant_id, value) VALUES ($1, 1)
		ON CONFLICT (tenant_id) DO UPDATE SET value = order_number_counters.value + 1
		RETURNING value`
	var n int64
	if err := r.pool.QueryRow(ctx, q, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("next order number: %w", err)
	}
	return n, nil
}

// AssignOrderNumber sets the permanent order number if still unset and
// returns the number on the row afterwards, so a retry that lost the race
// reads the winner's value.
func (r *Repository) AssignOrderNumber(ctx context.Context, orderID uuid.UUID, n int64) (int64, error) {
	const q = `UPDATE orders SET order_number = COALESCE(order_number, $2), updated_at = NOW()
		WHERE id = $1 RETURNING order_number`
	var assigned int64
	if err := r.pool.QueryRow(ctx, q, orderID, n).Scan(&assigned); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return assigned, nil
}

// ListLineItems returns the order's stored line items.
func (r *Repository) ListLineItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, description, unit_price_cents, quantity, discount_cents, vat_rate_basis_points
		FROM order_line_items WHERE order_id = $1 ORDER BY description`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.OrderLineItem
	for rows.Next() {
		var it models.OrderLineItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Description, &it.UnitPriceCents, &it.Quantity, &it.DiscountCents, &it.VATRateBasisPoints); err != nil {
			return nil, err
		}
		list = append(list, it)
	}
	return list, rows.Err()
}

// CreateRegistration inserts a course registration under an order.
func (r *Repository) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (id, order_id, holder_id, track_id, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, reg.OrderID, reg.HolderID, reg.TrackID, models.RegistrationStatusPending).
		Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)
}

// CreateEventRegistration inserts an event registration under an order.
func (r *Repository) CreateEventRegistration(ctx context.Context, reg *models.EventRegistration) error {
	const q = `INSERT INTO event_registrations (id, order_id, holder_id, event_id, quantity, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, reg.OrderID, reg.HolderID, reg.EventID, reg.Quantity, models.RegistrationStatusPending).
		Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)
}

// ListRegistrations returns course registrations for an order.
func (r *Repository) ListRegistrations(ctx context.Context, orderID uuid.UUID) ([]models.Registration, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, holder_id, track_id, status, created_at, updated_at
		FROM registrations WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Registration
	for rows.Next() {
		var reg models.Registration
		if err := rows.Scan(&reg.ID, &reg.OrderID, &reg.HolderID, &reg.TrackID, &reg.Status, &reg.CreatedAt, &reg.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, reg)
	}
	return list, rows.Err()
}

// ListEventRegistrations returns event registrations for an order, oldest first
// so ticket numbering stays deterministic.
func (r *Repository) ListEventRegistrations(ctx context.Context, orderID uuid.UUID) ([]models.EventRegistration, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, holder_id, event_id, quantity, status, created_at, updated_at
		FROM event_registrations WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.EventRegistration
	for rows.Next() {
		var reg models.EventRegistration
		if err := rows.Scan(&reg.ID, &reg.OrderID, &reg.HolderID, &reg.EventID, &reg.Quantity, &reg.Status, &reg.CreatedAt, &reg.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, reg)
	}
	return list, rows.Err()
}

// SetRegistrationStatus updates one course registration's status.
func (r *Repository) SetRegistrationStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `UPDATE registrations SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return err
}

// SetEventRegistrationStatus updates one event registration's status.
func (r *Repository) SetEventRegistrationStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `UPDATE event_registrations SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return err
}

// CancelChildren cascades cancellation to every non-terminal child registration.
func (r *Repository) CancelChildren(ctx context.Context, orderID uuid.UUID, now time.Time) error {
	if _, err := r.pool.Exec(ctx, `UPDATE registrations SET status = $2, updated_at = $3 WHERE order_id = $1 AND status IN ($4, $5)`,
		orderID, models.RegistrationStatusCancelled, now, models.RegistrationStatusPending, models.RegistrationStatusActive); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `UPDATE event_registrations SET status = $2, updated_at = $3 WHERE order_id = $1 AND status IN ($4, $5)`,
		orderID, models.RegistrationStatusCancelled, now, models.RegistrationStatusPending, models.RegistrationStatusActive)
	return err
}

// GetTenant returns the selling tenant (legal fields go on receipts).
func (r *Repository) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	const q = `SELECT id, name, legal_name, vat_number, legal_address, country, created_at, updated_at FROM tenants WHERE id = $1`
	var t models.Tenant
	err := r.pool.QueryRow(ctx, q, id).Scan(&t.ID, &t.Name, &t.LegalName, &t.VATNumber, &t.LegalAddress, &t.Country, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
