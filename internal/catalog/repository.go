// Package catalog reads the sellable items (course tracks and events).
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enrollio/backend/internal/models"
)

// ErrItemNotFound means the referenced item does not exist.
var ErrItemNotFound = errors.New("catalog item not found")

// Pricing is the sales view of one item.
type Pricing struct {
	Description        string
	PriceCents         int64
	Currency           string
	VATRateBasisPoints int64
}

// Repository reads catalog items.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a catalog repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetTrack returns a course track by ID.
func (r *Repository) GetTrack(ctx context.Context, id uuid.UUID) (*models.CourseTrack, error) {
	const q = `SELECT id, tenant_id, title, price_cents, currency, vat_rate_basis_points, capacity, created_at, updated_at
		FROM course_tracks WHERE id = $1`
	var t models.CourseTrack
	err := r.pool.QueryRow(ctx, q, id).Scan(&t.ID, &t.TenantID, &t.Title, &t.PriceCents, &t.Currency, &t.VATRateBasisPoints, &t.Capacity, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &t, nil
}

// GetEvent returns an event by ID.
func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	const q = `SELECT id, tenant_id, title, starts_at, price_cents, currency, vat_rate_basis_points, capacity, created_at, updated_at
		FROM events WHERE id = $1`
	var e models.Event
	err := r.pool.QueryRow(ctx, q, id).Scan(&e.ID, &e.TenantID, &e.Title, &e.StartsAt, &e.PriceCents, &e.Currency, &e.VATRateBasisPoints, &e.Capacity, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &e, nil
}

// Pricing resolves an item reference to its sales view.
func (r *Repository) Pricing(ctx context.Context, item models.ItemRef) (*Pricing, error) {
	switch item.Kind {
	case models.ItemKindCourseTrack:
		t, err := r.GetTrack(ctx, item.ItemID)
		if err != nil {
			return nil, err
		}
		return &Pricing{Description: t.Title, PriceCents: t.PriceCents, Currency: t.Currency, VATRateBasisPoints: t.VATRateBasisPoints}, nil
	case models.ItemKindEvent:
		e, err := r.GetEvent(ctx, item.ItemID)
		if err != nil {
			return nil, err
		}
		return &Pricing{Description: e.Title, PriceCents: e.PriceCents, Currency: e.Currency, VATRateBasisPoints: e.VATRateBasisPoints}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrItemNotFound, item.Kind)
	}
}
