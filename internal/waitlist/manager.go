// Package waitlist manages time-boxed exclusive offers on freed capacity.
// Promotion is strict FIFO by enqueue time, with at most one outstanding
// offer per item.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enrollio/backend/internal/clock"
	"github.com/enrollio/backend/internal/models"
)

var (
	// ErrOfferExpired means the offer's expiry passed before acceptance. The
	// queue advances; the caller lost their turn but may re-join.
	ErrOfferExpired = errors.New("waitlist offer expired")
	// ErrEntryNotFound means the referenced entry does not exist.
	ErrEntryNotFound = errors.New("waitlist entry not found")
	// ErrAlreadyQueued means the holder already has a non-terminal entry for
	// the item.
	ErrAlreadyQueued = errors.New("holder already on waitlist")
	// ErrNotOffered means the entry is not currently holding an offer.
	ErrNotOffered = errors.New("waitlist entry has no outstanding offer")
	// ErrOfferOutstanding is the insert-if-absent outcome when another entry
	// already holds the item's single offer slot.
	ErrOfferOutstanding = errors.New("item already has an outstanding offer")
)

// Store is the waitlist persistence surface. *Repository satisfies it.
// MarkOffered and Resolve are conditional updates: they fail with ErrNotOffered
// (or report no-op) when the entry's status changed underneath, which makes
// the expiry transition idempotent and safe to run concurrently.
type Store interface {
	InsertEntry(ctx context.Context, e *models.WaitlistEntry) error
	GetEntry(ctx context.Context, id uuid.UUID) (*models.WaitlistEntry, error)
	HeadQueued(ctx context.Context, item models.ItemRef) (*models.WaitlistEntry, error)
	OfferedEntry(ctx context.Context, item models.ItemRef) (*models.WaitlistEntry, error)
	MarkOffered(ctx context.Context, entryID uuid.UUID, expiresAt time.Time) error
	Resolve(ctx context.Context, entryID uuid.UUID, status string, now time.Time) error
	ListDueOffers(ctx context.Context, now time.Time) ([]models.WaitlistEntry, error)
	AddCapacity(ctx context.Context, item models.ItemRef, n int) error
	TakeCapacity(ctx context.Context, item models.ItemRef) (bool, error)
	AvailableCapacity(ctx context.Context, item models.ItemRef) (int, error)
}

// OrderFactory creates the PENDING_PAYMENT order + registration an accepted
// offer converts into. The new order is not owned by the entry.
type OrderFactory interface {
	CreatePendingOrder(ctx context.Context, item models.ItemRef, holderID uuid.UUID) (uuid.UUID, error)
}

// Notifier announces offers to holders; failures never block promotion.
type Notifier interface {
	Send(ctx context.Context, template string, recipientID uuid.UUID, vars map[string]string) error
}

// Manager drives the per-entry offer state machine:
// QUEUED -> OFFERED -> {ACCEPTED, DECLINED, EXPIRED}.
type Manager struct {
	store    Store
	factory  OrderFactory
	notifier Notifier
	clock    clock.Clock
	offerTTL time.Duration
	logger   *zap.Logger
}

const defaultOfferTTL = 48 * time.Hour

// NewManager creates a waitlist manager.
func NewManager(store Store, factory OrderFactory, notifier Notifier, clk clock.Clock, offerTTL time.Duration, logger *zap.Logger) *Manager {
	if offerTTL <= 0 {
		offerTTL = defaultOfferTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, factory: factory, notifier: notifier, clock: clk, offerTTL: offerTTL, logger: logger}
}

// Join enqueues a holder for an item. At most one non-terminal entry per
// (holder, item) may exist.
func (m *Manager) Join(ctx context.Context, item models.ItemRef, holderID uuid.UUID) (*models.WaitlistEntry, error) {
	now := m.clock.Now()
	e := &models.WaitlistEntry{
		TenantID:   item.TenantID,
		ItemKind:   item.Kind,
		ItemID:     item.ItemID,
		HolderID:   holderID,
		Status:     models.WaitlistStatusQueued,
		EnqueuedAt: now,
	}
	if err := m.store.InsertEntry(ctx, e); err != nil {
		return nil, err
	}
	m.logger.Info("waitlist joined",
		zap.String("entry_id", e.ID.String()),
		zap.String("item_id", item.ItemID.String()))
	return e, nil
}

// FreeCapacity records seats returned by a cancellation or refund and tries
// to promote the queue. While an offer is outstanding the freed capacity is
// only counted; it is consulted again when that offer resolves.
func (m *Manager) FreeCapacity(ctx context.Context, item models.ItemRef, quantity int) error {
	if quantity <= 0 {
		return nil
	}
	if err := m.store.AddCapacity(ctx, item, quantity); err != nil {
		return err
	}
	return m.OfferNext(ctx, item)
}

// OfferNext promotes the queue head to OFFERED if capacity is available and
// no other entry holds the item's offer slot. A stale outstanding offer is
// expired in passing (the lazy half of the sweep).
func (m *Manager) OfferNext(ctx context.Context, item models.ItemRef) error {
	now := m.clock.Now()

	outstanding, err := m.store.OfferedEntry(ctx, item)
	if err != nil && !errors.Is(err, ErrEntryNotFound) {
		return err
	}
	if outstanding != nil {
		if outstanding.OfferExpiresAt != nil && !now.Before(*outstanding.OfferExpiresAt) {
			if err := m.expire(ctx, outstanding, now); err != nil {
				return err
			}
		} else {
			// The previous head must resolve before a new offer goes out.
			return nil
		}
	}

	capacity, err := m.store.AvailableCapacity(ctx, item)
	if err != nil {
		return err
	}
	if capacity <= 0 {
		return nil
	}

	head, err := m.store.HeadQueued(ctx, item)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil
		}
		return err
	}

	expiresAt := now.Add(m.offerTTL)
	if err := m.store.MarkOffered(ctx, head.ID, expiresAt); err != nil {
		// A concurrent promoter won the slot; their offer stands.
		if errors.Is(err, ErrOfferOutstanding) || errors.Is(err, ErrNotOffered) {
			return nil
		}
		return err
	}

	if err := m.notifier.Send(ctx, "waitlist_offer", head.HolderID, map[string]string{
		"entry_id":   head.ID.String(),
		"item_id":    item.ItemID.String(),
		"expires_at": expiresAt.Format(time.RFC3339),
	}); err != nil {
		m.logger.Warn("offer notification failed", zap.Error(err), zap.String("entry_id", head.ID.String()))
	}
	m.logger.Info("waitlist offer made",
		zap.String("entry_id", head.ID.String()),
		zap.String("item_id", item.ItemID.String()),
		zap.Time("expires_at", expiresAt))
	return nil
}

// AcceptOffer converts an unexpired offer into a new PENDING_PAYMENT order
// and registration. The expiry boundary is exclusive: an offer whose expiry
// has passed can never be accepted, and acceptance past expiry advances the
// queue instead.
func (m *Manager) AcceptOffer(ctx context.Context, entryID uuid.UUID) (uuid.UUID, error) {
	e, err := m.store.GetEntry(ctx, entryID)
	if err != nil {
		return uuid.Nil, err
	}
	if e.Status != models.WaitlistStatusOffered {
		return uuid.Nil, fmt.Errorf("%w: entry %s is %s", ErrNotOffered, e.ID, e.Status)
	}

	now := m.clock.Now()
	if e.OfferExpiresAt == nil || !now.Before(*e.OfferExpiresAt) {
		if err := m.expire(ctx, e, now); err != nil {
			m.logger.Error("expire on late accept", zap.Error(err), zap.String("entry_id", e.ID.String()))
		}
		return uuid.Nil, ErrOfferExpired
	}

	// The conditional resolve is the mutual exclusion: whoever flips
	// OFFERED -> ACCEPTED first wins; a concurrent expiry sweep loses.
	if err := m.store.Resolve(ctx, e.ID, models.WaitlistStatusAccepted, now); err != nil {
		return uuid.Nil, err
	}
	if taken, err := m.store.TakeCapacity(ctx, e.Item()); err != nil {
		return uuid.Nil, err
	} else if !taken {
		m.logger.Error("accepted offer without capacity credit", zap.String("entry_id", e.ID.String()))
	}

	orderID, err := m.factory.CreatePendingOrder(ctx, e.Item(), e.HolderID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create order for accepted offer %s: %w", e.ID, err)
	}
	m.logger.Info("waitlist offer accepted",
		zap.String("entry_id", e.ID.String()),
		zap.String("order_id", orderID.String()))

	// Acceptance resolves the offer, so remaining freed capacity must be
	// consulted now or the queue stalls until an unrelated capacity event.
	if err := m.OfferNext(ctx, e.Item()); err != nil {
		m.logger.Error("promote after accept", zap.Error(err), zap.String("item_id", e.ItemID.String()))
	}
	return orderID, nil
}

// DeclineOffer is the terminal user action that passes the turn and advances
// the queue.
func (m *Manager) DeclineOffer(ctx context.Context, entryID uuid.UUID) error {
	e, err := m.store.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if e.Status != models.WaitlistStatusOffered {
		return fmt.Errorf("%w: entry %s is %s", ErrNotOffered, e.ID, e.Status)
	}
	if err := m.store.Resolve(ctx, e.ID, models.WaitlistStatusDeclined, m.clock.Now()); err != nil {
		return err
	}
	m.logger.Info("waitlist offer declined", zap.String("entry_id", e.ID.String()))
	return m.OfferNext(ctx, e.Item())
}

// ExpireDue advances every offer whose expiry has passed and promotes the
// next queued entry per item. Safe to run concurrently with lazy expiry: the
// conditional resolve makes the transition idempotent.
func (m *Manager) ExpireDue(ctx context.Context) (int, error) {
	now := m.clock.Now()
	due, err := m.store.ListDueOffers(ctx, now)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, e := range due {
		if err := m.expire(ctx, &e, now); err != nil {
			m.logger.Error("expire offer", zap.Error(err), zap.String("entry_id", e.ID.String()))
			continue
		}
		expired++
	}
	return expired, nil
}

// expire flips one OFFERED entry to EXPIRED and hands the slot to the next
// queued holder. Losing the conditional update to a concurrent accept or
// sweep is a no-op.
func (m *Manager) expire(ctx context.Context, e *models.WaitlistEntry, now time.Time) error {
	if err := m.store.Resolve(ctx, e.ID, models.WaitlistStatusExpired, now); err != nil {
		if errors.Is(err, ErrNotOffered) {
			return nil
		}
		return err
	}
	m.logger.Info("waitlist offer expired", zap.String("entry_id", e.ID.String()))
	return m.OfferNext(ctx, e.Item())
}
