package models

import (
	"time"

	"github.com/google/uuid"
)

// Waitlist entry statuses. OFFERED is the only state with an expiry set;
// ACCEPTED, DECLINED and EXPIRED are terminal.
const (
	WaitlistStatusQueued   = "QUEUED"
	WaitlistStatusOffered  = "OFFERED"
	WaitlistStatusAccepted = "ACCEPTED"
	WaitlistStatusDeclined = "DECLINED"
	WaitlistStatusExpired  = "EXPIRED"
)

// ItemKind distinguishes what a waitlist entry is queued for.
const (
	ItemKindCourseTrack = "COURSE_TRACK"
	ItemKindEvent       = "EVENT"
)

// ItemRef identifies a sellable item (course track or event) within a tenant.
type ItemRef struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Kind     string    `json:"kind"`
	ItemID   uuid.UUID `json:"item_id"`
}

// WaitlistEntry is a holder's place in line for a full item. At most one
// non-terminal entry exists per (holder, item) and at most one entry per item
// is OFFERED at a time. Accepting an offer creates a new order; the entry does
// not own that order.
type WaitlistEntry struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	ItemKind       string     `json:"item_kind"`
	ItemID         uuid.UUID  `json:"item_id"`
	HolderID       uuid.UUID  `json:"holder_id"`
	Status         string     `json:"status"`
	EnqueuedAt     time.Time  `json:"enqueued_at"`
	OfferExpiresAt *time.Time `json:"offer_expires_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Item returns the entry's item reference.
func (e WaitlistEntry) Item() ItemRef {
	return ItemRef{TenantID: e.TenantID, Kind: e.ItemKind, ItemID: e.ItemID}
}
