package models

import (
	"time"

	"github.com/google/uuid"
)

// Registration status lifecycle. A registration reaches ACTIVE only when its
// owning order is PAID; it may be cancelled independently of the order.
const (
	RegistrationStatusPending   = "PENDING"
	RegistrationStatusActive    = "ACTIVE"
	RegistrationStatusCancelled = "CANCELLED"
	RegistrationStatusRefunded  = "REFUNDED"
)

// Registration is a holder's claim on a course track, owned by exactly one order.
type Registration struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	HolderID  uuid.UUID `json:"holder_id"`
	TrackID   uuid.UUID `json:"track_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventRegistration is a holder's claim on seats at a one-off event.
// Quantity is the number of purchased units; each unit gets its own ticket.
type EventRegistration struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	HolderID  uuid.UUID `json:"holder_id"`
	EventID   uuid.UUID `json:"event_id"`
	Quantity  int       `json:"quantity"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
