package models

import (
	"time"

	"github.com/google/uuid"
)

// Ticket status.
const (
	TicketStatusActive = "ACTIVE"
	TicketStatusVoid   = "VOID"
)

// Ticket is the redeemable QR-bearing artifact for an active course
// registration. At most one ACTIVE ticket exists per (holder, track).
// The QR token is opaque and carries no holder PII.
type Ticket struct {
	ID             uuid.UUID `json:"id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	HolderID       uuid.UUID `json:"holder_id"`
	TrackID        uuid.UUID `json:"track_id"`
	QRToken        string    `json:"qr_token"`
	Status         string    `json:"status"`
	SequenceNumber int64     `json:"sequence_number"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EventTicket is one ticket per purchased unit of an event registration,
// numbered deterministically by (registration, unit index).
type EventTicket struct {
	ID             uuid.UUID `json:"id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	RegistrationID uuid.UUID `json:"registration_id"`
	HolderID       uuid.UUID `json:"holder_id"`
	EventID        uuid.UUID `json:"event_id"`
	UnitIndex      int       `json:"unit_index"`
	QRToken        string    `json:"qr_token"`
	Status         string    `json:"status"`
	SequenceNumber int64     `json:"sequence_number"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
