// Package tickets issues and voids the QR-bearing tickets behind active
// registrations. Issuance is idempotent: the same arguments always converge
// on the same ticket row.
package tickets

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enrollio/backend/internal/models"
)

var (
	// ErrAlreadyExists is the insert-if-absent outcome when the uniqueness
	// constraint already holds. Callers resolve it by re-reading.
	ErrAlreadyExists = errors.New("ticket already exists")
	// ErrNotFound means the referenced ticket does not exist.
	ErrNotFound = errors.New("ticket not found")
)

// Store is the persistence surface the issuer needs. *Repository satisfies it.
type Store interface {
	InsertCourseTicket(ctx context.Context, t *models.Ticket) error
	ActiveCourseTicket(ctx context.Context, holderID, trackID uuid.UUID) (*models.Ticket, error)
	InsertEventTicket(ctx context.Context, t *models.EventTicket) error
	EventTicketByUnit(ctx context.Context, registrationID uuid.UUID, unitIndex int) (*models.EventTicket, error)
	NextSequence(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// Issuer creates tickets with opaque QR tokens.
type Issuer struct {
	store  Store
	logger *zap.Logger
}

// NewIssuer creates a ticket issuer.
func NewIssuer(store Store, logger *zap.Logger) *Issuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Issuer{store: store, logger: logger}
}

// IssueCourseTicket issues the single ACTIVE ticket for (holder, track). If
// one already exists it is returned unchanged; a concurrent insert losing the
// uniqueness race resolves the same way.
func (i *Issuer) IssueCourseTicket(ctx context.Context, tenantID, holderID, trackID uuid.UUID) (*models.Ticket, error) {
	if existing, err := i.store.ActiveCourseTicket(ctx, holderID, trackID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	seq, err := i.store.NextSequence(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	token, err := newQRToken()
	if err != nil {
		return nil, err
	}
	t := &models.Ticket{
		TenantID:       tenantID,
		HolderID:       holderID,
		TrackID:        trackID,
		QRToken:        token,
		Status:         models.TicketStatusActive,
		SequenceNumber: seq,
	}
	if err := i.store.InsertCourseTicket(ctx, t); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return i.store.ActiveCourseTicket(ctx, holderID, trackID)
		}
		return nil, err
	}
	i.logger.Info("course ticket issued",
		zap.String("ticket_id", t.ID.String()),
		zap.String("holder_id", holderID.String()),
		zap.Int64("sequence", seq))
	return t, nil
}

// IssueEventTicket issues the ticket for one purchased unit of an event
// registration. Unit indexes are deterministic, so a retried fulfillment can
// never duplicate or skip a unit.
func (i *Issuer) IssueEventTicket(ctx context.Context, tenantID uuid.UUID, reg models.EventRegistration, unitIndex int) (*models.EventTicket, error) {
	if existing, err := i.store.EventTicketByUnit(ctx, reg.ID, unitIndex); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	seq, err := i.store.NextSequence(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	token, err := newQRToken()
	if err != nil {
		return nil, err
	}
	t := &models.EventTicket{
		TenantID:       tenantID,
		RegistrationID: reg.ID,
		HolderID:       reg.HolderID,
		EventID:        reg.EventID,
		UnitIndex:      unitIndex,
		QRToken:        token,
		Status:         models.TicketStatusActive,
		SequenceNumber: seq,
	}
	if err := i.store.InsertEventTicket(ctx, t); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return i.store.EventTicketByUnit(ctx, reg.ID, unitIndex)
		}
		return nil, err
	}
	i.logger.Info("event ticket issued",
		zap.String("ticket_id", t.ID.String()),
		zap.String("registration_id", reg.ID.String()),
		zap.Int("unit_index", unitIndex))
	return t, nil
}

// newQRToken returns 32 random bytes, base64url-encoded. Opaque, holds no PII.
func newQRToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("qr token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
