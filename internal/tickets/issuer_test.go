package tickets

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/enrollio/backend/internal/models"
)

type fakeStore struct {
	course       map[string]*models.Ticket      // holder|track -> ticket
	event        map[string]*models.EventTicket // registration|unit -> ticket
	seq          int64
	insertRacing bool // simulate losing the uniqueness race on first insert
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		course: make(map[string]*models.Ticket),
		event:  make(map[string]*models.EventTicket),
	}
}

func courseKey(holderID, trackID uuid.UUID) string { return holderID.String() + "|" + trackID.String() }
func eventKey(regID uuid.UUID, unit int) string {
	return fmt.Sprintf("%s|%d", regID, unit)
}

func (f *fakeStore) InsertCourseTicket(_ context.Context, t *models.Ticket) error {
	key := courseKey(t.HolderID, t.TrackID)
	if _, ok := f.course[key]; ok {
		return ErrAlreadyExists
	}
	if f.insertRacing {
		// Another writer slipped in between the read and this insert.
		f.insertRacing = false
		winner := *t
		winner.ID = uuid.New()
		winner.QRToken = "winner-token"
		f.course[key] = &winner
		return ErrAlreadyExists
	}
	t.ID = uuid.New()
	f.course[key] = t
	return nil
}

func (f *fakeStore) ActiveCourseTicket(_ context.Context, holderID, trackID uuid.UUID) (*models.Ticket, error) {
	if t, ok := f.course[courseKey(holderID, trackID)]; ok {
		return t, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) InsertEventTicket(_ context.Context, t *models.EventTicket) error {
	key := eventKey(t.RegistrationID, t.UnitIndex)
	if _, ok := f.event[key]; ok {
		return ErrAlreadyExists
	}
	t.ID = uuid.New()
	f.event[key] = t
	return nil
}

func (f *fakeStore) EventTicketByUnit(_ context.Context, registrationID uuid.UUID, unitIndex int) (*models.EventTicket, error) {
	if t, ok := f.event[eventKey(registrationID, unitIndex)]; ok {
		return t, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) NextSequence(_ context.Context, _ uuid.UUID) (int64, error) {
	f.seq++
	return f.seq, nil
}

func TestIssueCourseTicket(t *testing.T) {
	t.Parallel()

	tenantID, holderID, trackID := uuid.New(), uuid.New(), uuid.New()

	t.Run("issues once and returns existing on repeat", func(t *testing.T) {
		store := newFakeStore()
		issuer := NewIssuer(store, nil)

		first, err := issuer.IssueCourseTicket(context.Background(), tenantID, holderID, trackID)
		if err != nil {
			t.Fatal(err)
		}
		if first.Status != models.TicketStatusActive {
			t.Fatalf("status = %s", first.Status)
		}
		if first.QRToken == "" {
			t.Fatal("expected QR token")
		}

		second, err := issuer.IssueCourseTicket(context.Background(), tenantID, holderID, trackID)
		if err != nil {
			t.Fatal(err)
		}
		if second.ID != first.ID || second.QRToken != first.QRToken {
			t.Fatalf("repeat issue produced a different ticket: %v vs %v", second.ID, first.ID)
		}
		if len(store.course) != 1 {
			t.Fatalf("tickets stored = %d, want 1", len(store.course))
		}
	})

	t.Run("uniqueness race resolves to the winner", func(t *testing.T) {
		store := newFakeStore()
		store.insertRacing = true
		issuer := NewIssuer(store, nil)

		got, err := issuer.IssueCourseTicket(context.Background(), tenantID, holderID, trackID)
		if err != nil {
			t.Fatal(err)
		}
		if got.QRToken != "winner-token" {
			t.Fatalf("expected the concurrent winner's ticket, got %q", got.QRToken)
		}
		if len(store.course) != 1 {
			t.Fatalf("tickets stored = %d, want 1", len(store.course))
		}
	})
}

func TestIssueEventTicket(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	issuer := NewIssuer(store, nil)
	reg := models.EventRegistration{
		ID:       uuid.New(),
		HolderID: uuid.New(),
		EventID:  uuid.New(),
		Quantity: 3,
	}
	tenantID := uuid.New()

	var ids []uuid.UUID
	for unit := 0; unit < reg.Quantity; unit++ {
		tk, err := issuer.IssueEventTicket(context.Background(), tenantID, reg, unit)
		if err != nil {
			t.Fatal(err)
		}
		if tk.UnitIndex != unit {
			t.Fatalf("unit index = %d, want %d", tk.UnitIndex, unit)
		}
		ids = append(ids, tk.ID)
	}

	// Retry the whole loop: same tickets, no new rows.
	for unit := 0; unit < reg.Quantity; unit++ {
		tk, err := issuer.IssueEventTicket(context.Background(), tenantID, reg, unit)
		if err != nil {
			t.Fatal(err)
		}
		if tk.ID != ids[unit] {
			t.Fatalf("retry issued a new ticket for unit %d", unit)
		}
	}
	if len(store.event) != reg.Quantity {
		t.Fatalf("tickets stored = %d, want %d", len(store.event), reg.Quantity)
	}
}

func TestNewQRToken(t *testing.T) {
	t.Parallel()

	a, err := newQRToken()
	if err != nil {
		t.Fatal(err)
	}
	b, err := newQRToken()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("tokens must be unguessable, got a repeat")
	}
	if len(a) != 43 { // 32 bytes base64url without padding
		t.Fatalf("token length = %d, want 43", len(a))
	}
}
