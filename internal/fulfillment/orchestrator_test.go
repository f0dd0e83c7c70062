package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/enrollio/backend/internal/clock"
	"github.com/enrollio/backend/internal/models"
	"github.com/enrollio/backend/internal/notifications"
	"github.com/enrollio/backend/internal/orders"
)

type fakeStore struct {
	orders    map[uuid.UUID]*models.Order
	regs      map[uuid.UUID][]models.Registration
	eventRegs map[uuid.UUID][]models.EventRegistration
	items     map[uuid.UUID][]models.OrderLineItem
	tenant    *models.Tenant
	counter   int64
}

func newFakeStore(tenant *models.Tenant) *fakeStore {
	return &fakeStore{
		orders:    make(map[uuid.UUID]*models.Order),
		regs:      make(map[uuid.UUID][]models.Registration),
		eventRegs: make(map[uuid.UUID][]models.EventRegistration),
		items:     make(map[uuid.UUID][]models.OrderLineItem),
		tenant:    tenant,
	}
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) GetBySessionRef(_ context.Context, ref string) (*models.Order, error) {
	for _, o := range s.orders {
		if o.SessionRef == ref {
			cp := *o
			return &cp, nil
		}
	}
	return nil, orders.ErrNotFound
}

func (s *fakeStore) UpdateStatus(_ context.Context, o *models.Order) error {
	stored, ok := s.orders[o.ID]
	if !ok {
		return orders.ErrNotFound
	}
	*stored = *o
	return nil
}

func (s *fakeStore) NextOrderNumber(_ context.Context, _ uuid.UUID) (int64, error) {
	s.counter++
	return s.counter, nil
}

func (s *fakeStore) AssignOrderNumber(_ context.Context, orderID uuid.UUID, n int64) (int64, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return 0, orders.ErrNotFound
	}
	if o.OrderNumber == nil {
		o.OrderNumber = &n
	}
	return *o.OrderNumber, nil
}

func (s *fakeStore) ListLineItems(_ context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error) {
	return s.items[orderID], nil
}

func (s *fakeStore) ListRegistrations(_ context.Context, orderID uuid.UUID) ([]models.Registration, error) {
	return s.regs[orderID], nil
}

func (s *fakeStore) ListEventRegistrations(_ context.Context, orderID uuid.UUID) ([]models.EventRegistration, error) {
	return s.eventRegs[orderID], nil
}

func (s *fakeStore) SetRegistrationStatus(_ context.Context, id uuid.UUID, status string) error {
	for orderID, regs := range s.regs {
		for i := range regs {
			if regs[i].ID == id {
				s.regs[orderID][i].Status = status
				return nil
			}
		}
	}
	return orders.ErrNotFound
}

func (s *fakeStore) SetEventRegistrationStatus(_ context.Context, id uuid.UUID, status string) error {
	for orderID, regs := range s.eventRegs {
		for i := range regs {
			if regs[i].ID == id {
				s.eventRegs[orderID][i].Status = status
				return nil
			}
		}
	}
	return orders.ErrNotFound
}

func (s *fakeStore) GetTenant(_ context.Context, _ uuid.UUID) (*models.Tenant, error) {
	return s.tenant, nil
}

type fakeIssuer struct {
	course map[string]*models.Ticket
	event  map[string]*models.EventTicket
	seq    int64
}

func newFakeIssuer() *fakeIssuer {
	return &fakeIssuer{course: make(map[string]*models.Ticket), event: make(map[string]*models.EventTicket)}
}

func (f *fakeIssuer) IssueCourseTicket(_ context.Context, tenantID, holderID, trackID uuid.UUID) (*models.Ticket, error) {
	key := holderID.String() + "|" + trackID.String()
	if t, ok := f.course[key]; ok {
		return t, nil
	}
	f.seq++
	t := &models.Ticket{
		ID:             uuid.New(),
		TenantID:       tenantID,
		HolderID:       holderID,
		TrackID:        trackID,
		QRToken:        fmt.Sprintf("qr-%d", f.seq),
		Status:         models.TicketStatusActive,
		SequenceNumber: f.seq,
	}
	f.course[key] = t
	return t, nil
}

func (f *fakeIssuer) IssueEventTicket(_ context.Context, tenantID uuid.UUID, reg models.EventRegistration, unitIndex int) (*models.EventTicket, error) {
	key := fmt.Sprintf("%s|%d", reg.ID, unitIndex)
	if t, ok := f.event[key]; ok {
		return t, nil
	}
	f.seq++
	t := &models.EventTicket{
		ID:             uuid.New(),
		TenantID:       tenantID,
		RegistrationID: reg.ID,
		HolderID:       reg.HolderID,
		EventID:        reg.EventID,
		UnitIndex:      unitIndex,
		QRToken:        fmt.Sprintf("qr-%d", f.seq),
		Status:         models.TicketStatusActive,
		SequenceNumber: f.seq,
	}
	f.event[key] = t
	return t, nil
}

type fakeCollaborator struct {
	sends    []string
	receipts []notifications.Receipt
	fail     bool
}

func (f *fakeCollaborator) Send(_ context.Context, template string, _ uuid.UUID, _ map[string]string) error {
	if f.fail {
		return errors.New("smtp down")
	}
	f.sends = append(f.sends, template)
	return nil
}

func (f *fakeCollaborator) DeliverReceipt(_ context.Context, r notifications.Receipt) error {
	if f.fail {
		return errors.New("renderer down")
	}
	f.receipts = append(f.receipts, r)
	return nil
}

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func courseOrderFixture() (*fakeStore, *models.Order) {
	tenant := &models.Tenant{ID: uuid.New(), Name: "Atelier Nord", LegalName: "Atelier Nord BV", VATNumber: "NL123456789B01"}
	store := newFakeStore(tenant)
	o := &models.Order{
		ID:            uuid.New(),
		TenantID:      tenant.ID,
		PurchaserID:   uuid.New(),
		Kind:          models.OrderKindCoursePeriod,
		Status:        models.OrderStatusPendingPayment,
		SubtotalCents: 200000,
		TotalCents:    200000,
		Currency:      "EUR",
	}
	store.orders[o.ID] = o
	store.regs[o.ID] = []models.Registration{
		{ID: uuid.New(), OrderID: o.ID, HolderID: uuid.New(), TrackID: uuid.New(), Status: models.RegistrationStatusPending},
		{ID: uuid.New(), OrderID: o.ID, HolderID: uuid.New(), TrackID: uuid.New(), Status: models.RegistrationStatusPending},
	}
	store.items[o.ID] = []models.OrderLineItem{
		{OrderID: o.ID, Description: "Course seat", UnitPriceCents: 100000, Quantity: 2},
	}
	return store, o
}

func TestFulfill(t *testing.T) {
	t.Parallel()

	t.Run("first run pays order, activates children, issues tickets", func(t *testing.T) {
		store, o := courseOrderFixture()
		issuer := newFakeIssuer()
		collab := &fakeCollaborator{}
		orch := NewOrchestrator(store, issuer, collab, clock.NewFixed(testNow), nil)

		result, err := orch.Fulfill(context.Background(), o.ID, "cs_123", "ch_456")
		if err != nil {
			t.Fatal(err)
		}
		if result.AlreadyPaid {
			t.Fatal("first run must not report already paid")
		}
		if result.OrderNumber != 1 {
			t.Fatalf("order number = %d, want 1", result.OrderNumber)
		}
		if len(result.CourseTickets) != 2 {
			t.Fatalf("tickets issued = %d, want 2", len(result.CourseTickets))
		}

		stored := store.orders[o.ID]
		if stored.Status != models.OrderStatusPaid {
			t.Fatalf("order status = %s, want PAID", stored.Status)
		}
		if stored.SessionRef != "cs_123" || stored.ChargeRef != "ch_456" {
			t.Fatalf("provider refs not recorded: %+v", stored)
		}
		for _, reg := range store.regs[o.ID] {
			if reg.Status != models.RegistrationStatusActive {
				t.Fatalf("registration %s status = %s, want ACTIVE", reg.ID, reg.Status)
			}
		}
		if len(collab.receipts) != 1 || len(collab.sends) != 1 {
			t.Fatalf("collaborator calls = %d receipts, %d sends", len(collab.receipts), len(collab.sends))
		}
		if collab.receipts[0].Totals.TotalCents != 200000 {
			t.Fatalf("receipt total = %d", collab.receipts[0].Totals.TotalCents)
		}
	})

	t.Run("second run is idempotent and yields the same ticket set", func(t *testing.T) {
		store, o := courseOrderFixture()
		issuer := newFakeIssuer()
		collab := &fakeCollaborator{}
		orch := NewOrchestrator(store, issuer, collab, clock.NewFixed(testNow), nil)

		first, err := orch.Fulfill(context.Background(), o.ID, "cs_123", "ch_456")
		if err != nil {
			t.Fatal(err)
		}
		second, err := orch.Fulfill(context.Background(), o.ID, "cs_123", "ch_456")
		if err != nil {
			t.Fatal(err)
		}
		if !second.AlreadyPaid {
			t.Fatal("second run must take the fast idempotent path")
		}
		if len(second.CourseTickets) != len(first.CourseTickets) {
			t.Fatalf("ticket set changed: %d vs %d", len(second.CourseTickets), len(first.CourseTickets))
		}
		for i := range first.CourseTickets {
			if second.CourseTickets[i].ID != first.CourseTickets[i].ID {
				t.Fatal("retry produced different tickets")
			}
		}
		if len(issuer.course) != 2 {
			t.Fatalf("tickets stored = %d, want 2", len(issuer.course))
		}
		if *store.orders[o.ID].OrderNumber != 1 {
			t.Fatalf("order number changed on retry")
		}
		// Only the first run notifies.
		if len(collab.sends) != 1 {
			t.Fatalf("notifications sent = %d, want 1", len(collab.sends))
		}
	})

	t.Run("event order issues one ticket per purchased unit", func(t *testing.T) {
		tenant := &models.Tenant{ID: uuid.New(), Name: "Atelier Nord"}
		store := newFakeStore(tenant)
		o := &models.Order{
			ID:          uuid.New(),
			TenantID:    tenant.ID,
			PurchaserID: uuid.New(),
			Kind:        models.OrderKindEvent,
			Status:      models.OrderStatusPendingPayment,
			TotalCents:  9000,
			Currency:    "EUR",
		}
		store.orders[o.ID] = o
		reg := models.EventRegistration{
			ID: uuid.New(), OrderID: o.ID, HolderID: uuid.New(), EventID: uuid.New(),
			Quantity: 3, Status: models.RegistrationStatusPending,
		}
		store.eventRegs[o.ID] = []models.EventRegistration{reg}

		issuer := newFakeIssuer()
		orch := NewOrchestrator(store, issuer, &fakeCollaborator{}, clock.NewFixed(testNow), nil)

		result, err := orch.Fulfill(context.Background(), o.ID, "cs_evt", "")
		if err != nil {
			t.Fatal(err)
		}
		if len(result.EventTickets) != 3 {
			t.Fatalf("tickets = %d, want 3", len(result.EventTickets))
		}
		for i, tk := range result.EventTickets {
			if tk.UnitIndex != i {
				t.Fatalf("ticket %d has unit index %d", i, tk.UnitIndex)
			}
		}

		retry, err := orch.Fulfill(context.Background(), o.ID, "cs_evt", "")
		if err != nil {
			t.Fatal(err)
		}
		if len(retry.EventTickets) != 3 || len(issuer.event) != 3 {
			t.Fatal("retry duplicated or skipped event tickets")
		}
	})

	t.Run("missing order surfaces not found", func(t *testing.T) {
		store, _ := courseOrderFixture()
		orch := NewOrchestrator(store, newFakeIssuer(), &fakeCollaborator{}, clock.NewFixed(testNow), nil)

		_, err := orch.Fulfill(context.Background(), uuid.New(), "cs_x", "")
		if !errors.Is(err, orders.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("draft and cancelled orders surface invalid state", func(t *testing.T) {
		for _, status := range []string{models.OrderStatusDraft, models.OrderStatusCancelled, models.OrderStatusRefunded} {
			store, o := courseOrderFixture()
			store.orders[o.ID].Status = status
			orch := NewOrchestrator(store, newFakeIssuer(), &fakeCollaborator{}, clock.NewFixed(testNow), nil)

			_, err := orch.Fulfill(context.Background(), o.ID, "cs_x", "")
			if !errors.Is(err, ErrInvalidState) {
				t.Fatalf("status %s: expected ErrInvalidState, got %v", status, err)
			}
		}
	})

	t.Run("collaborator failure never rolls back fulfillment", func(t *testing.T) {
		store, o := courseOrderFixture()
		orch := NewOrchestrator(store, newFakeIssuer(), &fakeCollaborator{fail: true}, clock.NewFixed(testNow), nil)

		result, err := orch.Fulfill(context.Background(), o.ID, "cs_123", "")
		if err != nil {
			t.Fatalf("fulfillment must survive collaborator failure, got %v", err)
		}
		if store.orders[o.ID].Status != models.OrderStatusPaid {
			t.Fatal("order not PAID after collaborator failure")
		}
		if len(result.CourseTickets) != 2 {
			t.Fatal("tickets missing after collaborator failure")
		}
	})

	t.Run("cancelled child registrations are skipped", func(t *testing.T) {
		store, o := courseOrderFixture()
		store.regs[o.ID][1].Status = models.RegistrationStatusCancelled
		orch := NewOrchestrator(store, newFakeIssuer(), &fakeCollaborator{}, clock.NewFixed(testNow), nil)

		result, err := orch.Fulfill(context.Background(), o.ID, "cs_123", "")
		if err != nil {
			t.Fatal(err)
		}
		if len(result.CourseTickets) != 1 {
			t.Fatalf("tickets = %d, want 1", len(result.CourseTickets))
		}
		if store.regs[o.ID][1].Status != models.RegistrationStatusCancelled {
			t.Fatal("cancelled registration must stay cancelled")
		}
	})
}
