package identity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/ehr/adt/internal/platform/apperr"
	"github.com/ehr/adt/internal/platform/db"
)

// -- Mock Repositories --

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
	locked   []uuid.UUID
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) add(mrn string, active bool) *Patient {
	p := &Patient{ID: uuid.New(), MRN: mrn, FirstName: "Ana", LastName: "Lima", Active: active}
	m.patients[p.ID] = p
	return p
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockPatientRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Patient, error) {
	m.locked = append(m.locked, id)
	return m.GetByID(ctx, id)
}

func (m *mockPatientRepo) GetByMRN(_ context.Context, mrn string) (*Patient, error) {
	for _, p := range m.patients {
		if p.MRN == mrn {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

type mockPractRepo struct {
	practitioners map[uuid.UUID]*Practitioner
}

func newMockPractRepo() *mockPractRepo {
	return &mockPractRepo{practitioners: make(map[uuid.UUID]*Practitioner)}
}

func (m *mockPractRepo) add(code, first, last string, active bool) *Practitioner {
	p := &Practitioner{ID: uuid.New(), Code: code, FirstName: first, LastName: last, Active: active}
	m.practitioners[p.ID] = p
	return p
}

func (m *mockPractRepo) GetByID(_ context.Context, id uuid.UUID) (*Practitioner, error) {
	p, ok := m.practitioners[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockPractRepo) GetByCode(_ context.Context, code string) (*Practitioner, error) {
	for _, p := range m.practitioners {
		if p.Code == code {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockPractRepo) FindByName(_ context.Context, name string) ([]*Practitioner, error) {
	var out []*Practitioner
	for _, p := range m.practitioners {
		if strings.EqualFold(p.FullName(), strings.TrimSpace(name)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func newTestResolver() (*Resolver, *mockPatientRepo, *mockPractRepo) {
	pr, dr := newMockPatientRepo(), newMockPractRepo()
	return NewResolver(pr, dr), pr, dr
}

func expectValidation(t *testing.T, err error, field string) {
	t.Helper()
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field != field {
		t.Errorf("expected field %q, got %q", field, ve.Field)
	}
}

// -- Patient --

func TestResolvePatient(t *testing.T) {
	r, pr, _ := newTestResolver()
	p := pr.add("MRN-1", true)

	got, err := r.ResolvePatient(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.MRN != "MRN-1" {
		t.Errorf("expected MRN-1, got %s", got.MRN)
	}
}

func TestResolvePatient_Errors(t *testing.T) {
	r, pr, _ := newTestResolver()
	inactive := pr.add("MRN-2", false)

	_, err := r.ResolvePatient(context.Background(), uuid.Nil)
	expectValidation(t, err, "patient_id")
	_, err = r.ResolvePatient(context.Background(), uuid.New())
	expectValidation(t, err, "patient_id")
	_, err = r.ResolvePatient(context.Background(), inactive.ID)
	expectValidation(t, err, "patient_id")
}

func TestLockPatient(t *testing.T) {
	r, pr, _ := newTestResolver()
	p := pr.add("MRN-1", true)

	if _, err := r.LockPatient(context.Background(), p.ID); !errors.Is(err, db.ErrNoTx) {
		t.Fatalf("expected ErrNoTx outside a transaction, got %v", err)
	}
	if _, err := r.LockPatient(db.WithTxScope(context.Background()), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pr.locked) != 1 || pr.locked[0] != p.ID {
		t.Errorf("expected patient row lock, got %v", pr.locked)
	}
}

// -- Physician --

func TestResolvePhysician_ByID(t *testing.T) {
	r, _, dr := newTestResolver()
	doc := dr.add("DR1", "Grace", "Hopper", true)

	got, err := r.ResolvePhysician(context.Background(), PhysicianRef{ID: &doc.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != doc.ID {
		t.Errorf("expected %s, got %s", doc.ID, got.ID)
	}
}

func TestResolvePhysician_ByCode(t *testing.T) {
	r, _, dr := newTestResolver()
	doc := dr.add("DR1", "Grace", "Hopper", true)

	got, err := r.ResolvePhysician(context.Background(), PhysicianRef{Code: " DR1 "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != doc.ID {
		t.Errorf("expected %s, got %s", doc.ID, got.ID)
	}
}

func TestResolvePhysician_ByName(t *testing.T) {
	r, _, dr := newTestResolver()
	doc := dr.add("DR1", "Grace", "Hopper", true)
	dr.add("DR2", "Grace", "Hopper", false)

	got, err := r.ResolvePhysician(context.Background(), PhysicianRef{Name: "grace hopper"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != doc.ID {
		t.Errorf("expected the only active match %s, got %s", doc.ID, got.ID)
	}
}

func TestResolvePhysician_AmbiguousName(t *testing.T) {
	r, _, dr := newTestResolver()
	dr.add("DR1", "John", "Smith", true)
	dr.add("DR2", "John", "Smith", true)

	_, err := r.ResolvePhysician(context.Background(), PhysicianRef{Name: "John Smith"})
	expectValidation(t, err, "physician")
}

func TestResolvePhysician_UnknownIDFallsBackToCode(t *testing.T) {
	r, _, dr := newTestResolver()
	doc := dr.add("DR1", "Grace", "Hopper", true)
	missing := uuid.New()

	got, err := r.ResolvePhysician(context.Background(), PhysicianRef{ID: &missing, Code: "DR1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != doc.ID {
		t.Errorf("expected %s, got %s", doc.ID, got.ID)
	}

	got, err = r.ResolvePhysician(context.Background(), PhysicianRef{ID: &missing, Code: "NOPE", Name: "Grace Hopper"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != doc.ID {
		t.Errorf("expected name fallback to %s, got %s", doc.ID, got.ID)
	}
}

func TestResolvePhysician_IDWinsOverCode(t *testing.T) {
	r, _, dr := newTestResolver()
	byID := dr.add("DR1", "Grace", "Hopper", true)
	dr.add("DR2", "Alan", "Turing", true)

	got, err := r.ResolvePhysician(context.Background(), PhysicianRef{ID: &byID.ID, Code: "DR2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != byID.ID {
		t.Errorf("expected id match %s, got %s", byID.ID, got.ID)
	}
}

func TestResolvePhysician_InactiveIDDoesNotFallBack(t *testing.T) {
	r, _, dr := newTestResolver()
	old := dr.add("DR9", "Old", "Timer", false)
	dr.add("DR1", "Grace", "Hopper", true)

	_, err := r.ResolvePhysician(context.Background(), PhysicianRef{ID: &old.ID, Code: "DR1"})
	expectValidation(t, err, "physician")
}

func TestResolvePhysician_UnknownIDOnly(t *testing.T) {
	r, _, _ := newTestResolver()
	missing := uuid.New()

	_, err := r.ResolvePhysician(context.Background(), PhysicianRef{ID: &missing})
	expectValidation(t, err, "physician")
}

func TestResolvePhysician_Errors(t *testing.T) {
	r, _, dr := newTestResolver()
	dr.add("DR9", "Old", "Timer", false)

	cases := []struct {
		name string
		ref  PhysicianRef
	}{
		{"empty", PhysicianRef{}},
		{"unknown code", PhysicianRef{Code: "NOPE"}},
		{"unknown name", PhysicianRef{Name: "Nobody Here"}},
		{"inactive", PhysicianRef{Code: "DR9"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.ResolvePhysician(context.Background(), tc.ref)
			expectValidation(t, err, "physician")
		})
	}
}

func TestPhysicianRefIsZero(t *testing.T) {
	if !(PhysicianRef{Code: "  "}).IsZero() {
		t.Error("blank code should count as zero")
	}
	id := uuid.New()
	if (PhysicianRef{ID: &id}).IsZero() {
		t.Error("ref with id is not zero")
	}
}
