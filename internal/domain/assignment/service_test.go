package assignment

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/adt/internal/platform/apperr"
	"github.com/ehr/adt/internal/platform/db"
)

// -- Mock Repository --

type mockRepo struct {
	rows map[uuid.UUID]*Assignment
}

func newMockRepo() *mockRepo {
	return &mockRepo{rows: make(map[uuid.UUID]*Assignment)}
}

func (m *mockRepo) Create(_ context.Context, a *Assignment) error {
	for _, r := range m.rows {
		if r.IsOpen() && (r.BedID == a.BedID || r.EncounterID == a.EncounterID) {
			return ErrConflict
		}
	}
	cp := *a
	m.rows[a.ID] = &cp
	return nil
}

func (m *mockRepo) Release(_ context.Context, id uuid.UUID, at time.Time, by string, reason *string) error {
	r, ok := m.rows[id]
	if !ok || !r.IsOpen() {
		return ErrNotFound
	}
	r.ReleasedAt = &at
	r.ReleasedBy = &by
	r.ReleaseReason = reason
	return nil
}

func (m *mockRepo) find(match func(*Assignment) bool) *Assignment {
	for _, r := range m.rows {
		if r.IsOpen() && match(r) {
			cp := *r
			return &cp
		}
	}
	return nil
}

func (m *mockRepo) FindOpenForEncounter(_ context.Context, encounterID uuid.UUID) (*Assignment, error) {
	return m.find(func(a *Assignment) bool { return a.EncounterID == encounterID }), nil
}

func (m *mockRepo) FindOpenForBed(_ context.Context, bedID uuid.UUID) (*Assignment, error) {
	return m.find(func(a *Assignment) bool { return a.BedID == bedID }), nil
}

func (m *mockRepo) list(match func(*Assignment) bool) []*Assignment {
	var out []*Assignment
	for _, r := range m.rows {
		if match(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.Before(out[j].AssignedAt) })
	return out
}

func (m *mockRepo) ListByEncounter(_ context.Context, encounterID uuid.UUID) ([]*Assignment, error) {
	return m.list(func(a *Assignment) bool { return a.EncounterID == encounterID }), nil
}

func (m *mockRepo) ListByBed(_ context.Context, bedID uuid.UUID) ([]*Assignment, error) {
	return m.list(func(a *Assignment) bool { return a.BedID == bedID }), nil
}

func (m *mockRepo) CountOpenForBed(_ context.Context, bedID uuid.UUID) (int, error) {
	return len(m.list(func(a *Assignment) bool { return a.BedID == bedID && a.IsOpen() })), nil
}

func (m *mockRepo) CountOpenByBed(_ context.Context) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int)
	for _, r := range m.rows {
		if r.IsOpen() {
			counts[r.BedID]++
		}
	}
	return counts, nil
}

func txCtx() context.Context { return db.WithTxScope(context.Background()) }

// steppingClock returns a clock that advances one minute per call.
func steppingClock() func() time.Time {
	t := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

// -- Tests --

func TestCreateAssignment(t *testing.T) {
	repo := newMockRepo()
	l := NewLedger(repo)
	encID, bedID := uuid.New(), uuid.New()

	a, err := l.CreateAssignment(txCtx(), encID, bedID, "nurse.kim", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.IsOpen() || a.EncounterID != encID || a.BedID != bedID {
		t.Errorf("unexpected assignment: %+v", a)
	}
	if a.AssignedAt.IsZero() {
		t.Error("expected assigned_at to be set")
	}
}

func TestCreateAssignment_OutsideTransaction(t *testing.T) {
	l := NewLedger(newMockRepo())
	if _, err := l.CreateAssignment(context.Background(), uuid.New(), uuid.New(), "x", nil); !errors.Is(err, db.ErrNoTx) {
		t.Fatalf("expected ErrNoTx, got %v", err)
	}
}

func TestCreateAssignment_Validation(t *testing.T) {
	l := NewLedger(newMockRepo())
	cases := []struct {
		name  string
		enc   uuid.UUID
		bed   uuid.UUID
		by    string
		field string
	}{
		{"missing encounter", uuid.Nil, uuid.New(), "x", "encounter_id"},
		{"missing bed", uuid.New(), uuid.Nil, "x", "bed_id"},
		{"missing actor", uuid.New(), uuid.New(), "", "assigned_by"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.CreateAssignment(txCtx(), tc.enc, tc.bed, tc.by, nil)
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Errorf("expected validation error on %s, got %v", tc.field, err)
			}
		})
	}
}

func TestCreateAssignment_BedAlreadyOpen(t *testing.T) {
	l := NewLedger(newMockRepo())
	bedID := uuid.New()
	if _, err := l.CreateAssignment(txCtx(), uuid.New(), bedID, "x", nil); err != nil {
		t.Fatalf("setup: %v", err)
	}
	_, err := l.CreateAssignment(txCtx(), uuid.New(), bedID, "x", nil)
	var ce *apperr.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestCreateAssignment_EncounterAlreadyOpen(t *testing.T) {
	l := NewLedger(newMockRepo())
	encID := uuid.New()
	if _, err := l.CreateAssignment(txCtx(), encID, uuid.New(), "x", nil); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := l.CreateAssignment(txCtx(), encID, uuid.New(), "x", nil); apperr.Kind(err) != "conflict" {
		t.Fatalf("expected conflict, got %v", err)
	}
}

// A unique violation from the store surfaces as a conflict too.
type racingRepo struct{ *mockRepo }

func (r racingRepo) Create(context.Context, *Assignment) error { return ErrConflict }

func TestCreateAssignment_StoreConflict(t *testing.T) {
	l := NewLedger(racingRepo{newMockRepo()})
	if _, err := l.CreateAssignment(txCtx(), uuid.New(), uuid.New(), "x", nil); apperr.Kind(err) != "conflict" {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestReleaseAssignment(t *testing.T) {
	repo := newMockRepo()
	l := NewLedger(repo)
	l.SetClock(steppingClock())
	a, _ := l.CreateAssignment(txCtx(), uuid.New(), uuid.New(), "x", nil)

	reason := "transfer to ICU-2"
	if err := l.ReleaseAssignment(txCtx(), a.ID, "nurse.kim", &reason); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := repo.rows[a.ID]
	if got.IsOpen() {
		t.Fatal("expected assignment to be released")
	}
	if !got.ReleasedAt.After(got.AssignedAt) {
		t.Errorf("released_at %v should follow assigned_at %v", got.ReleasedAt, got.AssignedAt)
	}
	if *got.ReleaseReason != reason {
		t.Errorf("unexpected reason %q", *got.ReleaseReason)
	}
}

func TestReleaseAssignmentAt(t *testing.T) {
	repo := newMockRepo()
	l := NewLedger(repo)
	a, _ := l.CreateAssignment(txCtx(), uuid.New(), uuid.New(), "x", nil)

	at := a.AssignedAt.Add(90 * time.Minute)
	if err := l.ReleaseAssignmentAt(txCtx(), a.ID, at, "dr.house", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := repo.rows[a.ID]
	if got.ReleasedAt == nil || !got.ReleasedAt.Equal(at) {
		t.Errorf("released_at = %v, want %v", got.ReleasedAt, at)
	}
	if err := l.ReleaseAssignmentAt(context.Background(), a.ID, at, "x", nil); !errors.Is(err, db.ErrNoTx) {
		t.Errorf("expected ErrNoTx outside a transaction, got %v", err)
	}
}

func TestReleaseAssignment_Twice(t *testing.T) {
	l := NewLedger(newMockRepo())
	a, _ := l.CreateAssignment(txCtx(), uuid.New(), uuid.New(), "x", nil)
	if err := l.ReleaseAssignment(txCtx(), a.ID, "x", nil); err != nil {
		t.Fatalf("first release: %v", err)
	}
	err := l.ReleaseAssignment(txCtx(), a.ID, "x", nil)
	var nf *apperr.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestReleaseAssignment_Unknown(t *testing.T) {
	l := NewLedger(newMockRepo())
	if err := l.ReleaseAssignment(txCtx(), uuid.New(), "x", nil); apperr.Kind(err) != "not_found" {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestHistory(t *testing.T) {
	l := NewLedger(newMockRepo())
	l.SetClock(steppingClock())
	encID := uuid.New()
	b1, b2 := uuid.New(), uuid.New()

	first, _ := l.CreateAssignment(txCtx(), encID, b1, "x", nil)
	if err := l.ReleaseAssignment(txCtx(), first.ID, "x", nil); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := l.CreateAssignment(txCtx(), encID, b2, "x", nil); err != nil {
		t.Fatalf("second assignment: %v", err)
	}

	hist, err := l.History(context.Background(), encID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(hist))
	}
	if hist[0].BedID != b1 || hist[0].IsOpen() {
		t.Errorf("first row should be the released B1 assignment: %+v", hist[0])
	}
	if hist[1].BedID != b2 || !hist[1].IsOpen() {
		t.Errorf("second row should be the open B2 assignment: %+v", hist[1])
	}

	open, _ := l.FindOpenForEncounter(context.Background(), encID)
	if open == nil || open.BedID != b2 {
		t.Errorf("expected open assignment on B2, got %+v", open)
	}
	n, _ := l.CountOpenForBed(context.Background(), b1)
	if n != 0 {
		t.Errorf("expected no open rows for B1, got %d", n)
	}
	bh, _ := l.BedHistory(context.Background(), b1)
	if len(bh) != 1 {
		t.Errorf("expected 1 row in B1 history, got %d", len(bh))
	}
	counts, _ := l.OpenCounts(context.Background())
	if counts[b2] != 1 || counts[b1] != 0 {
		t.Errorf("unexpected open counts: %v", counts)
	}
}
