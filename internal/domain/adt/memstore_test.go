package adt

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/adt/internal/domain/assignment"
	"github.com/ehr/adt/internal/domain/bed"
	"github.com/ehr/adt/internal/domain/encounter"
	"github.com/ehr/adt/internal/domain/identity"
	"github.com/ehr/adt/internal/platform/db"
	"github.com/ehr/adt/internal/platform/events"
)

// store is an in-memory stand-in for the ADT tables. memTx serializes
// transactions and restores a snapshot on rollback, which is what row
// locks plus rollback give against Postgres for the flows under test.
type store struct {
	mu sync.Mutex

	beds          map[uuid.UUID]bed.Bed
	assignments   map[uuid.UUID]assignment.Assignment
	assignOrder   []uuid.UUID
	encounters    map[uuid.UUID]encounter.Encounter
	diagnoses     []encounter.EncounterDiagnosis
	statusHistory []encounter.EncounterStatusHistory
	patients      map[uuid.UUID]identity.Patient
	practitioners map[uuid.UUID]identity.Practitioner

	bedLockErr   error
	diagnosisErr error
}

func newStore() *store {
	return &store{
		beds:          map[uuid.UUID]bed.Bed{},
		assignments:   map[uuid.UUID]assignment.Assignment{},
		encounters:    map[uuid.UUID]encounter.Encounter{},
		patients:      map[uuid.UUID]identity.Patient{},
		practitioners: map[uuid.UUID]identity.Practitioner{},
	}
}

type snapshot struct {
	beds          map[uuid.UUID]bed.Bed
	assignments   map[uuid.UUID]assignment.Assignment
	assignOrder   []uuid.UUID
	encounters    map[uuid.UUID]encounter.Encounter
	diagnoses     []encounter.EncounterDiagnosis
	statusHistory []encounter.EncounterStatusHistory
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		beds:          copyMap(s.beds),
		assignments:   copyMap(s.assignments),
		assignOrder:   append([]uuid.UUID(nil), s.assignOrder...),
		encounters:    copyMap(s.encounters),
		diagnoses:     append([]encounter.EncounterDiagnosis(nil), s.diagnoses...),
		statusHistory: append([]encounter.EncounterStatusHistory(nil), s.statusHistory...),
	}
}

func (s *store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beds = snap.beds
	s.assignments = snap.assignments
	s.assignOrder = snap.assignOrder
	s.encounters = snap.encounters
	s.diagnoses = snap.diagnoses
	s.statusHistory = snap.statusHistory
}

type memTx struct {
	mu sync.Mutex
	s  *store
}

func (t *memTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.InTx(ctx) {
		return fn(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.s.snapshot()
	if err := fn(db.WithTxScope(ctx)); err != nil {
		t.s.restore(snap)
		return err
	}
	return nil
}

// ---- bed.Repository ----

type bedRepo struct{ s *store }

func (r bedRepo) GetByID(_ context.Context, id uuid.UUID) (*bed.Bed, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.beds[id]
	if !ok {
		return nil, bed.ErrNotFound
	}
	return &b, nil
}

func (r bedRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*bed.Bed, error) {
	if r.s.bedLockErr != nil {
		return nil, r.s.bedLockErr
	}
	return r.GetByID(ctx, id)
}

func (r bedRepo) SetStatus(_ context.Context, id uuid.UUID, status bed.Status) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.beds[id]
	if !ok {
		return bed.ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = time.Now()
	r.s.beds[id] = b
	return nil
}

func (r bedRepo) List(ctx context.Context, f bed.Filter, limit, offset int) ([]*bed.Bed, int, error) {
	all, _ := r.ListAll(ctx)
	var out []*bed.Bed
	for _, b := range all {
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.Type != "" && b.Type != f.Type {
			continue
		}
		if f.WardID != nil && b.WardID != *f.WardID {
			continue
		}
		out = append(out, b)
	}
	total := len(out)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (r bedRepo) ListAll(_ context.Context) ([]*bed.Bed, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*bed.Bed, 0, len(r.s.beds))
	for _, b := range r.s.beds {
		b := b
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BedNumber < out[j].BedNumber })
	return out, nil
}

// ---- assignment.Repository ----

type assignRepo struct{ s *store }

func (r assignRepo) Create(_ context.Context, a *assignment.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.assignments {
		if x.IsOpen() && (x.BedID == a.BedID || x.EncounterID == a.EncounterID) {
			return assignment.ErrConflict
		}
	}
	r.s.assignments[a.ID] = *a
	r.s.assignOrder = append(r.s.assignOrder, a.ID)
	return nil
}

func (r assignRepo) Release(_ context.Context, id uuid.UUID, at time.Time, by string, reason *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[id]
	if !ok || !a.IsOpen() {
		return assignment.ErrNotFound
	}
	a.ReleasedAt = &at
	a.ReleasedBy = &by
	a.ReleaseReason = reason
	r.s.assignments[id] = a
	return nil
}

func (r assignRepo) ordered(match func(assignment.Assignment) bool) []*assignment.Assignment {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*assignment.Assignment
	for _, id := range r.s.assignOrder {
		a := r.s.assignments[id]
		if match(a) {
			out = append(out, &a)
		}
	}
	return out
}

func (r assignRepo) findOpen(match func(assignment.Assignment) bool) *assignment.Assignment {
	for _, a := range r.ordered(match) {
		if a.IsOpen() {
			return a
		}
	}
	return nil
}

func (r assignRepo) FindOpenForEncounter(_ context.Context, encounterID uuid.UUID) (*assignment.Assignment, error) {
	return r.findOpen(func(a assignment.Assignment) bool { return a.EncounterID == encounterID }), nil
}

func (r assignRepo) FindOpenForBed(_ context.Context, bedID uuid.UUID) (*assignment.Assignment, error) {
	return r.findOpen(func(a assignment.Assignment) bool { return a.BedID == bedID }), nil
}

func (r assignRepo) ListByEncounter(_ context.Context, encounterID uuid.UUID) ([]*assignment.Assignment, error) {
	return r.ordered(func(a assignment.Assignment) bool { return a.EncounterID == encounterID }), nil
}

func (r assignRepo) ListByBed(_ context.Context, bedID uuid.UUID) ([]*assignment.Assignment, error) {
	return r.ordered(func(a assignment.Assignment) bool { return a.BedID == bedID }), nil
}

func (r assignRepo) CountOpenForBed(ctx context.Context, bedID uuid.UUID) (int, error) {
	counts, _ := r.CountOpenByBed(ctx)
	return counts[bedID], nil
}

func (r assignRepo) CountOpenByBed(_ context.Context) (map[uuid.UUID]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[uuid.UUID]int{}
	for _, a := range r.s.assignments {
		if a.IsOpen() {
			out[a.BedID]++
		}
	}
	return out, nil
}

// ---- encounter.Repository ----

type encRepo struct{ s *store }

func (r encRepo) Create(_ context.Context, enc *encounter.Encounter) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if enc.Type == encounter.TypeInpatient {
		for _, e := range r.s.encounters {
			if e.PatientID == enc.PatientID && e.IsActive() && e.Type == encounter.TypeInpatient {
				return encounter.ErrActiveInpatientExists
			}
		}
	}
	enc.CreatedAt = time.Now()
	enc.UpdatedAt = enc.CreatedAt
	r.s.encounters[enc.ID] = *enc
	return nil
}

func (r encRepo) GetByID(_ context.Context, id uuid.UUID) (*encounter.Encounter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.encounters[id]
	if !ok {
		return nil, encounter.ErrNotFound
	}
	return &e, nil
}

func (r encRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*encounter.Encounter, error) {
	return r.GetByID(ctx, id)
}

func (r encRepo) Update(_ context.Context, enc *encounter.Encounter) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.encounters[enc.ID]; !ok {
		return encounter.ErrNotFound
	}
	enc.UpdatedAt = time.Now()
	r.s.encounters[enc.ID] = *enc
	return nil
}

func (r encRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*encounter.Encounter, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*encounter.Encounter
	for _, e := range r.s.encounters {
		if e.PatientID == patientID {
			e := e
			out = append(out, &e)
		}
	}
	return out, len(out), nil
}

func (r encRepo) FindActiveInpatient(_ context.Context, patientID uuid.UUID) (*encounter.Encounter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.encounters {
		if e.PatientID == patientID && e.IsActive() && e.Type == encounter.TypeInpatient {
			return &e, nil
		}
	}
	return nil, nil
}

func (r encRepo) AddDiagnosis(_ context.Context, d *encounter.EncounterDiagnosis) error {
	if r.s.diagnosisErr != nil {
		return r.s.diagnosisErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	r.s.diagnoses = append(r.s.diagnoses, *d)
	return nil
}

func (r encRepo) GetDiagnoses(_ context.Context, encounterID uuid.UUID) ([]*encounter.EncounterDiagnosis, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*encounter.EncounterDiagnosis
	for _, d := range r.s.diagnoses {
		if d.EncounterID == encounterID {
			d := d
			out = append(out, &d)
		}
	}
	return out, nil
}

func (r encRepo) AddStatusHistory(_ context.Context, sh *encounter.EncounterStatusHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sh.ID = uuid.New()
	r.s.statusHistory = append(r.s.statusHistory, *sh)
	return nil
}

func (r encRepo) GetStatusHistory(_ context.Context, encounterID uuid.UUID) ([]*encounter.EncounterStatusHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*encounter.EncounterStatusHistory
	for _, h := range r.s.statusHistory {
		if h.EncounterID == encounterID {
			h := h
			out = append(out, &h)
		}
	}
	return out, nil
}

// ---- identity repositories ----

type patientRepo struct{ s *store }

func (r patientRepo) GetByID(_ context.Context, id uuid.UUID) (*identity.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &p, nil
}

func (r patientRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*identity.Patient, error) {
	return r.GetByID(ctx, id)
}

func (r patientRepo) GetByMRN(_ context.Context, mrn string) (*identity.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.patients {
		if p.MRN == mrn {
			return &p, nil
		}
	}
	return nil, identity.ErrNotFound
}

type practRepo struct{ s *store }

func (r practRepo) GetByID(_ context.Context, id uuid.UUID) (*identity.Practitioner, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.practitioners[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &p, nil
}

func (r practRepo) GetByCode(_ context.Context, code string) (*identity.Practitioner, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.practitioners {
		if p.Code == code {
			return &p, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (r practRepo) FindByName(_ context.Context, name string) ([]*identity.Practitioner, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*identity.Practitioner
	for _, p := range r.s.practitioners {
		if strings.EqualFold(p.FullName(), name) {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

// ---- publisher and observer ----

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type recordingObserver struct {
	mu         sync.Mutex
	outcomes   map[string][]error
	eventErrs  int
	mismatches int
}

func (o *recordingObserver) ObserveOperation(op string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[string][]error{}
	}
	o.outcomes[op] = append(o.outcomes[op], err)
}

func (o *recordingObserver) ObserveEvent(_ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.eventErrs++
	}
}

func (o *recordingObserver) SetAuditMismatches(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mismatches = n
}
