package encounter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/adt/internal/platform/apperr"
	"github.com/ehr/adt/internal/platform/db"
)

// Manager owns encounter state transitions: active at admission, completed
// at discharge. Writes must run inside a transaction.
type Manager struct {
	repo Repository
	now  func() time.Time
}

func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock replaces the time source used for admission and discharge
// timestamps.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// CreateEncounter opens an active encounter admitted now. Patient and
// physician must already be resolved by the caller.
func (m *Manager) CreateEncounter(ctx context.Context, in NewEncounter) (*Encounter, error) {
	if !db.InTx(ctx) {
		return nil, db.ErrNoTx
	}
	if in.PatientID == uuid.Nil {
		return nil, apperr.Validation("patient_id", "is required")
	}
	if in.AttendingPhysicianID == uuid.Nil {
		return nil, apperr.Validation("physician", "is required")
	}
	if in.Type == "" {
		in.Type = TypeInpatient
	}
	if !in.Type.Valid() {
		return nil, apperr.Validation("encounter_type", "invalid encounter type %q", in.Type)
	}

	enc := &Encounter{
		ID:                   uuid.New(),
		PatientID:            in.PatientID,
		Type:                 in.Type,
		Status:               StatusActive,
		PriorityCode:         in.PriorityCode,
		Severity:             in.Severity,
		Acuity:               in.Acuity,
		ChiefComplaint:       in.ChiefComplaint,
		AttendingPhysicianID: in.AttendingPhysicianID,
		AdmittedAt:           m.now(),
	}
	if err := m.repo.Create(ctx, enc); err != nil {
		if errors.Is(err, ErrActiveInpatientExists) {
			return nil, apperr.Conflict("patient %s already has an active inpatient encounter", in.PatientID)
		}
		return nil, err
	}
	return enc, nil
}

// Discharge moves an active, dischargeable encounter to completed. The
// previous status period is appended to the status history.
func (m *Manager) Discharge(ctx context.Context, id uuid.UUID, d DischargeDetails) (*Encounter, error) {
	if !db.InTx(ctx) {
		return nil, db.ErrNoTx
	}
	enc, err := m.LockEncounter(ctx, id)
	if err != nil {
		return nil, err
	}
	if !enc.IsActive() {
		return nil, &apperr.InvalidStateError{Resource: "encounter", ID: id.String(), State: string(enc.Status)}
	}
	if !enc.Type.Dischargeable() {
		return nil, &apperr.InvalidStateError{
			Resource: "encounter",
			ID:       id.String(),
			State:    string(enc.Status),
			Reason:   fmt.Sprintf("%s encounters are not discharged", enc.Type),
		}
	}

	at := m.now()
	if d.At != nil {
		at = d.At.UTC()
	}
	if at.Before(enc.AdmittedAt) {
		return nil, apperr.Validation("discharged_at", "must not be before admission at %s", enc.AdmittedAt.Format(time.RFC3339))
	}

	history := &EncounterStatusHistory{
		EncounterID: id,
		Status:      enc.Status,
		PeriodStart: enc.AdmittedAt,
		PeriodEnd:   &at,
	}
	if err := m.repo.AddStatusHistory(ctx, history); err != nil {
		return nil, fmt.Errorf("add status history: %w", err)
	}

	enc.Status = StatusCompleted
	enc.DischargedAt = &at
	enc.DischargeSummary = d.Summary
	enc.DischargeDisposition = d.Disposition
	if err := m.repo.Update(ctx, enc); err != nil {
		return nil, wrapNotFound(err, id)
	}
	return enc, nil
}

// GetActiveInpatientEncounter returns the patient's active inpatient
// encounter, or nil when there is none.
func (m *Manager) GetActiveInpatientEncounter(ctx context.Context, patientID uuid.UUID) (*Encounter, error) {
	return m.repo.FindActiveInpatient(ctx, patientID)
}

func (m *Manager) GetEncounter(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	enc, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, id)
	}
	return enc, nil
}

// LockEncounter reads the encounter under an exclusive row lock held until
// the transaction ends.
func (m *Manager) LockEncounter(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	if !db.InTx(ctx) {
		return nil, db.ErrNoTx
	}
	enc, err := m.repo.GetForUpdate(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, id)
	}
	return enc, nil
}

func (m *Manager) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Encounter, int, error) {
	return m.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (m *Manager) AddDiagnosis(ctx context.Context, d *EncounterDiagnosis) error {
	if d.EncounterID == uuid.Nil {
		return apperr.Validation("encounter_id", "is required")
	}
	if d.Type == "" {
		d.Type = DiagnosisPrimary
	}
	if d.Type != DiagnosisPrimary && d.Type != DiagnosisSecondary {
		return apperr.Validation("diagnosis_type", "invalid diagnosis type %q", d.Type)
	}
	if d.Description == "" {
		return apperr.Validation("diagnosis", "description is required")
	}
	if err := m.repo.AddDiagnosis(ctx, d); err != nil {
		return fmt.Errorf("add diagnosis: %w", err)
	}
	return nil
}

func (m *Manager) GetDiagnoses(ctx context.Context, encounterID uuid.UUID) ([]*EncounterDiagnosis, error) {
	return m.repo.GetDiagnoses(ctx, encounterID)
}

func (m *Manager) GetStatusHistory(ctx context.Context, encounterID uuid.UUID) ([]*EncounterStatusHistory, error) {
	return m.repo.GetStatusHistory(ctx, encounterID)
}

func wrapNotFound(err error, id uuid.UUID) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("encounter", id.String())
	}
	return fmt.Errorf("encounter %s: %w", id, err)
}
