package encounter

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("encounter not found")
	// ErrActiveInpatientExists is returned when an insert would give a
	// patient a second active inpatient encounter.
	ErrActiveInpatientExists = errors.New("patient already has an active inpatient encounter")
)

type Repository interface {
	Create(ctx context.Context, enc *Encounter) error
	GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Encounter, error)
	Update(ctx context.Context, enc *Encounter) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Encounter, int, error)
	FindActiveInpatient(ctx context.Context, patientID uuid.UUID) (*Encounter, error)

	// Diagnoses
	AddDiagnosis(ctx context.Context, d *EncounterDiagnosis) error
	GetDiagnoses(ctx context.Context, encounterID uuid.UUID) ([]*EncounterDiagnosis, error)

	// Status History
	AddStatusHistory(ctx context.Context, sh *EncounterStatusHistory) error
	GetStatusHistory(ctx context.Context, encounterID uuid.UUID) ([]*EncounterStatusHistory, error)
}
