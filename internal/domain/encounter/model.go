package encounter

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeInpatient  Type = "inpatient"
	TypeEmergency  Type = "emergency"
	TypeOutpatient Type = "outpatient"
)

func (t Type) Valid() bool {
	return t == TypeInpatient || t == TypeEmergency || t == TypeOutpatient
}

// Dischargeable reports whether encounters of this type go through the
// discharge flow.
func (t Type) Dischargeable() bool {
	return t == TypeInpatient || t == TypeEmergency
}

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Encounter maps to the encounter table.
type Encounter struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	PatientID            uuid.UUID  `db:"patient_id" json:"patient_id"`
	Type                 Type       `db:"encounter_type" json:"encounter_type"`
	Status               Status     `db:"status" json:"status"`
	PriorityCode         *string    `db:"priority_code" json:"priority_code,omitempty"`
	Severity             *string    `db:"severity" json:"severity,omitempty"`
	Acuity               *string    `db:"acuity" json:"acuity,omitempty"`
	ChiefComplaint       *string    `db:"chief_complaint" json:"chief_complaint,omitempty"`
	AttendingPhysicianID uuid.UUID  `db:"attending_physician_id" json:"attending_physician_id"`
	AdmittedAt           time.Time  `db:"admitted_at" json:"admitted_at"`
	DischargedAt         *time.Time `db:"discharged_at" json:"discharged_at,omitempty"`
	DischargeSummary     *string    `db:"discharge_summary" json:"discharge_summary,omitempty"`
	DischargeDisposition *string    `db:"discharge_disposition" json:"discharge_disposition,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

func (e *Encounter) IsActive() bool { return e.Status == StatusActive }

// NewEncounter carries the admission details needed to open an encounter.
type NewEncounter struct {
	PatientID            uuid.UUID
	Type                 Type
	PriorityCode         *string
	Severity             *string
	Acuity               *string
	ChiefComplaint       *string
	AttendingPhysicianID uuid.UUID
}

// DischargeDetails are the optional fields recorded at discharge. A nil At
// means now.
type DischargeDetails struct {
	At          *time.Time `json:"discharged_at,omitempty"`
	Summary     *string    `json:"summary,omitempty"`
	Disposition *string    `json:"disposition,omitempty"`
}

type DiagnosisType string

const (
	DiagnosisPrimary   DiagnosisType = "primary"
	DiagnosisSecondary DiagnosisType = "secondary"
)

// EncounterDiagnosis maps to the encounter_diagnosis table.
type EncounterDiagnosis struct {
	ID          uuid.UUID     `db:"id" json:"id"`
	EncounterID uuid.UUID     `db:"encounter_id" json:"encounter_id"`
	Type        DiagnosisType `db:"diagnosis_type" json:"diagnosis_type"`
	Code        *string       `db:"code" json:"code,omitempty"`
	Description string        `db:"description" json:"description"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}

// EncounterStatusHistory maps to the encounter_status_history table.
type EncounterStatusHistory struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	EncounterID uuid.UUID  `db:"encounter_id" json:"encounter_id"`
	Status      Status     `db:"status" json:"status"`
	PeriodStart time.Time  `db:"period_start" json:"period_start"`
	PeriodEnd   *time.Time `db:"period_end" json:"period_end,omitempty"`
}
