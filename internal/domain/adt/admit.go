package adt

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/adt/internal/domain/bed"
	"github.com/ehr/adt/internal/domain/encounter"
	"github.com/ehr/adt/internal/domain/identity"
	"github.com/ehr/adt/internal/platform/apperr"
	"github.com/ehr/adt/internal/platform/events"
)

// DiagnosisInput is the optional admitting diagnosis.
type DiagnosisInput struct {
	Code        *string `json:"code,omitempty"`
	Description string  `json:"description"`
}

type AdmitRequest struct {
	PatientID      uuid.UUID             `json:"patient_id"`
	BedID          uuid.UUID             `json:"bed_id"`
	Physician      identity.PhysicianRef `json:"physician"`
	Type           encounter.Type        `json:"encounter_type,omitempty"`
	PriorityCode   *string               `json:"priority_code,omitempty"`
	Severity       *string               `json:"severity,omitempty"`
	Acuity         *string               `json:"acuity,omitempty"`
	ChiefComplaint *string               `json:"chief_complaint,omitempty"`
	Diagnosis      *DiagnosisInput       `json:"diagnosis,omitempty"`
	Notes          *string               `json:"notes,omitempty"`
	AssignedBy     string                `json:"-"`
}

type AdmitResult struct {
	EncounterID  uuid.UUID `json:"encounter_id"`
	BedID        uuid.UUID `json:"bed_id"`
	BedNumber    string    `json:"bed_number"`
	WardCode     string    `json:"ward_code"`
	WardName     string    `json:"ward_name"`
	AssignmentID uuid.UUID `json:"assignment_id"`
}

// Admit opens an encounter for the patient and places them in the bed.
// Two concurrent admissions to one bed produce one success and one
// BedUnavailableError.
func (o *Orchestrator) Admit(ctx context.Context, req AdmitRequest) (*AdmitResult, error) {
	if req.BedID == uuid.Nil {
		return nil, apperr.Validation("bed_id", "is required")
	}
	if req.PatientID == uuid.Nil {
		return nil, apperr.Validation("patient_id", "is required")
	}
	if req.Physician.IsZero() {
		return nil, apperr.Validation("physician", "id, code or name is required")
	}
	if err := requireActor(req.AssignedBy); err != nil {
		return nil, err
	}

	var (
		res     *AdmitResult
		bedType bed.Type
	)
	err := o.run(ctx, OpAdmit, func(ctx context.Context) error {
		b, err := o.lockBed(ctx, req.BedID)
		if err != nil {
			return err
		}
		if !b.IsAvailable() {
			return &apperr.BedUnavailableError{BedID: b.ID.String(), BedNumber: b.BedNumber, Status: string(b.Status)}
		}

		patient, err := o.identity.LockPatient(ctx, req.PatientID)
		if err != nil {
			return lockErr("patient", err)
		}
		typ := req.Type
		if typ == "" {
			typ = encounter.TypeInpatient
		}
		if typ == encounter.TypeInpatient {
			active, err := o.encounters.GetActiveInpatientEncounter(ctx, patient.ID)
			if err != nil {
				return err
			}
			if active != nil {
				return apperr.Conflict("patient %s already has active inpatient encounter %s", patient.ID, active.ID)
			}
		}

		physician, err := o.identity.ResolvePhysician(ctx, req.Physician)
		if err != nil {
			return err
		}

		enc, err := o.encounters.CreateEncounter(ctx, encounter.NewEncounter{
			PatientID:            patient.ID,
			Type:                 typ,
			PriorityCode:         req.PriorityCode,
			Severity:             req.Severity,
			Acuity:               req.Acuity,
			ChiefComplaint:       req.ChiefComplaint,
			AttendingPhysicianID: physician.ID,
		})
		if err != nil {
			return err
		}

		a, err := o.ledger.CreateAssignment(ctx, enc.ID, b.ID, req.AssignedBy, req.Notes)
		if err != nil {
			return err
		}
		if err := o.beds.SetStatus(ctx, b.ID, bed.StatusOccupied); err != nil {
			return err
		}

		if req.Diagnosis != nil {
			if err := o.encounters.AddDiagnosis(ctx, &encounter.EncounterDiagnosis{
				EncounterID: enc.ID,
				Type:        encounter.DiagnosisPrimary,
				Code:        req.Diagnosis.Code,
				Description: req.Diagnosis.Description,
			}); err != nil {
				return err
			}
		}

		bedType = b.Type
		res = &AdmitResult{
			EncounterID:  enc.ID,
			BedID:        b.ID,
			BedNumber:    b.BedNumber,
			WardCode:     b.WardCode,
			WardName:     b.WardName,
			AssignmentID: a.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("encounter_id", res.EncounterID.String()).
		Str("bed_id", res.BedID.String()).
		Msg("patient admitted")
	o.publish(ctx, events.NewPatientAdmitted(res.EncounterID, res.BedID, string(bedType)))
	return res, nil
}
