package adt

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/adt/internal/domain/bed"
	"github.com/ehr/adt/internal/platform/apperr"
	"github.com/ehr/adt/internal/platform/events"
)

type TransferResult struct {
	EncounterID  uuid.UUID `json:"encounter_id"`
	FromBedID    uuid.UUID `json:"from_bed_id"`
	BedID        uuid.UUID `json:"bed_id"`
	BedNumber    string    `json:"bed_number"`
	WardCode     string    `json:"ward_code"`
	WardName     string    `json:"ward_name"`
	AssignmentID uuid.UUID `json:"assignment_id"`
}

// Transfer moves the encounter from its current bed to targetBedID. The
// release of the old assignment and the opening of the new one commit
// together or not at all.
func (o *Orchestrator) Transfer(ctx context.Context, encounterID, targetBedID uuid.UUID, reason, actor string) (*TransferResult, error) {
	if targetBedID == uuid.Nil {
		return nil, apperr.Validation("bed_id", "is required")
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var res *TransferResult
	err := o.run(ctx, OpTransfer, func(ctx context.Context) error {
		if _, err := o.lockEncounter(ctx, encounterID); err != nil {
			return err
		}
		open, err := o.ledger.FindOpenForEncounter(ctx, encounterID)
		if err != nil {
			return err
		}
		if open == nil {
			return apperr.NotFound("open assignment for encounter", encounterID.String())
		}
		if open.BedID == targetBedID {
			return apperr.Validation("bed_id", "encounter is already assigned to bed %s", targetBedID)
		}

		locked, err := o.lockBeds(ctx, open.BedID, targetBedID)
		if err != nil {
			return err
		}
		target := locked[targetBedID]
		if !target.IsAvailable() {
			return &apperr.BedUnavailableError{BedID: target.ID.String(), BedNumber: target.BedNumber, Status: string(target.Status)}
		}

		note := notePtr("transferred to bed %s", target.BedNumber)
		if reason != "" {
			note = notePtr("transferred to bed %s: %s", target.BedNumber, reason)
		}
		if err := o.ledger.ReleaseAssignment(ctx, open.ID, actor, note); err != nil {
			return err
		}
		if err := o.beds.SetStatus(ctx, open.BedID, bed.StatusAvailable); err != nil {
			return err
		}

		var notes *string
		if reason != "" {
			notes = &reason
		}
		a, err := o.ledger.CreateAssignment(ctx, encounterID, target.ID, actor, notes)
		if err != nil {
			return err
		}
		if err := o.beds.SetStatus(ctx, target.ID, bed.StatusOccupied); err != nil {
			return err
		}

		res = &TransferResult{
			EncounterID:  encounterID,
			FromBedID:    open.BedID,
			BedID:        target.ID,
			BedNumber:    target.BedNumber,
			WardCode:     target.WardCode,
			WardName:     target.WardName,
			AssignmentID: a.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("encounter_id", encounterID.String()).
		Str("from_bed_id", res.FromBedID.String()).
		Str("bed_id", res.BedID.String()).
		Msg("patient transferred")
	o.publish(ctx, events.NewPatientTransferred(encounterID, res.FromBedID, res.BedID))
	return res, nil
}

type ReleaseResult struct {
	EncounterID  uuid.UUID `json:"encounter_id"`
	BedID        uuid.UUID `json:"bed_id"`
	AssignmentID uuid.UUID `json:"assignment_id"`
}

// ReleaseBed frees the encounter's bed without discharging. The encounter
// stays active with no bed.
func (o *Orchestrator) ReleaseBed(ctx context.Context, encounterID uuid.UUID, notes *string, actor string) (*ReleaseResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var res *ReleaseResult
	err := o.run(ctx, OpReleaseBed, func(ctx context.Context) error {
		if _, err := o.lockEncounter(ctx, encounterID); err != nil {
			return err
		}
		open, err := o.ledger.FindOpenForEncounter(ctx, encounterID)
		if err != nil {
			return err
		}
		if open == nil {
			return apperr.NotFound("open assignment for encounter", encounterID.String())
		}
		if _, err := o.lockBed(ctx, open.BedID); err != nil {
			return err
		}
		if err := o.ledger.ReleaseAssignment(ctx, open.ID, actor, notes); err != nil {
			return err
		}
		if err := o.beds.SetStatus(ctx, open.BedID, bed.StatusAvailable); err != nil {
			return err
		}
		res = &ReleaseResult{EncounterID: encounterID, BedID: open.BedID, AssignmentID: open.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("encounter_id", encounterID.String()).
		Str("bed_id", res.BedID.String()).
		Msg("bed released")
	o.publish(ctx, events.NewBedReleased(encounterID, res.BedID))
	return res, nil
}
