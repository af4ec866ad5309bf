package adt

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/adt/internal/domain/assignment"
	"github.com/ehr/adt/internal/domain/bed"
	"github.com/ehr/adt/internal/domain/encounter"
	"github.com/ehr/adt/internal/platform/apperr"
	"github.com/ehr/adt/internal/platform/events"
)

type DischargeResult struct {
	EncounterID  uuid.UUID  `json:"encounter_id"`
	DischargedAt time.Time  `json:"discharged_at"`
	BedID        *uuid.UUID `json:"bed_id,omitempty"`
}

// Discharge completes the encounter and frees its bed when it has one. A
// discharge with no open assignment is allowed and leaves beds untouched.
func (o *Orchestrator) Discharge(ctx context.Context, encounterID uuid.UUID, details encounter.DischargeDetails, actor string) (*DischargeResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var res *DischargeResult
	err := o.run(ctx, OpDischarge, func(ctx context.Context) error {
		if _, err := o.lockEncounter(ctx, encounterID); err != nil {
			return err
		}
		open, err := o.ledger.FindOpenForEncounter(ctx, encounterID)
		if err != nil {
			return err
		}
		if open != nil {
			if _, err := o.lockBed(ctx, open.BedID); err != nil {
				return err
			}
		}

		enc, err := o.encounters.Discharge(ctx, encounterID, details)
		if err != nil {
			return err
		}
		res = &DischargeResult{EncounterID: encounterID, DischargedAt: *enc.DischargedAt}

		if open != nil {
			if err := o.releaseOnDischarge(ctx, open, *enc.DischargedAt, actor); err != nil {
				return err
			}
			bedID := open.BedID
			res.BedID = &bedID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	evt := o.logger.Info().Str("encounter_id", encounterID.String())
	if res.BedID == nil {
		o.logger.Warn().Str("encounter_id", encounterID.String()).Msg("discharged without an open bed assignment")
	} else {
		evt = evt.Str("bed_id", res.BedID.String())
	}
	evt.Msg("patient discharged")

	evs := []events.Event{events.NewPatientDischarged(encounterID, res.BedID)}
	if res.BedID != nil {
		evs = append(evs, events.NewBedReleased(encounterID, *res.BedID))
	}
	o.publish(ctx, evs...)
	return res, nil
}

// releaseOnDischarge closes the assignment at the discharge time, or at its
// start when the discharge predates the latest bed move.
func (o *Orchestrator) releaseOnDischarge(ctx context.Context, open *assignment.Assignment, at time.Time, actor string) error {
	if at.Before(open.AssignedAt) {
		at = open.AssignedAt
	}
	reason := "discharged"
	if err := o.ledger.ReleaseAssignmentAt(ctx, open.ID, at, actor, &reason); err != nil {
		if apperr.Kind(err) == "not_found" {
			return &apperr.InvalidStateError{Resource: "assignment", ID: open.ID.String(), State: "released"}
		}
		return err
	}
	return o.beds.SetStatus(ctx, open.BedID, bed.StatusAvailable)
}
