package adt

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/adt/internal/domain/assignment"
	"github.com/ehr/adt/internal/domain/bed"
	"github.com/ehr/adt/internal/domain/encounter"
)

type EncounterDetail struct {
	*encounter.Encounter
	Diagnoses      []*encounter.EncounterDiagnosis `json:"diagnoses"`
	OpenAssignment *assignment.Assignment          `json:"open_assignment,omitempty"`
	Bed            *bed.Bed                        `json:"bed,omitempty"`
}

// GetEncounterDetail returns the encounter with its diagnoses and current
// bed. It takes no locks.
func (o *Orchestrator) GetEncounterDetail(ctx context.Context, id uuid.UUID) (*EncounterDetail, error) {
	enc, err := o.encounters.GetEncounter(ctx, id)
	if err != nil {
		return nil, err
	}
	diags, err := o.encounters.GetDiagnoses(ctx, id)
	if err != nil {
		return nil, err
	}
	if diags == nil {
		diags = []*encounter.EncounterDiagnosis{}
	}
	d := &EncounterDetail{Encounter: enc, Diagnoses: diags}

	open, err := o.ledger.FindOpenForEncounter(ctx, id)
	if err != nil {
		return nil, err
	}
	if open != nil {
		d.OpenAssignment = open
		if d.Bed, err = o.beds.GetBed(ctx, open.BedID); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Assignments returns the encounter's ledger history, oldest first.
func (o *Orchestrator) Assignments(ctx context.Context, encounterID uuid.UUID) ([]*assignment.Assignment, error) {
	if _, err := o.encounters.GetEncounter(ctx, encounterID); err != nil {
		return nil, err
	}
	rows, err := o.ledger.History(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []*assignment.Assignment{}
	}
	return rows, nil
}
