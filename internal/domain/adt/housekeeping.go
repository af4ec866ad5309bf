package adt

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/adt/internal/domain/bed"
	"github.com/ehr/adt/internal/platform/apperr"
	"github.com/ehr/adt/internal/platform/events"
)

// SetBedHousekeeping moves an unassigned bed between available, cleaning
// and maintenance. Occupancy is only ever set by admissions and transfers.
func (o *Orchestrator) SetBedHousekeeping(ctx context.Context, bedID uuid.UUID, status bed.Status, actor string) (*bed.Bed, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	switch status {
	case bed.StatusAvailable, bed.StatusCleaning, bed.StatusMaintenance:
	case bed.StatusOccupied:
		return nil, &apperr.InvalidStateError{
			Resource: "bed",
			ID:       bedID.String(),
			State:    string(status),
			Reason:   "occupancy is set by admission or transfer",
		}
	default:
		return nil, apperr.Validation("status", "invalid bed status %q", status)
	}

	var (
		result *bed.Bed
		from   bed.Status
	)
	err := o.run(ctx, OpHousekeeping, func(ctx context.Context) error {
		b, err := o.lockBed(ctx, bedID)
		if err != nil {
			return err
		}
		open, err := o.ledger.CountOpenForBed(ctx, bedID)
		if err != nil {
			return err
		}
		if open > 0 {
			return &apperr.InvalidStateError{
				Resource: "bed",
				ID:       bedID.String(),
				State:    string(b.Status),
				Reason:   "bed has an open assignment",
			}
		}
		from = b.Status
		if b.Status != status {
			if err := o.beds.SetStatus(ctx, bedID, status); err != nil {
				return err
			}
			b.Status = status
		}
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	if from != status {
		o.logger.Info().
			Str("bed_id", bedID.String()).
			Str("from", string(from)).
			Str("to", string(status)).
			Str("actor", actor).
			Msg("bed status changed")
		o.publish(ctx, events.NewBedStatusChanged(bedID, string(from), string(status)))
	}
	return result, nil
}
