package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/adt/internal/platform/apperr"
	"github.com/ehr/adt/internal/platform/db"
)

// Ledger is the append-only history of bed assignments. Rows are opened and
// released, never deleted. Writes must run inside the caller's transaction
// after the caller has locked the bed and encounter involved.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock replaces the time source used for assigned/released timestamps.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// CreateAssignment opens a new assignment of encounterID to bedID. It fails
// with a ConflictError when either side already has an open assignment.
func (l *Ledger) CreateAssignment(ctx context.Context, encounterID, bedID uuid.UUID, assignedBy string, notes *string) (*Assignment, error) {
	if !db.InTx(ctx) {
		return nil, db.ErrNoTx
	}
	if encounterID == uuid.Nil {
		return nil, apperr.Validation("encounter_id", "is required")
	}
	if bedID == uuid.Nil {
		return nil, apperr.Validation("bed_id", "is required")
	}
	if assignedBy == "" {
		return nil, apperr.Validation("assigned_by", "is required")
	}

	open, err := l.repo.FindOpenForBed(ctx, bedID)
	if err != nil {
		return nil, fmt.Errorf("find open assignment for bed: %w", err)
	}
	if open != nil {
		return nil, apperr.Conflict("bed %s already has open assignment %s", bedID, open.ID)
	}
	open, err = l.repo.FindOpenForEncounter(ctx, encounterID)
	if err != nil {
		return nil, fmt.Errorf("find open assignment for encounter: %w", err)
	}
	if open != nil {
		return nil, apperr.Conflict("encounter %s already has open assignment %s", encounterID, open.ID)
	}

	a := &Assignment{
		ID:          uuid.New(),
		EncounterID: encounterID,
		BedID:       bedID,
		AssignedAt:  l.now(),
		AssignedBy:  assignedBy,
		Notes:       notes,
	}
	if err := l.repo.Create(ctx, a); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, apperr.Conflict("%v", err)
		}
		return nil, err
	}
	return a, nil
}

// ReleaseAssignment stamps the open assignment as released. It fails with a
// NotFoundError if no such open assignment exists.
func (l *Ledger) ReleaseAssignment(ctx context.Context, id uuid.UUID, releasedBy string, reason *string) error {
	return l.ReleaseAssignmentAt(ctx, id, l.now(), releasedBy, reason)
}

// ReleaseAssignmentAt closes the assignment as of at, for releases that
// follow a recorded clinical time such as a backdated discharge.
func (l *Ledger) ReleaseAssignmentAt(ctx context.Context, id uuid.UUID, at time.Time, releasedBy string, reason *string) error {
	if !db.InTx(ctx) {
		return db.ErrNoTx
	}
	if releasedBy == "" {
		return apperr.Validation("released_by", "is required")
	}
	if err := l.repo.Release(ctx, id, at, releasedBy, reason); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("open assignment", id.String())
		}
		return err
	}
	return nil
}

// FindOpenForEncounter returns the open assignment for the encounter, or nil.
func (l *Ledger) FindOpenForEncounter(ctx context.Context, encounterID uuid.UUID) (*Assignment, error) {
	return l.repo.FindOpenForEncounter(ctx, encounterID)
}

// FindOpenForBed returns the open assignment for the bed, or nil.
func (l *Ledger) FindOpenForBed(ctx context.Context, bedID uuid.UUID) (*Assignment, error) {
	return l.repo.FindOpenForBed(ctx, bedID)
}

// History lists every assignment of the encounter, oldest first.
func (l *Ledger) History(ctx context.Context, encounterID uuid.UUID) ([]*Assignment, error) {
	return l.repo.ListByEncounter(ctx, encounterID)
}

// BedHistory lists every assignment of the bed, oldest first.
func (l *Ledger) BedHistory(ctx context.Context, bedID uuid.UUID) ([]*Assignment, error) {
	return l.repo.ListByBed(ctx, bedID)
}

func (l *Ledger) CountOpenForBed(ctx context.Context, bedID uuid.UUID) (int, error) {
	return l.repo.CountOpenForBed(ctx, bedID)
}

func (l *Ledger) OpenCounts(ctx context.Context) (map[uuid.UUID]int, error) {
	return l.repo.CountOpenByBed(ctx)
}
