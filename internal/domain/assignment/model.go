package assignment

import (
	"time"

	"github.com/google/uuid"
)

// Assignment links an encounter to a bed for a time interval. A row with no
// ReleasedAt is the open assignment.
type Assignment struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	EncounterID   uuid.UUID  `db:"encounter_id" json:"encounter_id"`
	BedID         uuid.UUID  `db:"bed_id" json:"bed_id"`
	AssignedAt    time.Time  `db:"assigned_at" json:"assigned_at"`
	AssignedBy    string     `db:"assigned_by" json:"assigned_by"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`
	ReleasedAt    *time.Time `db:"released_at" json:"released_at,omitempty"`
	ReleasedBy    *string    `db:"released_by" json:"released_by,omitempty"`
	ReleaseReason *string    `db:"release_reason" json:"release_reason,omitempty"`
}

func (a *Assignment) IsOpen() bool { return a.ReleasedAt == nil }
