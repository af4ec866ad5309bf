// Package events carries ADT domain events to external subscribers. Events
// are published after the owning transaction commits; delivery is best
// effort and never rolls back the operation that produced them.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypePatientAdmitted    Type = "adt.patient_admitted"
	TypePatientTransferred Type = "adt.patient_transferred"
	TypeBedReleased        Type = "adt.bed_released"
	TypePatientDischarged  Type = "adt.patient_discharged"
	TypeBedStatusChanged   Type = "adt.bed_status_changed"
)

// Event is the envelope shared by every publisher.
type Event struct {
	ID         uuid.UUID   `json:"id"`
	Type       Type        `json:"type"`
	TenantID   string      `json:"tenant_id,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

type PatientAdmitted struct {
	EncounterID uuid.UUID `json:"encounter_id"`
	BedID       uuid.UUID `json:"bed_id"`
	BedType     string    `json:"bed_type"`
}

type PatientTransferred struct {
	EncounterID uuid.UUID `json:"encounter_id"`
	FromBedID   uuid.UUID `json:"from_bed_id"`
	ToBedID     uuid.UUID `json:"to_bed_id"`
}

type BedReleased struct {
	EncounterID uuid.UUID `json:"encounter_id"`
	BedID       uuid.UUID `json:"bed_id"`
}

type PatientDischarged struct {
	EncounterID uuid.UUID  `json:"encounter_id"`
	BedID       *uuid.UUID `json:"bed_id,omitempty"`
}

type BedStatusChanged struct {
	BedID uuid.UUID `json:"bed_id"`
	From  string    `json:"from"`
	To    string    `json:"to"`
}

func newEvent(t Type, data interface{}) Event {
	return Event{ID: uuid.New(), Type: t, OccurredAt: time.Now().UTC(), Data: data}
}

func NewPatientAdmitted(encounterID, bedID uuid.UUID, bedType string) Event {
	return newEvent(TypePatientAdmitted, PatientAdmitted{EncounterID: encounterID, BedID: bedID, BedType: bedType})
}

func NewPatientTransferred(encounterID, fromBedID, toBedID uuid.UUID) Event {
	return newEvent(TypePatientTransferred, PatientTransferred{EncounterID: encounterID, FromBedID: fromBedID, ToBedID: toBedID})
}

func NewBedReleased(encounterID, bedID uuid.UUID) Event {
	return newEvent(TypeBedReleased, BedReleased{EncounterID: encounterID, BedID: bedID})
}

// NewPatientDischarged builds a discharge event. bedID is nil when the
// patient held no bed at discharge.
func NewPatientDischarged(encounterID uuid.UUID, bedID *uuid.UUID) Event {
	return newEvent(TypePatientDischarged, PatientDischarged{EncounterID: encounterID, BedID: bedID})
}

func NewBedStatusChanged(bedID uuid.UUID, from, to string) Event {
	return newEvent(TypeBedStatusChanged, BedStatusChanged{BedID: bedID, From: from, To: to})
}

// Publisher delivers events to one destination.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Nop discards every event.
var Nop Publisher = PublisherFunc(func(context.Context, Event) error { return nil })
