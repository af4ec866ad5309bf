package adt

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/adt/internal/domain/bed"
	"github.com/ehr/adt/internal/domain/encounter"
	"github.com/ehr/adt/internal/domain/identity"
	"github.com/ehr/adt/internal/platform/events"
	"github.com/ehr/adt/internal/platform/hl7v2"
)

// MessageSender delivers one encoded HL7 message. *hl7v2.Sender satisfies it.
type MessageSender interface {
	Send(ctx context.Context, msg []byte) error
}

// HL7Feed turns admissions, transfers and discharges into ADT^A01, ^A02 and
// ^A03 messages. Other event types are ignored. It reads committed state, so
// it must only be used as a post-commit publisher.
type HL7Feed struct {
	sender     MessageSender
	header     hl7v2.Header
	beds       *bed.Registry
	encounters *encounter.Manager
	identity   *identity.Resolver
}

func NewHL7Feed(sender MessageSender, header hl7v2.Header, d Deps) *HL7Feed {
	return &HL7Feed{
		sender:     sender,
		header:     header,
		beds:       d.Beds,
		encounters: d.Encounters,
		identity:   d.Identity,
	}
}

func (f *HL7Feed) Publish(ctx context.Context, ev events.Event) error {
	var (
		msg hl7v2.ADT
		err error
	)
	switch data := ev.Data.(type) {
	case events.PatientAdmitted:
		msg, err = f.visit(ctx, hl7v2.EventAdmit, data.EncounterID, &data.BedID)
	case events.PatientTransferred:
		msg, err = f.visit(ctx, hl7v2.EventTransfer, data.EncounterID, &data.ToBedID)
		if err == nil {
			msg.PriorLocation, err = f.location(ctx, data.FromBedID)
		}
	case events.PatientDischarged:
		msg, err = f.visit(ctx, hl7v2.EventDischarge, data.EncounterID, data.BedID)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("hl7 %s for event %s: %w", ev.Type, ev.ID, err)
	}

	msg.ControlID = ev.ID.String()
	msg.OccurredAt = ev.OccurredAt
	raw, err := msg.Build(f.header)
	if err != nil {
		return err
	}
	return f.sender.Send(ctx, raw)
}

// visit loads the encounter, patient and attending physician behind an
// event. bedID may be nil for a discharge without a bed.
func (f *HL7Feed) visit(ctx context.Context, trigger string, encounterID uuid.UUID, bedID *uuid.UUID) (hl7v2.ADT, error) {
	enc, err := f.encounters.GetEncounter(ctx, encounterID)
	if err != nil {
		return hl7v2.ADT{}, err
	}
	patient, err := f.identity.ResolvePatient(ctx, enc.PatientID)
	if err != nil {
		return hl7v2.ADT{}, err
	}
	msg := hl7v2.ADT{
		Event:        trigger,
		MRN:          patient.MRN,
		FamilyName:   patient.LastName,
		GivenName:    patient.FirstName,
		VisitNumber:  enc.ID.String(),
		PatientClass: hl7v2.PatientClass(string(enc.Type)),
		AdmittedAt:   enc.AdmittedAt,
		DischargedAt: enc.DischargedAt,
	}
	if enc.DischargeDisposition != nil {
		msg.Disposition = *enc.DischargeDisposition
	}

	physID := enc.AttendingPhysicianID
	if doc, err := f.identity.ResolvePhysician(ctx, identity.PhysicianRef{ID: &physID}); err == nil {
		msg.AttendingCode = doc.Code
		msg.AttendingName = doc.FullName()
	}

	if bedID != nil {
		if msg.Location, err = f.location(ctx, *bedID); err != nil {
			return hl7v2.ADT{}, err
		}
	}
	return msg, nil
}

func (f *HL7Feed) location(ctx context.Context, bedID uuid.UUID) (hl7v2.Location, error) {
	b, err := f.beds.GetBed(ctx, bedID)
	if err != nil {
		return hl7v2.Location{}, err
	}
	return hl7v2.Location{Ward: b.WardCode, Bed: b.BedNumber}, nil
}
