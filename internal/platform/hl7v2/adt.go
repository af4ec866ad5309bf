package hl7v2

import (
	"fmt"
	"strings"
	"time"
)

// Trigger events emitted by the ADT service.
const (
	EventAdmit     = "A01"
	EventTransfer  = "A02"
	EventDischarge = "A03"
)

const hl7Time = "20060102150405"

// Header identifies sender and receiver in MSH-3..6.
type Header struct {
	SendingApp        string
	SendingFacility   string
	ReceivingApp      string
	ReceivingFacility string
}

// Location is a PV1 point of care: ward code and bed number.
type Location struct {
	Ward string
	Bed  string
}

func (l Location) String() string {
	if l.Ward == "" && l.Bed == "" {
		return ""
	}
	// PL datatype: point of care^room^bed
	return escape(l.Ward) + "^^" + escape(l.Bed)
}

// ADT carries what an A01, A02 or A03 message reports.
type ADT struct {
	Event         string
	ControlID     string
	OccurredAt    time.Time
	MRN           string
	FamilyName    string
	GivenName     string
	VisitNumber   string
	PatientClass  string // I, E or O
	Location      Location
	PriorLocation Location
	AttendingCode string
	AttendingName string
	AdmittedAt    time.Time
	DischargedAt  *time.Time
	Disposition   string
}

// PatientClass maps an encounter type to PV1-2.
func PatientClass(encounterType string) string {
	switch encounterType {
	case "inpatient":
		return "I"
	case "emergency":
		return "E"
	case "outpatient":
		return "O"
	}
	return "U"
}

// Build renders the message with \r segment separators.
func (a ADT) Build(h Header) ([]byte, error) {
	switch a.Event {
	case EventAdmit, EventTransfer, EventDischarge:
	default:
		return nil, fmt.Errorf("hl7v2: unsupported ADT event %q", a.Event)
	}
	if a.MRN == "" {
		return nil, fmt.Errorf("hl7v2: MRN is required")
	}
	if a.ControlID == "" {
		return nil, fmt.Errorf("hl7v2: control id is required")
	}
	at := a.OccurredAt.UTC()

	segments := []string{
		fmt.Sprintf("MSH|^~\\&|%s|%s|%s|%s|%s||ADT^%s^ADT_%s|%s|P|2.5.1",
			escape(h.SendingApp), escape(h.SendingFacility),
			escape(h.ReceivingApp), escape(h.ReceivingFacility),
			at.Format(hl7Time), a.Event, a.Event, escape(a.ControlID)),
		fmt.Sprintf("EVN|%s|%s", a.Event, at.Format(hl7Time)),
		fmt.Sprintf("PID|1||%s^^^MRN||%s^%s", escape(a.MRN), escape(a.FamilyName), escape(a.GivenName)),
		a.pv1(),
	}
	return []byte(strings.Join(segments, "\r")), nil
}

// pv1 fills PV1-2, -3, -6, -7, -19, -36, -44 and -45.
func (a ADT) pv1() string {
	f := make([]string, 46)
	f[1] = "1"
	f[2] = a.PatientClass
	f[3] = a.Location.String()
	f[6] = a.PriorLocation.String()
	if a.AttendingCode != "" || a.AttendingName != "" {
		family, given := splitName(a.AttendingName)
		f[7] = escape(a.AttendingCode) + "^" + escape(family) + "^" + escape(given)
	}
	f[19] = escape(a.VisitNumber)
	f[36] = escape(a.Disposition)
	if !a.AdmittedAt.IsZero() {
		f[44] = a.AdmittedAt.UTC().Format(hl7Time)
	}
	if a.DischargedAt != nil {
		f[45] = a.DischargedAt.UTC().Format(hl7Time)
	}
	f[0] = "PV1"
	return strings.TrimRight(strings.Join(f, "|"), "|")
}

// splitName turns "Gregory House" into ("House", "Gregory").
func splitName(full string) (family, given string) {
	full = strings.TrimSpace(full)
	i := strings.LastIndex(full, " ")
	if i < 0 {
		return full, ""
	}
	return full[i+1:], full[:i]
}
