package bed

import (
	"time"

	"github.com/google/uuid"
)

// Status is the coarse availability flag kept on the bed row. It mirrors
// the assignment ledger: occupied if and only if an open assignment exists.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusOccupied    Status = "occupied"
	StatusMaintenance Status = "maintenance"
	StatusCleaning    Status = "cleaning"
)

// Valid reports whether s is a known bed status.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusOccupied, StatusMaintenance, StatusCleaning:
		return true
	}
	return false
}

// Type classifies the bed.
type Type string

const (
	TypeGeneral   Type = "general"
	TypePrivate   Type = "private"
	TypeICU       Type = "icu"
	TypePediatric Type = "pediatric"
)

// Valid reports whether t is a known bed type.
func (t Type) Valid() bool {
	switch t {
	case TypeGeneral, TypePrivate, TypeICU, TypePediatric:
		return true
	}
	return false
}

// Bed maps to the bed table joined with its ward.
type Bed struct {
	ID        uuid.UUID `db:"id" json:"id"`
	BedNumber string    `db:"bed_number" json:"bed_number"`
	WardID    uuid.UUID `db:"ward_id" json:"ward_id"`
	WardCode  string    `db:"ward_code" json:"ward_code"`
	WardName  string    `db:"ward_name" json:"ward_name"`
	Type      Type      `db:"bed_type" json:"bed_type"`
	Status    Status    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsAvailable reports whether the bed can receive a patient.
func (b *Bed) IsAvailable() bool { return b.Status == StatusAvailable }

// Filter narrows bed listings. Zero values match everything.
type Filter struct {
	WardID *uuid.UUID
	Status Status
	Type   Type
}
