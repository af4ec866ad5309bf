package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table.
type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	MRN       string    `db:"mrn" json:"mrn"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Practitioner maps to the practitioner table. Code is the hospital's
// practitioner identifier (NPI or staff code).
type Practitioner struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (p *Practitioner) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// PhysicianRef identifies an attending physician by id, code or full name.
// Resolution uses the first identifier that is set, in that order.
type PhysicianRef struct {
	ID   *uuid.UUID `json:"id,omitempty"`
	Code string     `json:"code,omitempty"`
	Name string     `json:"name,omitempty"`
}

func (r PhysicianRef) IsZero() bool {
	return r.ID == nil && strings.TrimSpace(r.Code) == "" && strings.TrimSpace(r.Name) == ""
}
