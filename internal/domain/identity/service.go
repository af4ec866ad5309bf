package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/adt/internal/platform/apperr"
	"github.com/ehr/adt/internal/platform/db"
)

// Resolver turns patient and physician references from an admission request
// into active records. Unresolvable input is reported as a ValidationError
// naming the offending field.
type Resolver struct {
	patients      PatientRepository
	practitioners PractitionerRepository
}

func NewResolver(patients PatientRepository, practitioners PractitionerRepository) *Resolver {
	return &Resolver{patients: patients, practitioners: practitioners}
}

func (r *Resolver) ResolvePatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	if id == uuid.Nil {
		return nil, apperr.Validation("patient_id", "is required")
	}
	p, err := r.patients.GetByID(ctx, id)
	return checkPatient(p, err, id)
}

// LockPatient resolves the patient under a row lock. Admissions take it so
// that two admissions for one patient run one after the other.
func (r *Resolver) LockPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	if !db.InTx(ctx) {
		return nil, db.ErrNoTx
	}
	if id == uuid.Nil {
		return nil, apperr.Validation("patient_id", "is required")
	}
	p, err := r.patients.GetForUpdate(ctx, id)
	return checkPatient(p, err, id)
}

func checkPatient(p *Patient, err error, id uuid.UUID) (*Patient, error) {
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.Validation("patient_id", "patient %s not found", id)
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	if !p.Active {
		return nil, apperr.Validation("patient_id", "patient %s is inactive", id)
	}
	return p, nil
}

// ResolvePhysician finds the attending physician, trying the identifiers set
// on ref in order: id, then code, then full name. An id or code that matches
// no practitioner falls through to the next identifier; the error names the
// last one tried. A name only resolves when exactly one active practitioner
// carries it.
func (r *Resolver) ResolvePhysician(ctx context.Context, ref PhysicianRef) (*Practitioner, error) {
	code := strings.TrimSpace(ref.Code)
	name := strings.TrimSpace(ref.Name)
	if ref.ID == nil && code == "" && name == "" {
		return nil, apperr.Validation("physician", "one of id, code or name is required")
	}

	var miss error
	if ref.ID != nil {
		p, err := r.practitioners.GetByID(ctx, *ref.ID)
		switch {
		case err == nil:
			return checkPractitioner(p)
		case errors.Is(err, ErrNotFound):
			miss = apperr.Validation("physician", "no practitioner with id %s", *ref.ID)
		default:
			return nil, fmt.Errorf("resolve physician: %w", err)
		}
	}
	if code != "" {
		p, err := r.practitioners.GetByCode(ctx, code)
		switch {
		case err == nil:
			return checkPractitioner(p)
		case errors.Is(err, ErrNotFound):
			miss = apperr.Validation("physician", "no practitioner with code %q", code)
		default:
			return nil, fmt.Errorf("resolve physician: %w", err)
		}
	}
	if name != "" {
		return r.resolveByName(ctx, name)
	}
	return nil, miss
}

func checkPractitioner(p *Practitioner) (*Practitioner, error) {
	if !p.Active {
		return nil, apperr.Validation("physician", "practitioner %s is inactive", p.Code)
	}
	return p, nil
}

func (r *Resolver) resolveByName(ctx context.Context, name string) (*Practitioner, error) {
	matches, err := r.practitioners.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolve physician: %w", err)
	}
	var active []*Practitioner
	for _, p := range matches {
		if p.Active {
			active = append(active, p)
		}
	}
	switch len(active) {
	case 0:
		return nil, apperr.Validation("physician", "no active practitioner named %q", name)
	case 1:
		return active[0], nil
	default:
		return nil, apperr.Validation("physician", "%d practitioners named %q; use id or code", len(active), name)
	}
}
