package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

type PatientRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	// GetForUpdate locks the patient row until the transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByMRN(ctx context.Context, mrn string) (*Patient, error)
}

type PractitionerRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	GetByCode(ctx context.Context, code string) (*Practitioner, error)
	// FindByName returns practitioners whose "first last" name equals name,
	// case-insensitively.
	FindByName(ctx context.Context, name string) ([]*Practitioner, error)
}
