package assignment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("assignment not found")
	// ErrConflict is returned when an insert would create a second open
	// assignment for a bed or an encounter.
	ErrConflict = errors.New("open assignment already exists")
)

type Repository interface {
	Create(ctx context.Context, a *Assignment) error
	// Release closes the open assignment with the given id. It returns
	// ErrNotFound if the row does not exist or is already released.
	Release(ctx context.Context, id uuid.UUID, at time.Time, by string, reason *string) error
	FindOpenForEncounter(ctx context.Context, encounterID uuid.UUID) (*Assignment, error)
	FindOpenForBed(ctx context.Context, bedID uuid.UUID) (*Assignment, error)
	ListByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*Assignment, error)
	ListByBed(ctx context.Context, bedID uuid.UUID) ([]*Assignment, error)
	CountOpenForBed(ctx context.Context, bedID uuid.UUID) (int, error)
	// CountOpenByBed returns the number of open rows per bed id, for beds
	// that have at least one.
	CountOpenByBed(ctx context.Context) (map[uuid.UUID]int, error)
}
