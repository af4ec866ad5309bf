package bed

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no bed matches the id.
var ErrNotFound = errors.New("bed not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Bed, error)
	// GetForUpdate reads the bed and holds an exclusive row lock on it until
	// the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Bed, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Bed, int, error)
	ListAll(ctx context.Context) ([]*Bed, error)
}
