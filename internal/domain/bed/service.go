package bed

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/adt/internal/platform/apperr"
	"github.com/ehr/adt/internal/platform/db"
)

// Registry is the authoritative store of beds and their availability
// status. Status writes are only accepted inside a transaction that already
// holds the bed's row lock.
type Registry struct {
	repo Repository
}

func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo}
}

func (r *Registry) GetBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	b, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, id)
	}
	return b, nil
}

// LockBed reads the bed under an exclusive row lock held until the
// enclosing transaction ends. Concurrent callers for the same bed block.
func (r *Registry) LockBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	if !db.InTx(ctx) {
		return nil, db.ErrNoTx
	}
	b, err := r.repo.GetForUpdate(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, id)
	}
	return b, nil
}

// SetStatus overwrites the bed status. The caller must hold the bed lock.
func (r *Registry) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if !db.InTx(ctx) {
		return db.ErrNoTx
	}
	if !status.Valid() {
		return apperr.Validation("status", "invalid bed status %q", status)
	}
	if err := r.repo.SetStatus(ctx, id, status); err != nil {
		return wrapNotFound(err, id)
	}
	return nil
}

func (r *Registry) ListBeds(ctx context.Context, f Filter, limit, offset int) ([]*Bed, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("status", "invalid bed status %q", f.Status)
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, 0, apperr.Validation("bed_type", "invalid bed type %q", f.Type)
	}
	return r.repo.List(ctx, f, limit, offset)
}

// AllBeds returns every bed ordered by ward and bed number.
func (r *Registry) AllBeds(ctx context.Context) ([]*Bed, error) {
	return r.repo.ListAll(ctx)
}

func wrapNotFound(err error, id uuid.UUID) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("bed", id.String())
	}
	return fmt.Errorf("bed %s: %w", id, err)
}
