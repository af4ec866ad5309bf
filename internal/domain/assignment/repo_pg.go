package assignment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/adt/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const assignmentCols = `id, encounter_id, bed_id, assigned_at, assigned_by, notes, released_at, released_by, release_reason`

func (r *repoPG) scanRow(row pgx.Row) (*Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.EncounterID, &a.BedID, &a.AssignedAt, &a.AssignedBy, &a.Notes,
		&a.ReleasedAt, &a.ReleasedBy, &a.ReleaseReason)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Assignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO bed_assignment (id, encounter_id, bed_id, assigned_at, assigned_by, notes)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.EncounterID, a.BedID, a.AssignedAt, a.AssignedBy, a.Notes)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w (%s)", ErrConflict, db.ConstraintName(err))
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

func (r *repoPG) Release(ctx context.Context, id uuid.UUID, at time.Time, by string, reason *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bed_assignment SET released_at = $2, released_by = $3, release_reason = $4
		WHERE id = $1 AND released_at IS NULL`,
		id, at, by, reason)
	if err != nil {
		return fmt.Errorf("release assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) findOne(ctx context.Context, where string, arg interface{}) (*Assignment, error) {
	a, err := r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+assignmentCols+` FROM bed_assignment WHERE `+where+` AND released_at IS NULL`, arg))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (r *repoPG) FindOpenForEncounter(ctx context.Context, encounterID uuid.UUID) (*Assignment, error) {
	return r.findOne(ctx, "encounter_id = $1", encounterID)
}

func (r *repoPG) FindOpenForBed(ctx context.Context, bedID uuid.UUID) (*Assignment, error) {
	return r.findOne(ctx, "bed_id = $1", bedID)
}

func (r *repoPG) list(ctx context.Context, where string, arg interface{}) ([]*Assignment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+assignmentCols+` FROM bed_assignment WHERE `+where+` ORDER BY assigned_at, id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Assignment
	for rows.Next() {
		a, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) ListByEncounter(ctx context.Context, encounterID uuid.UUID) ([]*Assignment, error) {
	return r.list(ctx, "encounter_id = $1", encounterID)
}

func (r *repoPG) ListByBed(ctx context.Context, bedID uuid.UUID) ([]*Assignment, error) {
	return r.list(ctx, "bed_id = $1", bedID)
}

func (r *repoPG) CountOpenForBed(ctx context.Context, bedID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM bed_assignment WHERE bed_id = $1 AND released_at IS NULL`, bedID).Scan(&n)
	return n, err
}

func (r *repoPG) CountOpenByBed(ctx context.Context) (map[uuid.UUID]int, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT bed_id, COUNT(*) FROM bed_assignment WHERE released_at IS NULL GROUP BY bed_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
