package encounter

import (
	"context"
	"fmt"

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

const encCols = `id, patient_id, encounter_type, status, priority_code, severity, acuity,
	chief_complaint, attending_physician_id, admitted_at, discharged_at,
	discharge_summary, discharge_disposition, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, enc *Encounter) error {
	if enc.ID == uuid.Nil {
		enc.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO encounter (
			id, patient_id, encounter_type, status, priority_code, severity, acuity,
			chief_complaint, attending_physician_id, admitted_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		enc.ID, enc.PatientID, enc.Type, enc.Status, enc.PriorityCode, enc.Severity, enc.Acuity,
		enc.ChiefComplaint, enc.AttendingPhysicianID, enc.AdmittedAt,
	).Scan(&enc.CreatedAt, &enc.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) && db.ConstraintName(err) == "uq_encounter_active_inpatient" {
			return ErrActiveInpatientExists
		}
		return fmt.Errorf("insert encounter: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	return scanEnc(r.conn(ctx).QueryRow(ctx, `SELECT `+encCols+` FROM encounter WHERE id = $1`, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	return scanEnc(r.conn(ctx).QueryRow(ctx, `SELECT `+encCols+` FROM encounter WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) Update(ctx context.Context, enc *Encounter) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE encounter SET
			status=$2, priority_code=$3, severity=$4, acuity=$5, chief_complaint=$6,
			attending_physician_id=$7, discharged_at=$8, discharge_summary=$9,
			discharge_disposition=$10, updated_at=NOW()
		WHERE id = $1`,
		enc.ID, enc.Status, enc.PriorityCode, enc.Severity, enc.Acuity, enc.ChiefComplaint,
		enc.AttendingPhysicianID, enc.DischargedAt, enc.DischargeSummary, enc.DischargeDisposition,
	)
	if err != nil {
		return fmt.Errorf("update encounter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Encounter, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM encounter WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+encCols+` FROM encounter WHERE patient_id = $1 ORDER BY admitted_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectEncs(rows, total)
}

func (r *repoPG) FindActiveInpatient(ctx context.Context, patientID uuid.UUID) (*Encounter, error) {
	enc, err := scanEnc(r.conn(ctx).QueryRow(ctx,
		`SELECT `+encCols+` FROM encounter
		 WHERE patient_id = $1 AND status = 'active' AND encounter_type = 'inpatient'
		 ORDER BY admitted_at DESC LIMIT 1`, patientID))
	if err == ErrNotFound {
		return nil, nil
	}
	return enc, err
}

// Diagnoses
func (r *repoPG) AddDiagnosis(ctx context.Context, d *EncounterDiagnosis) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO encounter_diagnosis (id, encounter_id, diagnosis_type, code, description)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		d.ID, d.EncounterID, d.Type, d.Code, d.Description,
	).Scan(&d.CreatedAt)
}

func (r *repoPG) GetDiagnoses(ctx context.Context, encounterID uuid.UUID) ([]*EncounterDiagnosis, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, encounter_id, diagnosis_type, code, description, created_at
		FROM encounter_diagnosis WHERE encounter_id = $1 ORDER BY created_at`, encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var diags []*EncounterDiagnosis
	for rows.Next() {
		var d EncounterDiagnosis
		if err := rows.Scan(&d.ID, &d.EncounterID, &d.Type, &d.Code, &d.Description, &d.CreatedAt); err != nil {
			return nil, err
		}
		diags = append(diags, &d)
	}
	return diags, rows.Err()
}

// Status History
func (r *repoPG) AddStatusHistory(ctx context.Context, sh *EncounterStatusHistory) error {
	sh.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO encounter_status_history (id, encounter_id, status, period_start, period_end)
		VALUES ($1,$2,$3,$4,$5)`,
		sh.ID, sh.EncounterID, sh.Status, sh.PeriodStart, sh.PeriodEnd,
	)
	return err
}

func (r *repoPG) GetStatusHistory(ctx context.Context, encounterID uuid.UUID) ([]*EncounterStatusHistory, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, encounter_id, status, period_start, period_end
		FROM encounter_status_history WHERE encounter_id = $1 ORDER BY period_start`, encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*EncounterStatusHistory
	for rows.Next() {
		var sh EncounterStatusHistory
		if err := rows.Scan(&sh.ID, &sh.EncounterID, &sh.Status, &sh.PeriodStart, &sh.PeriodEnd); err != nil {
			return nil, err
		}
		history = append(history, &sh)
	}
	return history, rows.Err()
}

func scanEnc(row pgx.Row) (*Encounter, error) {
	var e Encounter
	err := row.Scan(
		&e.ID, &e.PatientID, &e.Type, &e.Status, &e.PriorityCode, &e.Severity, &e.Acuity,
		&e.ChiefComplaint, &e.AttendingPhysicianID, &e.AdmittedAt, &e.DischargedAt,
		&e.DischargeSummary, &e.DischargeDisposition, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func collectEncs(rows pgx.Rows, total int) ([]*Encounter, int, error) {
	var encs []*Encounter
	for rows.Next() {
		var e Encounter
		err := rows.Scan(
			&e.ID, &e.PatientID, &e.Type, &e.Status, &e.PriorityCode, &e.Severity, &e.Acuity,
			&e.ChiefComplaint, &e.AttendingPhysicianID, &e.AdmittedAt, &e.DischargedAt,
			&e.DischargeSummary, &e.DischargeDisposition, &e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		encs = append(encs, &e)
	}
	return encs, total, rows.Err()
}
