package claims

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queryable is satisfied by both *pgxpool.Pool and pgx.Tx, letting the same
// query helpers run inside or outside a transaction.
type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type txKey struct{}

// WithTx returns a context carrying the transaction. Repository methods use
// it when present.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

const duplicateGuardConstraint = "uq_claim_patient_service_date"

const claimColumns = `id, claim_reference, patient_id, provider_id, procedure_code,
	service_start_date, service_end_date, clinical_notes_filename,
	supporting_notes_attached, status, created_at, updated_at`

type PgPatientRepository struct {
	pool *pgxpool.Pool
}

func NewPgPatientRepository(pool *pgxpool.Pool) *PgPatientRepository {
	return &PgPatientRepository{pool: pool}
}

func (r *PgPatientRepository) conn(ctx context.Context) queryable {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.pool
}

func (r *PgPatientRepository) GetByUUID(ctx context.Context, patientID uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, patient_id, date_of_birth, created_at, updated_at
		 FROM patient WHERE patient_id = $1`, patientID).
		Scan(&p.ID, &p.PatientID, &p.DateOfBirth, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

// Delete removes the patient's claims and then the patient row in one
// transaction. The cascade is explicit rather than left to the schema so the
// claim count can be reported.
func (r *PgPatientRepository) Delete(ctx context.Context, patientID uuid.UUID) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin delete patient: %w", err)
	}
	defer tx.Rollback(ctx)
	ctx = WithTx(ctx, tx)

	var id int64
	err = r.conn(ctx).QueryRow(ctx, `SELECT id FROM patient WHERE patient_id = $1`, patientID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lookup patient for delete: %w", err)
	}

	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM claim WHERE patient_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete patient claims: %w", err)
	}
	claimsDeleted := tag.RowsAffected()

	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id); err != nil {
		return 0, fmt.Errorf("delete patient: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit delete patient: %w", err)
	}
	return claimsDeleted, nil
}

type PgProviderRepository struct {
	pool *pgxpool.Pool
}

func NewPgProviderRepository(pool *pgxpool.Pool) *PgProviderRepository {
	return &PgProviderRepository{pool: pool}
}

func (r *PgProviderRepository) conn(ctx context.Context) queryable {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.pool
}

func (r *PgProviderRepository) GetByNPI(ctx context.Context, npi string) (*Provider, error) {
	var p Provider
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, npi_number, physician_name, created_at, updated_at
		 FROM provider WHERE npi_number = $1`, npi).
		Scan(&p.ID, &p.NPINumber, &p.PhysicianName, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return &p, nil
}

type PgClaimRepository struct {
	pool *pgxpool.Pool
}

func NewPgClaimRepository(pool *pgxpool.Pool) *PgClaimRepository {
	return &PgClaimRepository{pool: pool}
}

func (r *PgClaimRepository) conn(ctx context.Context) queryable {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.pool
}

// Submit upserts the patient and provider, then inserts the claim, all in one
// transaction. The unique constraint on (patient_id, service_start_date) is
// the duplicate authority; a violation is translated to *DuplicateError
// carrying the reference of the existing claim.
func (r *PgClaimRepository) Submit(ctx context.Context, vc *ValidatedClaim) (*Claim, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin submit: %w", err)
	}
	defer tx.Rollback(ctx)
	ctx = WithTx(ctx, tx)

	var patientID int64
	err = r.conn(ctx).QueryRow(ctx,
		`INSERT INTO patient (patient_id, date_of_birth)
		 VALUES ($1, $2)
		 ON CONFLICT (patient_id) DO UPDATE SET updated_at = NOW()
		 RETURNING id`, vc.PatientID, vc.DateOfBirth).Scan(&patientID)
	if err != nil {
		return nil, fmt.Errorf("upsert patient: %w", err)
	}

	var providerID int64
	err = r.conn(ctx).QueryRow(ctx,
		`INSERT INTO provider (npi_number, physician_name)
		 VALUES ($1, $2)
		 ON CONFLICT (npi_number) DO UPDATE
		 SET physician_name = EXCLUDED.physician_name, updated_at = NOW()
		 RETURNING id`, vc.NPINumber, vc.PhysicianName).Scan(&providerID)
	if err != nil {
		return nil, fmt.Errorf("upsert provider: %w", err)
	}

	var c Claim
	err = r.conn(ctx).QueryRow(ctx,
		`INSERT INTO claim (claim_reference, patient_id, provider_id, procedure_code,
			service_start_date, service_end_date, clinical_notes_filename,
			supporting_notes_attached, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+claimColumns,
		uuid.New(), patientID, providerID, vc.ProcedureCode,
		vc.ServiceStartDate, vc.ServiceEndDate, vc.ClinicalNotesFilename,
		vc.SupportingNotesAttached, StatusSubmitted).
		Scan(&c.ID, &c.ClaimReference, &c.PatientID, &c.ProviderID, &c.ProcedureCode,
			&c.ServiceStartDate, &c.ServiceEndDate, &c.ClinicalNotesFilename,
			&c.SupportingNotesAttached, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == duplicateGuardConstraint {
			return nil, r.duplicateError(ctx, vc)
		}
		return nil, fmt.Errorf("insert claim: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit submit: %w", err)
	}
	return &c, nil
}

// duplicateError resolves the reference of the claim that blocked the insert.
// The lookup runs on the pool since the failed transaction is unusable.
func (r *PgClaimRepository) duplicateError(ctx context.Context, vc *ValidatedClaim) error {
	var ref uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT c.claim_reference
		 FROM claim c JOIN patient p ON p.id = c.patient_id
		 WHERE p.patient_id = $1 AND c.service_start_date = $2`,
		vc.PatientID, vc.ServiceStartDate).Scan(&ref)
	if err != nil {
		return fmt.Errorf("resolve duplicate claim: %w", err)
	}
	return &DuplicateError{ExistingRef: ref}
}

func (r *PgClaimRepository) GetByReference(ctx context.Context, ref uuid.UUID) (*ClaimDetail, error) {
	var d ClaimDetail
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT c.id, c.claim_reference, c.patient_id, c.provider_id, c.procedure_code,
			c.service_start_date, c.service_end_date, c.clinical_notes_filename,
			c.supporting_notes_attached, c.status, c.created_at, c.updated_at,
			p.patient_id, p.date_of_birth, pr.npi_number, pr.physician_name
		 FROM claim c
		 JOIN patient p ON p.id = c.patient_id
		 JOIN provider pr ON pr.id = c.provider_id
		 WHERE c.claim_reference = $1`, ref).
		Scan(&d.ID, &d.ClaimReference, &d.PatientID, &d.ProviderID, &d.ProcedureCode,
			&d.ServiceStartDate, &d.ServiceEndDate, &d.ClinicalNotesFilename,
			&d.SupportingNotesAttached, &d.Status, &d.CreatedAt, &d.UpdatedAt,
			&d.PatientUUID, &d.DateOfBirth, &d.NPINumber, &d.PhysicianName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return &d, nil
}

func (r *PgClaimRepository) UpdateStatus(ctx context.Context, ref uuid.UUID, status string) (*Claim, error) {
	var c Claim
	err := r.conn(ctx).QueryRow(ctx,
		`UPDATE claim SET status = $2, updated_at = NOW()
		 WHERE claim_reference = $1
		 RETURNING `+claimColumns, ref, status).
		Scan(&c.ID, &c.ClaimReference, &c.PatientID, &c.ProviderID, &c.ProcedureCode,
			&c.ServiceStartDate, &c.ServiceEndDate, &c.ClinicalNotesFilename,
			&c.SupportingNotesAttached, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update claim status: %w", err)
	}
	return &c, nil
}

func (r *PgClaimRepository) Stats(ctx context.Context) (*ClaimStats, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT status, COUNT(*) FROM claim GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("claim stats: %w", err)
	}
	defer rows.Close()

	stats := &ClaimStats{ByStatus: make(map[string]int64)}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan claim stats: %w", err)
		}
		stats.ByStatus[status] = count
		stats.TotalClaims += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim stats rows: %w", err)
	}
	return stats, nil
}

func (r *PgClaimRepository) ListGuardKeys(ctx context.Context) ([]GuardKey, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT p.patient_id, c.service_start_date, c.claim_reference
		 FROM claim c JOIN patient p ON p.id = c.patient_id`)
	if err != nil {
		return nil, fmt.Errorf("list guard keys: %w", err)
	}
	defer rows.Close()

	var keys []GuardKey
	for rows.Next() {
		var k GuardKey
		if err := rows.Scan(&k.PatientUUID, &k.ServiceStartDate, &k.ClaimReference); err != nil {
			return nil, fmt.Errorf("scan guard key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("guard key rows: %w", err)
	}
	return keys, nil
}
