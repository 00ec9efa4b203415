// Package store persists intake records in PostgreSQL. Updates are
// conditional on the record version: the caller reads, mutates, and writes
// back, and a concurrent writer loses with ErrVersionConflict.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"intake-service/internal/common/logger"
	"intake-service/internal/models"

	"github.com/lib/pq"
)

var (
	ErrNotFound        = errors.New("INTAKE_NOT_FOUND")
	ErrDuplicate       = errors.New("DUPLICATE_INTAKE")
	ErrVersionConflict = errors.New("VERSION_CONFLICT")
)

// Store is the record store contract the workflow consumes.
type Store interface {
	FindByID(ctx context.Context, id string) (*models.IntakeRecord, error)
	FindByUserProgram(ctx context.Context, userID, programID string) (*models.IntakeRecord, error)
	ListByUser(ctx context.Context, userID, programID string) ([]*models.IntakeRecord, error)
	Insert(ctx context.Context, rec *models.IntakeRecord) error
	Update(ctx context.Context, rec *models.IntakeRecord) error
}

// PostgresStore implements Store against PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "intake-store"}),
	}
}

const intakeColumns = `
	id, user_id, program_id, status, funding_pathway, version,
	identity_verified, identity_document_type, identity_verified_at,
	workforce_screening_completed, workforce_eligible, workforce_agency,
	workforce_case_manager, workforce_funding_type, workforce_screened_at,
	employer_screening_completed, employer_eligible, employer_name,
	employer_contact, employer_reimbursement_confirmed, employer_screened_at,
	financial_readiness_completed, can_pay_down_payment, can_commit_monthly,
	accepts_auto_payment, understands_90_day_limit, financial_confirmed_at,
	program_readiness_completed, start_date_confirmed, attendance_understood,
	technology_confirmed, time_commitment_acknowledged, outcome_expectations_explained,
	program_confirmed_at,
	acknowledgment_signed, signature_data, signature_ip, signed_at,
	funding_pathway_assigned_by, funding_pathway_assigned_at,
	intake_started_at, intake_completed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIntake(row rowScanner) (*models.IntakeRecord, error) {
	var rec models.IntakeRecord
	var (
		fundingPathway     sql.NullString
		identityVerifiedAt sql.NullTime
		workforceAt        sql.NullTime
		employerAt         sql.NullTime
		financialAt        sql.NullTime
		programAt          sql.NullTime
		signedAt           sql.NullTime
		assignedAt         sql.NullTime
		completedAt        sql.NullTime
	)

	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.ProgramID, &rec.Status, &fundingPathway, &rec.Version,
		&rec.IdentityVerified, &rec.IdentityDocumentType, &identityVerifiedAt,
		&rec.WorkforceScreeningCompleted, &rec.WorkforceEligible, &rec.WorkforceAgency,
		&rec.WorkforceCaseManager, &rec.WorkforceFundingType, &workforceAt,
		&rec.EmployerScreeningCompleted, &rec.EmployerEligible, &rec.EmployerName,
		&rec.EmployerContact, &rec.EmployerReimbursementConfirmed, &employerAt,
		&rec.FinancialReadinessCompleted, &rec.CanPayDownPayment, &rec.CanCommitMonthly,
		&rec.AcceptsAutoPayment, &rec.Understands90DayLimit, &financialAt,
		&rec.ProgramReadinessCompleted, &rec.StartDateConfirmed, &rec.AttendanceUnderstood,
		&rec.TechnologyConfirmed, &rec.TimeCommitmentAcknowledged, &rec.OutcomeExpectationsExplained,
		&programAt,
		&rec.AcknowledgmentSigned, &rec.SignatureData, &rec.SignatureIP, &signedAt,
		&rec.FundingPathwayAssignedBy, &assignedAt,
		&rec.IntakeStartedAt, &completedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if fundingPathway.Valid {
		rec.FundingPathway = models.FundingPathway(fundingPathway.String)
	}
	rec.IdentityVerifiedAt = nullTime(identityVerifiedAt)
	rec.WorkforceScreenedAt = nullTime(workforceAt)
	rec.EmployerScreenedAt = nullTime(employerAt)
	rec.FinancialConfirmedAt = nullTime(financialAt)
	rec.ProgramConfirmedAt = nullTime(programAt)
	rec.SignedAt = nullTime(signedAt)
	rec.FundingPathwayAssignedAt = nullTime(assignedAt)
	rec.IntakeCompletedAt = nullTime(completedAt)

	return &rec, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullablePathway(p models.FundingPathway) interface{} {
	if p == "" {
		return nil
	}
	return string(p)
}

// FindByID returns a single record by identifier.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.IntakeRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+intakeColumns+` FROM intake_records WHERE id = $1`, id)

	rec, err := scanIntake(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find intake by id: %w", err)
	}
	return rec, nil
}

// FindByUserProgram returns the record for a (user, program) pair.
func (s *PostgresStore) FindByUserProgram(ctx context.Context, userID, programID string) (*models.IntakeRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+intakeColumns+` FROM intake_records WHERE user_id = $1 AND program_id = $2`,
		userID, programID)

	rec, err := scanIntake(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find intake by user/program: %w", err)
	}
	return rec, nil
}

// ListByUser returns the caller's records, optionally filtered by program.
func (s *PostgresStore) ListByUser(ctx context.Context, userID, programID string) ([]*models.IntakeRecord, error) {
	query := `SELECT ` + intakeColumns + ` FROM intake_records WHERE user_id = $1`
	args := []interface{}{userID}
	if programID != "" {
		query += ` AND program_id = $2`
		args = append(args, programID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list intakes: %w", err)
	}
	defer rows.Close()

	var recs []*models.IntakeRecord
	for rows.Next() {
		rec, err := scanIntake(rows)
		if err != nil {
			return nil, fmt.Errorf("scan intake: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Insert creates a new record. The unique (user_id, program_id) constraint
// turns duplicate creation into ErrDuplicate.
func (s *PostgresStore) Insert(ctx context.Context, rec *models.IntakeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO intake_records (
			id, user_id, program_id, status, version,
			intake_started_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		rec.ID, rec.UserID, rec.ProgramID, rec.Status, rec.Version,
		rec.IntakeStartedAt, rec.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("insert intake: %w", err)
	}

	s.auditLog(ctx, "intake_created", rec.ID, map[string]interface{}{
		"userId":    rec.UserID,
		"programId": rec.ProgramID,
	})
	return nil
}

// Update writes the record back conditionally on the version it was read at.
// A concurrent writer that got there first causes ErrVersionConflict.
func (s *PostgresStore) Update(ctx context.Context, rec *models.IntakeRecord) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE intake_records SET
			status = $3, funding_pathway = $4, version = version + 1,
			identity_verified = $5, identity_document_type = $6, identity_verified_at = $7,
			workforce_screening_completed = $8, workforce_eligible = $9, workforce_agency = $10,
			workforce_case_manager = $11, workforce_funding_type = $12, workforce_screened_at = $13,
			employer_screening_completed = $14, employer_eligible = $15, employer_name = $16,
			employer_contact = $17, employer_reimbursement_confirmed = $18, employer_screened_at = $19,
			financial_readiness_completed = $20, can_pay_down_payment = $21, can_commit_monthly = $22,
			accepts_auto_payment = $23, understands_90_day_limit = $24, financial_confirmed_at = $25,
			program_readiness_completed = $26, start_date_confirmed = $27, attendance_understood = $28,
			technology_confirmed = $29, time_commitment_acknowledged = $30, outcome_expectations_explained = $31,
			program_confirmed_at = $32,
			acknowledgment_signed = $33, signature_data = $34, signature_ip = $35, signed_at = $36,
			funding_pathway_assigned_by = $37, funding_pathway_assigned_at = $38,
			intake_completed_at = $39, updated_at = $40
		WHERE id = $1 AND version = $2`,
		rec.ID, rec.Version,
		rec.Status, nullablePathway(rec.FundingPathway),
		rec.IdentityVerified, rec.IdentityDocumentType, rec.IdentityVerifiedAt,
		rec.WorkforceScreeningCompleted, rec.WorkforceEligible, rec.WorkforceAgency,
		rec.WorkforceCaseManager, rec.WorkforceFundingType, rec.WorkforceScreenedAt,
		rec.EmployerScreeningCompleted, rec.EmployerEligible, rec.EmployerName,
		rec.EmployerContact, rec.EmployerReimbursementConfirmed, rec.EmployerScreenedAt,
		rec.FinancialReadinessCompleted, rec.CanPayDownPayment, rec.CanCommitMonthly,
		rec.AcceptsAutoPayment, rec.Understands90DayLimit, rec.FinancialConfirmedAt,
		rec.ProgramReadinessCompleted, rec.StartDateConfirmed, rec.AttendanceUnderstood,
		rec.TechnologyConfirmed, rec.TimeCommitmentAcknowledged, rec.OutcomeExpectationsExplained,
		rec.ProgramConfirmedAt,
		rec.AcknowledgmentSigned, rec.SignatureData, rec.SignatureIP, rec.SignedAt,
		rec.FundingPathwayAssignedBy, rec.FundingPathwayAssignedAt,
		rec.IntakeCompletedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update intake: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update intake rows affected: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	rec.Version++
	s.auditLog(ctx, "intake_updated", rec.ID, map[string]interface{}{
		"status":  string(rec.Status),
		"version": rec.Version,
	})
	return nil
}

// auditLog writes an audit entry (non-critical, log error but don't fail).
func (s *PostgresStore) auditLog(ctx context.Context, eventType, resourceID string, details map[string]interface{}) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		s.logger.Warn("failed to marshal audit log details", map[string]interface{}{"error": err})
		detailsJSON = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		eventType, "intake_record", resourceID, detailsJSON, time.Now().UTC(),
	)
	if err != nil {
		s.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":      err,
			"resourceId": resourceID,
		})
	}
}
