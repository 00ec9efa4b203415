// internal/intake/store/store_test.go
package store

import (
	"context"
	"testing"
	"time"

	"intake-service/internal/common/logger"
	"intake-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var intakeColumnNames = []string{
	"id", "user_id", "program_id", "status", "funding_pathway", "version",
	"identity_verified", "identity_document_type", "identity_verified_at",
	"workforce_screening_completed", "workforce_eligible", "workforce_agency",
	"workforce_case_manager", "workforce_funding_type", "workforce_screened_at",
	"employer_screening_completed", "employer_eligible", "employer_name",
	"employer_contact", "employer_reimbursement_confirmed", "employer_screened_at",
	"financial_readiness_completed", "can_pay_down_payment", "can_commit_monthly",
	"accepts_auto_payment", "understands_90_day_limit", "financial_confirmed_at",
	"program_readiness_completed", "start_date_confirmed", "attendance_understood",
	"technology_confirmed", "time_commitment_acknowledged", "outcome_expectations_explained",
	"program_confirmed_at",
	"acknowledgment_signed", "signature_data", "signature_ip", "signed_at",
	"funding_pathway_assigned_by", "funding_pathway_assigned_at",
	"intake_started_at", "intake_completed_at", "created_at", "updated_at",
}

func intakeRow(id, userID, programID string, status models.IntakeStatus, version int) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(intakeColumnNames).AddRow(
		id, userID, programID, string(status), nil, version,
		false, "", nil,
		false, false, "",
		"", "", nil,
		false, false, "",
		"", false, nil,
		false, false, false,
		false, false, nil,
		false, false, false,
		false, false, false,
		nil,
		false, "", "", nil,
		"", nil,
		now, nil, now, now,
	)
}

func newTestStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, logger.NewNoOpLogger()), mock
}

func TestFindByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectQuery(`SELECT .+ FROM intake_records WHERE id = \$1`).
			WithArgs("intake-1").
			WillReturnRows(intakeRow("intake-1", "user-1", "program-1", models.StatusNotStarted, 1))

		rec, err := s.FindByID(context.Background(), "intake-1")
		require.NoError(t, err)
		assert.Equal(t, "user-1", rec.UserID)
		assert.Equal(t, models.StatusNotStarted, rec.Status)
		assert.Empty(t, rec.FundingPathway)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectQuery(`SELECT .+ FROM intake_records WHERE id = \$1`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(intakeColumnNames))

		_, err := s.FindByID(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestInsert(t *testing.T) {
	now := time.Now().UTC()
	rec := &models.IntakeRecord{
		ID:              "intake-1",
		UserID:          "user-1",
		ProgramID:       "program-1",
		Status:          models.StatusNotStarted,
		Version:         1,
		IntakeStartedAt: now,
		CreatedAt:       now,
	}

	t.Run("success writes record and audit entry", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectExec(`INSERT INTO intake_records`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`INSERT INTO audit_log`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := s.Insert(context.Background(), rec)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation maps to ErrDuplicate", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectExec(`INSERT INTO intake_records`).
			WillReturnError(&pq.Error{Code: "23505"})

		err := s.Insert(context.Background(), rec)
		assert.ErrorIs(t, err, ErrDuplicate)
	})
}

func TestUpdate(t *testing.T) {
	rec := &models.IntakeRecord{
		ID:        "intake-1",
		UserID:    "user-1",
		ProgramID: "program-1",
		Status:    models.StatusWorkforceScreening,
		Version:   3,
	}

	t.Run("success increments version", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectExec(`UPDATE intake_records SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO audit_log`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := s.Update(context.Background(), rec)
		require.NoError(t, err)
		assert.Equal(t, 4, rec.Version)
	})

	t.Run("stale version maps to ErrVersionConflict", func(t *testing.T) {
		s, mock := newTestStore(t)
		mock.ExpectExec(`UPDATE intake_records SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		stale := *rec
		err := s.Update(context.Background(), &stale)
		assert.ErrorIs(t, err, ErrVersionConflict)
	})
}

func TestListByUser(t *testing.T) {
	s, mock := newTestStore(t)
	rows := intakeRow("intake-1", "user-1", "program-1", models.StatusCompleted, 9)
	mock.ExpectQuery(`SELECT .+ FROM intake_records WHERE user_id = \$1 AND program_id = \$2`).
		WithArgs("user-1", "program-1").
		WillReturnRows(rows)

	recs, err := s.ListByUser(context.Background(), "user-1", "program-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.StatusCompleted, recs[0].Status)
}
