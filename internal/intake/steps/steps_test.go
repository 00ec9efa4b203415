// internal/intake/steps/steps_test.go
package steps

import (
	"encoding/json"
	"testing"
	"time"

	cerr "intake-service/internal/common/errors"
	"intake-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func testRecord(status models.IntakeStatus) *models.IntakeRecord {
	return &models.IntakeRecord{
		ID:        "intake-1",
		UserID:    "user-1",
		ProgramID: "program-1",
		Status:    status,
		Version:   1,
	}
}

func testCaller() models.Caller {
	return models.Caller{UserID: "user-1", Role: models.RoleStudent, IP: "203.0.113.7"}
}

func staffCaller() models.Caller {
	return models.Caller{UserID: "advisor-1", Role: models.RoleAdvisor}
}

func mustParse(t *testing.T, name string, payload string) Step {
	t.Helper()
	step, serr := Parse(name, json.RawMessage(payload))
	require.Nil(t, serr)
	return step
}

// ==========================
// Parse / Schema Validation
// ==========================

func TestParse_UnknownStep(t *testing.T) {
	_, serr := Parse("background_check", json.RawMessage(`{}`))
	require.NotNil(t, serr)
	assert.Equal(t, cerr.ErrCodeUnknownStep, serr.Code)
}

func TestParse_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		step    string
		payload string
	}{
		{"identity without documentType", "identity", `{"verified": true}`},
		{"workforce without agency", "workforce_screening", `{"eligible": true, "caseManager": "J. Doe", "fundingType": "WIOA"}`},
		{"employer without reimbursement flag", "employer_screening", `{"eligible": true, "employerName": "Acme", "contact": "hr@acme.test"}`},
		{"financial missing flag", "financial_readiness", `{"canPayDownPayment": true, "canCommitMonthly": true, "acceptsAutoPayment": true}`},
		{"signature without data", "signature", `{"signed": true}`},
		{"funding pathway empty body", "funding_pathway", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, serr := Parse(tt.step, json.RawMessage(tt.payload))
			require.NotNil(t, serr)
			assert.Equal(t, cerr.ErrCodeValidationFailed, serr.Code)
		})
	}
}

func TestParse_NullableEmployerFields(t *testing.T) {
	step := mustParse(t, "employer_screening",
		`{"eligible": false, "employerName": null, "contact": null, "reimbursementConfirmed": false}`)
	es, ok := step.(*EmployerScreeningStep)
	require.True(t, ok)
	assert.Nil(t, es.EmployerName)
	assert.Nil(t, es.Contact)
}

// ==========================
// Transition Table
// ==========================

func TestIdentityStep_Transitions(t *testing.T) {
	now := time.Now().UTC()

	t.Run("verified advances to workforce_screening", func(t *testing.T) {
		rec := testRecord(models.StatusNotStarted)
		step := mustParse(t, "identity", `{"verified": true, "documentType": "license"}`)

		next, serr := step.Apply(rec, testCaller(), now)
		require.Nil(t, serr)
		assert.Equal(t, models.StatusWorkforceScreening, next)
		assert.True(t, rec.IdentityVerified)
		assert.Equal(t, "license", rec.IdentityDocumentType)
		require.NotNil(t, rec.IdentityVerifiedAt)
	})

	t.Run("unverified stays pending", func(t *testing.T) {
		rec := testRecord(models.StatusNotStarted)
		step := mustParse(t, "identity", `{"verified": false, "documentType": "passport"}`)

		next, serr := step.Apply(rec, testCaller(), now)
		require.Nil(t, serr)
		assert.Equal(t, models.StatusIdentityPending, next)
		assert.False(t, rec.IdentityVerified)
		assert.Nil(t, rec.IdentityVerifiedAt)
	})
}

func TestWorkforceScreeningStep_AlwaysAdvances(t *testing.T) {
	now := time.Now().UTC()

	for _, eligible := range []bool{true, false} {
		rec := testRecord(models.StatusWorkforceScreening)
		step := &WorkforceScreeningStep{
			Eligible:    eligible,
			Agency:      "WorkOne",
			CaseManager: "J. Doe",
			FundingType: "WIOA",
		}

		next, serr := step.Apply(rec, testCaller(), now)
		require.Nil(t, serr)
		assert.Equal(t, models.StatusEmployerScreening, next)
		assert.True(t, rec.WorkforceScreeningCompleted)
		assert.Equal(t, eligible, rec.WorkforceEligible)
		assert.Equal(t, "WorkOne", rec.WorkforceAgency)
	}
}

func TestEmployerScreeningStep_BranchPoint(t *testing.T) {
	now := time.Now().UTC()
	name := "Acme Barbers"
	contact := "hr@acme.test"

	t.Run("eligible skips financial readiness", func(t *testing.T) {
		rec := testRecord(models.StatusEmployerScreening)
		step := &EmployerScreeningStep{
			Eligible:               true,
			EmployerName:           &name,
			Contact:                &contact,
			ReimbursementConfirmed: true,
		}

		next, serr := step.Apply(rec, testCaller(), now)
		require.Nil(t, serr)
		assert.Equal(t, models.StatusProgramReadiness, next)
		assert.Equal(t, "Acme Barbers", rec.EmployerName)
	})

	t.Run("not eligible routes through financial readiness", func(t *testing.T) {
		rec := testRecord(models.StatusEmployerScreening)
		step := &EmployerScreeningStep{Eligible: false}

		next, serr := step.Apply(rec, testCaller(), now)
		require.Nil(t, serr)
		assert.Equal(t, models.StatusFinancialReadiness, next)
		assert.True(t, rec.EmployerScreeningCompleted)
		assert.False(t, rec.EmployerEligible)
	})
}

func TestFinancialReadinessStep_RequiresAllFlags(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name string
		step FinancialReadinessStep
	}{
		{"missing down payment", FinancialReadinessStep{false, true, true, true}},
		{"missing monthly commitment", FinancialReadinessStep{true, false, true, true}},
		{"missing auto payment", FinancialReadinessStep{true, true, false, true}},
		{"missing 90 day acknowledgment", FinancialReadinessStep{true, true, true, false}},
		{"all false", FinancialReadinessStep{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testRecord(models.StatusFinancialReadiness)
			next, serr := tt.step.Apply(rec, testCaller(), now)

			require.NotNil(t, serr)
			assert.Equal(t, cerr.ErrCodeFinancialReadinessIncomplete, serr.Code)
			assert.Equal(t, false, serr.Metadata["canProceed"])
			// record is untouched on gating failure
			assert.Equal(t, models.StatusFinancialReadiness, next)
			assert.False(t, rec.FinancialReadinessCompleted)
		})
	}

	t.Run("all flags true advances", func(t *testing.T) {
		rec := testRecord(models.StatusFinancialReadiness)
		step := &FinancialReadinessStep{true, true, true, true}

		next, serr := step.Apply(rec, testCaller(), now)
		require.Nil(t, serr)
		assert.Equal(t, models.StatusProgramReadiness, next)
		assert.True(t, rec.FinancialReadinessCompleted)
		require.NotNil(t, rec.FinancialConfirmedAt)
	})
}

func TestProgramReadinessStep_AcceptedAsIs(t *testing.T) {
	now := time.Now().UTC()
	rec := testRecord(models.StatusProgramReadiness)
	step := &ProgramReadinessStep{
		StartDateConfirmed:           true,
		AttendanceUnderstood:         true,
		TechnologyConfirmed:          false,
		TimeCommitmentAcknowledged:   true,
		OutcomeExpectationsExplained: true,
	}

	next, serr := step.Apply(rec, testCaller(), now)
	require.Nil(t, serr)
	assert.Equal(t, models.StatusPendingSignature, next)
	assert.True(t, rec.ProgramReadinessCompleted)
	assert.False(t, rec.TechnologyConfirmed)
}

func TestFundingPathwayStep(t *testing.T) {
	now := time.Now().UTC()

	t.Run("valid pathway leaves status unchanged", func(t *testing.T) {
		rec := testRecord(models.StatusEmployerScreening)
		step := &FundingPathwayStep{Pathway: "structured_tuition"}

		next, serr := step.Apply(rec, staffCaller(), now)
		require.Nil(t, serr)
		assert.Equal(t, models.StatusEmployerScreening, next)
		assert.Equal(t, models.PathwayStructuredTuition, rec.FundingPathway)
		assert.Equal(t, "advisor-1", rec.FundingPathwayAssignedBy)
	})

	t.Run("invalid pathway rejected", func(t *testing.T) {
		rec := testRecord(models.StatusEmployerScreening)
		step := &FundingPathwayStep{Pathway: "scholarship"}

		_, serr := step.Apply(rec, staffCaller(), now)
		require.NotNil(t, serr)
		assert.Equal(t, cerr.ErrCodeInvalidFundingPathway, serr.Code)
		assert.Empty(t, rec.FundingPathway)
	})
}

func TestSignatureStep(t *testing.T) {
	now := time.Now().UTC()

	t.Run("signed computes completed and captures IP", func(t *testing.T) {
		rec := testRecord(models.StatusPendingSignature)
		step := &SignatureStep{Signed: true, SignatureData: "data:image/png;base64,..."}

		next, serr := step.Apply(rec, testCaller(), now)
		require.Nil(t, serr)
		assert.Equal(t, models.StatusCompleted, next)
		assert.True(t, rec.AcknowledgmentSigned)
		assert.Equal(t, "203.0.113.7", rec.SignatureIP)
	})

	t.Run("unsigned rejected", func(t *testing.T) {
		rec := testRecord(models.StatusPendingSignature)
		step := &SignatureStep{Signed: false, SignatureData: "x"}

		_, serr := step.Apply(rec, testCaller(), now)
		require.NotNil(t, serr)
		assert.Equal(t, cerr.ErrCodeValidationFailed, serr.Code)
		assert.False(t, rec.AcknowledgmentSigned)
	})
}

// ==========================
// Idempotence
// ==========================

func TestSteps_ResubmissionDoesNotRegressStatus(t *testing.T) {
	now := time.Now().UTC()

	// Record already past employer screening; resubmitting earlier steps must
	// not move status backwards or skip ahead.
	rec := testRecord(models.StatusProgramReadiness)

	identity := mustParse(t, "identity", `{"verified": true, "documentType": "license"}`)
	next, serr := identity.Apply(rec, testCaller(), now)
	require.Nil(t, serr)
	assert.Equal(t, models.StatusProgramReadiness, next)

	employer := &EmployerScreeningStep{Eligible: false}
	next, serr = employer.Apply(rec, testCaller(), now)
	require.Nil(t, serr)
	assert.Equal(t, models.StatusProgramReadiness, next)
}
