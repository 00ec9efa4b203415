// internal/intake/service_test.go
package intake

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	cerr "intake-service/internal/common/errors"
	"intake-service/internal/common/logger"
	"intake-service/internal/intake/store"
	"intake-service/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store with the same version semantics as the
// PostgreSQL implementation.
type fakeStore struct {
	mu   sync.Mutex
	recs map[string]*models.IntakeRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: make(map[string]*models.IntakeRecord)}
}

func (f *fakeStore) FindByID(_ context.Context, id string) (*models.IntakeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) FindByUserProgram(_ context.Context, userID, programID string) (*models.IntakeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.recs {
		if rec.UserID == userID && rec.ProgramID == programID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListByUser(_ context.Context, userID, programID string) ([]*models.IntakeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.IntakeRecord
	for _, rec := range f.recs {
		if rec.UserID == userID && (programID == "" || rec.ProgramID == programID) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) Insert(_ context.Context, rec *models.IntakeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.recs {
		if existing.UserID == rec.UserID && existing.ProgramID == rec.ProgramID {
			return store.ErrDuplicate
		}
	}
	cp := *rec
	f.recs[rec.ID] = &cp
	return nil
}

func (f *fakeStore) Update(_ context.Context, rec *models.IntakeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.recs[rec.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != rec.Version {
		return store.ErrVersionConflict
	}
	cp := *rec
	cp.Version++
	f.recs[rec.ID] = &cp
	rec.Version++
	return nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	completed []string
}

func (n *fakeNotifier) NotifyCompleted(_ context.Context, rec *models.IntakeRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, rec.ID)
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeNotifier, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := newFakeStore()
	notifier := &fakeNotifier{}
	svc := NewService(st, client, logger.NewNoOpLogger(), Options{
		Notifier: notifier,
		LockTTL:  time.Second,
		LockWait: 100 * time.Millisecond,
	})
	return svc, st, notifier, client
}

var (
	student = models.Caller{UserID: "user-1", Role: models.RoleStudent, IP: "10.0.0.1"}
	advisor = models.Caller{UserID: "advisor-1", Role: models.RoleAdvisor}
)

func mustCreate(t *testing.T, svc *Service) *models.IntakeRecord {
	t.Helper()
	rec, serr := svc.Create(context.Background(), student, "user-1", "program-1")
	require.Nil(t, serr)
	return rec
}

func submit(t *testing.T, svc *Service, caller models.Caller, id, step, payload string) (*models.IntakeRecord, *cerr.StandardError) {
	t.Helper()
	return svc.SubmitStep(context.Background(), caller, id, step, json.RawMessage(payload))
}

func TestCreate(t *testing.T) {
	t.Run("creates a not_started record", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		rec := mustCreate(t, svc)
		assert.Equal(t, models.StatusNotStarted, rec.Status)
		assert.Equal(t, 1, rec.Version)
		assert.NotEmpty(t, rec.ID)
	})

	t.Run("duplicate create returns existing id and status", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		rec := mustCreate(t, svc)

		_, serr := svc.Create(context.Background(), student, "user-1", "program-1")
		require.NotNil(t, serr)
		assert.Equal(t, cerr.ErrCodeDuplicateIntake, serr.Code)
		assert.Equal(t, rec.ID, serr.Metadata["intakeId"])
		assert.Equal(t, string(models.StatusNotStarted), serr.Metadata["status"])
	})

	t.Run("student cannot create for another user", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		_, serr := svc.Create(context.Background(), student, "user-2", "program-1")
		require.NotNil(t, serr)
		assert.Equal(t, cerr.ErrCodeForbidden, serr.Code)
	})
}

// Walks the full path for an employer-ineligible applicant: identity,
// workforce, employer (not eligible), financial, program, pathway, signature.
func TestSubmitStep_FullProgression(t *testing.T) {
	svc, _, notifier, _ := newTestService(t)
	rec := mustCreate(t, svc)
	id := rec.ID

	rec, serr := submit(t, svc, student, id, "identity", `{"verified":true,"documentType":"passport"}`)
	require.Nil(t, serr)
	assert.Equal(t, models.StatusWorkforceScreening, rec.Status)

	rec, serr = submit(t, svc, student, id, "workforce_screening",
		`{"eligible":false,"agency":"","caseManager":"","fundingType":""}`)
	require.Nil(t, serr)
	assert.Equal(t, models.StatusEmployerScreening, rec.Status)

	rec, serr = submit(t, svc, student, id, "employer_screening",
		`{"eligible":false,"employerName":null,"contact":null,"reimbursementConfirmed":false}`)
	require.Nil(t, serr)
	assert.Equal(t, models.StatusFinancialReadiness, rec.Status)

	rec, serr = submit(t, svc, student, id, "financial_readiness",
		`{"canPayDownPayment":true,"canCommitMonthly":true,"acceptsAutoPayment":true,"understands90DayLimit":true}`)
	require.Nil(t, serr)
	assert.Equal(t, models.StatusProgramReadiness, rec.Status)

	rec, serr = submit(t, svc, student, id, "program_readiness",
		`{"startDateConfirmed":true,"attendanceUnderstood":true,"technologyConfirmed":true,"timeCommitmentAcknowledged":true,"outcomeExpectationsExplained":true}`)
	require.Nil(t, serr)
	assert.Equal(t, models.StatusPendingSignature, rec.Status)

	rec, serr = submit(t, svc, advisor, id, "funding_pathway", `{"pathway":"structured_tuition"}`)
	require.Nil(t, serr)
	assert.Equal(t, models.StatusPendingSignature, rec.Status)
	assert.Equal(t, models.PathwayStructuredTuition, rec.FundingPathway)
	assert.Equal(t, "advisor-1", rec.FundingPathwayAssignedBy)

	rec, serr = submit(t, svc, student, id, "signature", `{"signed":true,"signatureData":"data:sig"}`)
	require.Nil(t, serr)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.NotNil(t, rec.IntakeCompletedAt)
	assert.Equal(t, "10.0.0.1", rec.SignatureIP)
	assert.Equal(t, []string{id}, notifier.completed)
}

func TestSubmitStep_EmployerEligibleSkipsFinancial(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	rec := mustCreate(t, svc)
	id := rec.ID

	_, serr := submit(t, svc, student, id, "identity", `{"verified":true,"documentType":"passport"}`)
	require.Nil(t, serr)
	_, serr = submit(t, svc, student, id, "workforce_screening",
		`{"eligible":false,"agency":"","caseManager":"","fundingType":""}`)
	require.Nil(t, serr)

	rec, serr = submit(t, svc, student, id, "employer_screening",
		`{"eligible":true,"employerName":"Acme","contact":"hr@acme.test","reimbursementConfirmed":true}`)
	require.Nil(t, serr)
	assert.Equal(t, models.StatusProgramReadiness, rec.Status)
	assert.Equal(t, "Acme", rec.EmployerName)
}

func TestSubmitStep_CompletionValidationFailure(t *testing.T) {
	svc, st, notifier, _ := newTestService(t)
	rec := mustCreate(t, svc)
	id := rec.ID

	_, serr := submit(t, svc, student, id, "identity", `{"verified":true,"documentType":"passport"}`)
	require.Nil(t, serr)
	_, serr = submit(t, svc, student, id, "workforce_screening",
		`{"eligible":true,"agency":"WorkOne","caseManager":"J. Doe","fundingType":"WIOA"}`)
	require.Nil(t, serr)
	_, serr = submit(t, svc, student, id, "employer_screening",
		`{"eligible":true,"employerName":"Acme","contact":null,"reimbursementConfirmed":true}`)
	require.Nil(t, serr)
	_, serr = submit(t, svc, student, id, "program_readiness",
		`{"startDateConfirmed":true,"attendanceUnderstood":true,"technologyConfirmed":true,"timeCommitmentAcknowledged":true,"outcomeExpectationsExplained":true}`)
	require.Nil(t, serr)

	// No funding pathway assigned: signing must not complete the intake.
	_, serr = submit(t, svc, student, id, "signature", `{"signed":true,"signatureData":"data:sig"}`)
	require.NotNil(t, serr)
	assert.Equal(t, cerr.ErrCodeCompletionValidationFailed, serr.Code)
	assert.Contains(t, serr.Metadata["errors"], "Funding pathway not assigned")

	// The signature data is kept, the terminal status is not.
	saved, err := st.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingSignature, saved.Status)
	assert.True(t, saved.AcknowledgmentSigned)
	assert.Nil(t, saved.IntakeCompletedAt)
	assert.Empty(t, notifier.completed)
}

func TestSubmitStep_ResubmissionDoesNotRegress(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	rec := mustCreate(t, svc)
	id := rec.ID

	_, serr := submit(t, svc, student, id, "identity", `{"verified":true,"documentType":"passport"}`)
	require.Nil(t, serr)
	rec, serr = submit(t, svc, student, id, "workforce_screening",
		`{"eligible":false,"agency":"","caseManager":"","fundingType":""}`)
	require.Nil(t, serr)
	require.Equal(t, models.StatusEmployerScreening, rec.Status)

	// Resubmitting an earlier step updates its fields without moving back.
	rec, serr = submit(t, svc, student, id, "identity", `{"verified":true,"documentType":"drivers_license"}`)
	require.Nil(t, serr)
	assert.Equal(t, models.StatusEmployerScreening, rec.Status)
	assert.Equal(t, "drivers_license", rec.IdentityDocumentType)
}

func TestSubmitStep_Authorization(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	rec := mustCreate(t, svc)

	t.Run("student cannot assign funding pathway", func(t *testing.T) {
		_, serr := submit(t, svc, student, rec.ID, "funding_pathway", `{"pathway":"workforce_funded"}`)
		require.NotNil(t, serr)
		assert.Equal(t, cerr.ErrCodeForbidden, serr.Code)
	})

	t.Run("stranger cannot submit a step", func(t *testing.T) {
		other := models.Caller{UserID: "user-2", Role: models.RoleStudent}
		_, serr := submit(t, svc, other, rec.ID, "identity", `{"verified":true,"documentType":"passport"}`)
		require.NotNil(t, serr)
		assert.Equal(t, cerr.ErrCodeForbidden, serr.Code)
	})
}

func TestSubmitStep_LockContention(t *testing.T) {
	svc, _, _, client := newTestService(t)
	rec := mustCreate(t, svc)

	// Simulate a held lock from another in-flight submission.
	require.NoError(t, client.SetNX(context.Background(), "intake:lock:"+rec.ID, "1", time.Minute).Err())

	_, serr := submit(t, svc, student, rec.ID, "identity", `{"verified":true,"documentType":"passport"}`)
	require.NotNil(t, serr)
	assert.Equal(t, cerr.ErrCodeRecordLocked, serr.Code)
	assert.True(t, serr.Retryable)
}

func TestSubmitStep_Failures(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	rec := mustCreate(t, svc)

	t.Run("unknown step", func(t *testing.T) {
		_, serr := submit(t, svc, student, rec.ID, "phrenology_screening", `{}`)
		require.NotNil(t, serr)
		assert.Equal(t, cerr.ErrCodeUnknownStep, serr.Code)
	})

	t.Run("missing record", func(t *testing.T) {
		_, serr := submit(t, svc, advisor, "nope", "identity", `{"verified":true,"documentType":"passport"}`)
		require.NotNil(t, serr)
		assert.Equal(t, cerr.ErrCodeIntakeNotFound, serr.Code)
	})

	t.Run("rejected financial step leaves record untouched", func(t *testing.T) {
		_, serr := submit(t, svc, student, rec.ID, "identity", `{"verified":true,"documentType":"passport"}`)
		require.Nil(t, serr)

		before, gerr := svc.Get(context.Background(), student, rec.ID)
		require.Nil(t, gerr)

		_, serr = submit(t, svc, student, rec.ID, "financial_readiness",
			`{"canPayDownPayment":true,"canCommitMonthly":false,"acceptsAutoPayment":true,"understands90DayLimit":true}`)
		require.NotNil(t, serr)
		assert.Equal(t, cerr.ErrCodeFinancialReadinessIncomplete, serr.Code)

		after, gerr := svc.Get(context.Background(), student, rec.ID)
		require.Nil(t, gerr)
		assert.Equal(t, before.Version, after.Version)
		assert.False(t, after.FinancialReadinessCompleted)
	})
}

func TestGetAndList(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	rec := mustCreate(t, svc)

	t.Run("owner and staff can view", func(t *testing.T) {
		got, serr := svc.Get(context.Background(), student, rec.ID)
		require.Nil(t, serr)
		assert.Equal(t, rec.ID, got.ID)

		_, serr = svc.Get(context.Background(), advisor, rec.ID)
		assert.Nil(t, serr)
	})

	t.Run("stranger cannot view", func(t *testing.T) {
		other := models.Caller{UserID: "user-2", Role: models.RoleStudent}
		_, serr := svc.Get(context.Background(), other, rec.ID)
		require.NotNil(t, serr)
		assert.Equal(t, cerr.ErrCodeForbidden, serr.Code)
	})

	t.Run("list defaults to caller", func(t *testing.T) {
		recs, serr := svc.List(context.Background(), student, "", "")
		require.Nil(t, serr)
		require.Len(t, recs, 1)
		assert.Equal(t, rec.ID, recs[0].ID)
	})

	t.Run("student cannot list another user", func(t *testing.T) {
		_, serr := svc.List(context.Background(), student, "user-2", "")
		require.NotNil(t, serr)
		assert.Equal(t, cerr.ErrCodeForbidden, serr.Code)
	})
}
