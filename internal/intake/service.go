// Package intake orchestrates the intake workflow: record creation, step
// submission, and completion. Step submissions are serialized per record with
// a Redis lock, and persisted writes are conditional on the record version.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	cerr "intake-service/internal/common/errors"
	"intake-service/internal/common/logger"
	"intake-service/internal/common/metrics"
	"intake-service/internal/common/observability"
	"intake-service/internal/intake/authz"
	"intake-service/internal/intake/steps"
	"intake-service/internal/intake/store"
	"intake-service/internal/intake/validator"
	"intake-service/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockRetryInterval = 50 * time.Millisecond

// Indexer mirrors intake records into the search index. Indexing is
// best-effort: a failed index never fails the request.
type Indexer interface {
	IndexIntake(ctx context.Context, rec *models.IntakeRecord) error
}

// Notifier delivers completion notifications. Best-effort.
type Notifier interface {
	NotifyCompleted(ctx context.Context, rec *models.IntakeRecord)
}

// Service implements the intake workflow operations.
type Service struct {
	store    store.Store
	redis    *redis.Client
	indexer  Indexer
	notifier Notifier
	obs      *observability.Observability
	logger   logger.Logger

	lockTTL  time.Duration
	lockWait time.Duration
	now      func() time.Time
}

// Options carries the optional collaborators and tuning knobs.
type Options struct {
	Indexer  Indexer
	Notifier Notifier
	Obs      *observability.Observability
	LockTTL  time.Duration
	LockWait time.Duration
	Now      func() time.Time
}

func NewService(st store.Store, redisClient *redis.Client, log logger.Logger, opts Options) *Service {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:    st,
		redis:    redisClient,
		indexer:  opts.Indexer,
		notifier: opts.Notifier,
		obs:      opts.Obs,
		logger:   log.WithFields(map[string]interface{}{"component": "intake-service"}),
		lockTTL:  opts.LockTTL,
		lockWait: opts.LockWait,
		now:      opts.Now,
	}
}

// Create starts a new intake for a (user, program) pair. Students may only
// start their own; staff may start on anyone's behalf. The pair is unique:
// a second create returns the existing record's id and status.
func (s *Service) Create(ctx context.Context, caller models.Caller, userID, programID string) (*models.IntakeRecord, *cerr.StandardError) {
	if userID == "" {
		userID = caller.UserID
	}
	if userID != caller.UserID && !caller.Role.IsStaff() {
		return nil, cerr.NewForbiddenError("cannot start an intake for another user")
	}
	if programID == "" {
		return nil, cerr.NewValidationFailedError("programId is required")
	}

	if existing, err := s.store.FindByUserProgram(ctx, userID, programID); err == nil {
		return nil, cerr.NewDuplicateIntakeError(existing.ID, string(existing.Status))
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, cerr.NewStoreFailureError(err)
	}

	now := s.now()
	rec := &models.IntakeRecord{
		ID:              uuid.NewString(),
		UserID:          userID,
		ProgramID:       programID,
		Status:          models.StatusNotStarted,
		Version:         1,
		IntakeStartedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost the race with a concurrent create for the same pair.
			if existing, ferr := s.store.FindByUserProgram(ctx, userID, programID); ferr == nil {
				return nil, cerr.NewDuplicateIntakeError(existing.ID, string(existing.Status))
			}
			return nil, cerr.NewDuplicateIntakeError("", "")
		}
		return nil, cerr.NewStoreFailureError(err)
	}

	metrics.IntakeRecordsCreated.Inc()
	s.index(ctx, rec)
	s.logger.Info("intake created", map[string]interface{}{
		"intakeId":  rec.ID,
		"userId":    rec.UserID,
		"programId": rec.ProgramID,
	})
	return rec, nil
}

// Get returns a single intake record, subject to view authorization.
func (s *Service) Get(ctx context.Context, caller models.Caller, intakeID string) (*models.IntakeRecord, *cerr.StandardError) {
	rec, err := s.store.FindByID(ctx, intakeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, cerr.NewIntakeNotFoundError(intakeID)
	}
	if err != nil {
		return nil, cerr.NewStoreFailureError(err)
	}
	if !authz.CanView(caller, rec) {
		return nil, cerr.NewForbiddenError("caller cannot view this intake record")
	}
	return rec, nil
}

// List returns intake records for a user, optionally narrowed to one program.
// Students see only their own; staff may list anyone's.
func (s *Service) List(ctx context.Context, caller models.Caller, userID, programID string) ([]*models.IntakeRecord, *cerr.StandardError) {
	if userID == "" {
		userID = caller.UserID
	}
	if userID != caller.UserID && !caller.Role.IsStaff() {
		return nil, cerr.NewForbiddenError("cannot list another user's intakes")
	}

	recs, err := s.store.ListByUser(ctx, userID, programID)
	if err != nil {
		return nil, cerr.NewStoreFailureError(err)
	}
	return recs, nil
}

// SubmitStep processes one intake step against a record. The flow is
// lock, load, authorize, apply, validate (for the terminal transition),
// then a version-conditional write. Gating failures leave the record as-is.
func (s *Service) SubmitStep(ctx context.Context, caller models.Caller, intakeID, stepName string, payload json.RawMessage) (*models.IntakeRecord, *cerr.StandardError) {
	start := s.now()

	step, serr := steps.Parse(stepName, payload)
	if serr != nil {
		metrics.IntakeStepsFailed.WithLabelValues(stepName, string(serr.Code)).Inc()
		return nil, serr
	}

	unlock, serr := s.acquireLock(ctx, intakeID)
	if serr != nil {
		metrics.IntakeStepsFailed.WithLabelValues(stepName, string(serr.Code)).Inc()
		return nil, serr
	}
	defer unlock()

	rec, err := s.store.FindByID(ctx, intakeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, s.stepFailed(stepName, cerr.NewIntakeNotFoundError(intakeID))
	}
	if err != nil {
		return nil, s.stepFailed(stepName, cerr.NewStoreFailureError(err))
	}

	if !authz.CanSubmit(step.Name(), caller, rec) {
		return nil, s.stepFailed(stepName, cerr.NewForbiddenError("caller cannot submit this step"))
	}

	// Work on a copy so a rejected step never leaks partial mutations.
	work := *rec
	now := s.now()

	next, serr := step.Apply(&work, caller, now)
	if serr != nil {
		return nil, s.stepFailed(stepName, serr)
	}

	completing := next == models.StatusCompleted && !rec.Status.IsTerminal()
	if completing {
		res := validator.ValidateCompletion(&work)
		if !res.Valid {
			// Keep the step's field updates but hold the record short of
			// the terminal status.
			work.Status = rec.Status.AdvanceTo(models.StatusPendingSignature)
			if uerr := s.persist(ctx, &work); uerr != nil {
				return nil, s.stepFailed(stepName, uerr)
			}
			return nil, s.stepFailed(stepName,
				cerr.NewCompletionValidationFailedError(res.Errors, string(res.NextStep)))
		}
		work.IntakeCompletedAt = &now
	}

	work.Status = next
	if uerr := s.persist(ctx, &work); uerr != nil {
		return nil, s.stepFailed(stepName, uerr)
	}

	metrics.IntakeStepsProcessed.WithLabelValues(stepName).Inc()
	metrics.IntakeStepDuration.WithLabelValues(stepName).Observe(s.now().Sub(start).Seconds())
	if s.obs != nil {
		s.obs.RecordStepProcessed(ctx, stepName, string(work.Status))
		s.obs.RecordStepDuration(ctx, s.now().Sub(start), stepName)
	}

	if completing {
		metrics.IntakesCompleted.Inc()
		if s.notifier != nil {
			s.notifier.NotifyCompleted(ctx, &work)
		}
	}

	s.index(ctx, &work)
	s.logger.Info("intake step processed", map[string]interface{}{
		"intakeId": work.ID,
		"step":     stepName,
		"status":   string(work.Status),
		"version":  work.Version,
	})
	return &work, nil
}

func (s *Service) persist(ctx context.Context, rec *models.IntakeRecord) *cerr.StandardError {
	err := s.store.Update(ctx, rec)
	if errors.Is(err, store.ErrVersionConflict) {
		return cerr.NewVersionConflictError(rec.ID)
	}
	if err != nil {
		return cerr.NewStoreFailureError(err)
	}
	return nil
}

func (s *Service) stepFailed(stepName string, serr *cerr.StandardError) *cerr.StandardError {
	metrics.IntakeStepsFailed.WithLabelValues(stepName, string(serr.Code)).Inc()
	return serr
}

// acquireLock takes the per-record submission lock, retrying until lockWait
// elapses. The TTL bounds lock lifetime if a holder dies mid-submission.
func (s *Service) acquireLock(ctx context.Context, intakeID string) (func(), *cerr.StandardError) {
	if s.redis == nil {
		return func() {}, nil
	}

	key := "intake:lock:" + intakeID
	deadline := time.Now().Add(s.lockWait)
	for {
		ok, err := s.redis.SetNX(ctx, key, "1", s.lockTTL).Result()
		if err != nil {
			s.logger.Warn("lock acquisition failed, proceeding without lock", map[string]interface{}{
				"intakeId": intakeID,
				"error":    err.Error(),
			})
			return func() {}, nil
		}
		if ok {
			return func() {
				if err := s.redis.Del(context.Background(), key).Err(); err != nil {
					s.logger.Warn("lock release failed", map[string]interface{}{
						"intakeId": intakeID,
						"error":    err.Error(),
					})
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, cerr.NewRecordLockedError(intakeID)
		}
		select {
		case <-ctx.Done():
			return nil, cerr.NewRecordLockedError(intakeID)
		case <-time.After(lockRetryInterval):
		}
	}
}

func (s *Service) index(ctx context.Context, rec *models.IntakeRecord) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexIntake(ctx, rec); err != nil {
		s.logger.Warn("search index update failed", map[string]interface{}{
			"intakeId": rec.ID,
			"error":    err.Error(),
		})
	}
}
