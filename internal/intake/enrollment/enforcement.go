// Package enrollment enforces the funding pathways downstream of intake:
// enrollment is gated on a completed intake, structured tuition carries a
// bridge payment plan, and credentials are held until the balance clears.
package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"intake-service/internal/common/logger"
	"intake-service/internal/intake/store"
	"intake-service/internal/intake/validator"
	"intake-service/internal/models"

	"github.com/google/uuid"
)

// Bridge plan terms for structured tuition.
const (
	MinDownPayment    = 500.0
	MinMonthlyPayment = 250.0
	MaxTermMonths     = 3
	MaxTermDays       = 90
)

// Employer sponsorship reimbursement bounds.
const (
	MinMonthlyReimbursement = 100.0
	MaxMonthlyReimbursement = 2000.0
	MinSponsorshipMonths    = 1
	MaxSponsorshipMonths    = 12
)

// EligibilityResult reports whether a user may enroll in a program.
type EligibilityResult struct {
	CanEnroll      bool                  `json:"canEnroll"`
	Errors         []string              `json:"errors"`
	FundingPathway models.FundingPathway `json:"fundingPathway,omitempty"`
}

// TermsResult reports whether payment terms are within bounds.
type TermsResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Enforcer evaluates enrollment, payment-plan, and credential gates.
type Enforcer struct {
	db     *sql.DB
	store  store.Store
	logger logger.Logger
}

func NewEnforcer(db *sql.DB, st store.Store, log logger.Logger) *Enforcer {
	return &Enforcer{
		db:     db,
		store:  st,
		logger: log.WithFields(map[string]interface{}{"component": "enrollment-enforcer"}),
	}
}

// ValidateEligibility checks that the (user, program) pair holds a completed
// intake with an assigned funding pathway. The intake record is re-validated
// even when its status says completed.
func (e *Enforcer) ValidateEligibility(ctx context.Context, userID, programID string) (EligibilityResult, error) {
	rec, err := e.store.FindByUserProgram(ctx, userID, programID)
	if errors.Is(err, store.ErrNotFound) {
		return EligibilityResult{
			CanEnroll: false,
			Errors:    []string{"Intake not completed. Complete intake before enrollment."},
		}, nil
	}
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("load intake: %w", err)
	}

	if rec.Status != models.StatusCompleted {
		return EligibilityResult{
			CanEnroll: false,
			Errors:    []string{"Intake not completed. Complete intake before enrollment."},
		}, nil
	}

	if res := validator.ValidateCompletion(rec); !res.Valid {
		return EligibilityResult{CanEnroll: false, Errors: res.Errors}, nil
	}

	if rec.FundingPathway == "" {
		return EligibilityResult{
			CanEnroll: false,
			Errors:    []string{"Funding pathway not assigned"},
		}, nil
	}

	return EligibilityResult{
		CanEnroll:      true,
		Errors:         []string{},
		FundingPathway: rec.FundingPathway,
	}, nil
}

// ValidateBridgePlanTerms checks structured-tuition payment terms against
// the plan bounds.
func ValidateBridgePlanTerms(downPayment, monthlyPayment float64, termMonths int) TermsResult {
	var errs []string

	if downPayment < MinDownPayment {
		errs = append(errs, fmt.Sprintf("Down payment must be at least $%.0f", MinDownPayment))
	}
	if monthlyPayment < MinMonthlyPayment {
		errs = append(errs, fmt.Sprintf("Monthly payment must be at least $%.0f", MinMonthlyPayment))
	}
	if termMonths > MaxTermMonths {
		errs = append(errs, fmt.Sprintf("Payment plan cannot exceed %d months", MaxTermMonths))
	}

	return TermsResult{Valid: len(errs) == 0, Errors: errs}
}

// ValidateSponsorshipTerms checks employer reimbursement terms.
func ValidateSponsorshipTerms(monthlyReimbursement float64, termMonths int) TermsResult {
	var errs []string

	if monthlyReimbursement < MinMonthlyReimbursement {
		errs = append(errs, fmt.Sprintf("Monthly reimbursement must be at least $%.0f", MinMonthlyReimbursement))
	}
	if monthlyReimbursement > MaxMonthlyReimbursement {
		errs = append(errs, fmt.Sprintf("Monthly reimbursement cannot exceed $%.0f", MaxMonthlyReimbursement))
	}
	if termMonths < MinSponsorshipMonths {
		errs = append(errs, fmt.Sprintf("Term must be at least %d months", MinSponsorshipMonths))
	}
	if termMonths > MaxSponsorshipMonths {
		errs = append(errs, fmt.Sprintf("Term cannot exceed %d months", MaxSponsorshipMonths))
	}

	return TermsResult{Valid: len(errs) == 0, Errors: errs}
}

// CreateBridgePlan opens a structured-tuition payment plan at the minimum
// terms. Credential hold and auto-payment are on from the start.
func (e *Enforcer) CreateBridgePlan(ctx context.Context, enrollmentID, userID string, totalAmount float64) (string, error) {
	if terms := ValidateBridgePlanTerms(MinDownPayment, MinMonthlyPayment, MaxTermMonths); !terms.Valid {
		return "", fmt.Errorf("invalid bridge plan terms: %v", terms.Errors)
	}

	planID := uuid.NewString()
	start := time.Now().UTC()
	end := start.AddDate(0, 0, MaxTermDays)

	_, err := e.db.ExecContext(ctx, `
		INSERT INTO bridge_payment_plans (
			id, enrollment_id, user_id,
			down_payment_amount, monthly_payment_amount, max_term_months,
			total_amount, balance_remaining,
			plan_start_date, plan_end_date,
			auto_payment_enabled, credential_hold, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8, $9, true, true, 'active', $10)`,
		planID, enrollmentID, userID,
		MinDownPayment, MinMonthlyPayment, MaxTermMonths,
		totalAmount,
		start.Format("2006-01-02"), end.Format("2006-01-02"),
		start,
	)
	if err != nil {
		return "", fmt.Errorf("create bridge plan: %w", err)
	}

	e.logger.Info("bridge payment plan created", map[string]interface{}{
		"planId":       planID,
		"enrollmentId": enrollmentID,
		"totalAmount":  totalAmount,
	})
	return planID, nil
}

// CredentialDecision is the outcome of a credential issuance check.
type CredentialDecision struct {
	CanIssue bool   `json:"canIssue"`
	Reason   string `json:"reason,omitempty"`
}

// CanIssueCredential holds credentials while a payment plan carries an
// outstanding balance or the enrollment has not finished the program.
func (e *Enforcer) CanIssueCredential(ctx context.Context, enrollmentID string) (CredentialDecision, error) {
	var balance float64
	err := e.db.QueryRowContext(ctx,
		`SELECT balance_remaining FROM bridge_payment_plans WHERE enrollment_id = $1`,
		enrollmentID).Scan(&balance)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return CredentialDecision{}, fmt.Errorf("load bridge plan: %w", err)
	}
	if err == nil && balance > 0 {
		return CredentialDecision{
			CanIssue: false,
			Reason:   fmt.Sprintf("Outstanding balance of $%.2f. Credential cannot be issued until balance is resolved.", balance),
		}, nil
	}

	var status string
	var intakeCompleted bool
	err = e.db.QueryRowContext(ctx,
		`SELECT status, intake_completed FROM enrollments WHERE id = $1`,
		enrollmentID).Scan(&status, &intakeCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return CredentialDecision{CanIssue: false, Reason: "Enrollment not found"}, nil
	}
	if err != nil {
		return CredentialDecision{}, fmt.Errorf("load enrollment: %w", err)
	}

	if !intakeCompleted {
		return CredentialDecision{CanIssue: false, Reason: "Intake not completed"}, nil
	}
	if status != "completed" {
		return CredentialDecision{CanIssue: false, Reason: "Program not completed"}, nil
	}
	return CredentialDecision{CanIssue: true}, nil
}

// AccessDecision is the outcome of an academic access check.
type AccessDecision struct {
	HasAccess bool   `json:"hasAccess"`
	Reason    string `json:"reason,omitempty"`
}

// CheckAcademicAccess gates coursework access on enrollment status and, for
// structured tuition, on the payment plan being in good standing.
func (e *Enforcer) CheckAcademicAccess(ctx context.Context, userID, enrollmentID string) (AccessDecision, error) {
	var status string
	var pathway sql.NullString
	err := e.db.QueryRowContext(ctx,
		`SELECT status, funding_pathway FROM enrollments WHERE id = $1 AND user_id = $2`,
		enrollmentID, userID).Scan(&status, &pathway)
	if errors.Is(err, sql.ErrNoRows) {
		return AccessDecision{HasAccess: false, Reason: "Enrollment not found"}, nil
	}
	if err != nil {
		return AccessDecision{}, fmt.Errorf("load enrollment: %w", err)
	}

	if status == "paused" {
		return AccessDecision{HasAccess: false, Reason: "Enrollment paused due to payment issue"}, nil
	}
	if status != "active" {
		return AccessDecision{HasAccess: false, Reason: fmt.Sprintf("Enrollment status: %s", status)}, nil
	}

	if pathway.Valid && models.FundingPathway(pathway.String) == models.PathwayStructuredTuition {
		var downPaymentPaid, accessPaused bool
		var pausedReason sql.NullString
		err := e.db.QueryRowContext(ctx,
			`SELECT down_payment_paid, academic_access_paused, academic_access_paused_reason
			 FROM bridge_payment_plans WHERE enrollment_id = $1`,
			enrollmentID).Scan(&downPaymentPaid, &accessPaused, &pausedReason)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return AccessDecision{}, fmt.Errorf("load bridge plan: %w", err)
		}
		if err == nil {
			if !downPaymentPaid {
				return AccessDecision{HasAccess: false, Reason: "Down payment required before access"}, nil
			}
			if accessPaused {
				reason := "Access paused due to payment issue"
				if pausedReason.Valid && pausedReason.String != "" {
					reason = pausedReason.String
				}
				return AccessDecision{HasAccess: false, Reason: reason}, nil
			}
		}
	}

	return AccessDecision{HasAccess: true}, nil
}

// HandleEmployerSeparation records the end of a sponsoring employment and
// stops reimbursement on the sponsorship.
func (e *Enforcer) HandleEmployerSeparation(ctx context.Context, sponsorshipID, reason string) error {
	now := time.Now().UTC()
	res, err := e.db.ExecContext(ctx, `
		UPDATE employer_sponsorships SET
			employment_ended = true,
			employment_ended_at = $2,
			employment_end_reason = $3,
			reimbursement_stopped_at = $2,
			status = 'separated'
		WHERE id = $1`,
		sponsorshipID, now, reason,
	)
	if err != nil {
		return fmt.Errorf("record employer separation: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("sponsorship %s not found", sponsorshipID)
	}

	e.logger.Info("employer separation recorded", map[string]interface{}{
		"sponsorshipId": sponsorshipID,
		"reason":        reason,
	})
	return nil
}
