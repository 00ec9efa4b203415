// Package validator re-checks the full accumulated intake record for
// internal consistency before the terminal transition is committed.
package validator

import "intake-service/internal/models"

// Result is the outcome of a completion check.
type Result struct {
	Valid      bool                `json:"valid"`
	Errors     []string            `json:"errors,omitempty"`
	CanProceed bool                `json:"canProceed"`
	NextStep   models.IntakeStatus `json:"nextStep,omitempty"`
}

// ValidateCompletion examines every required upstream step's flags.
// Financial readiness is only required when the assigned funding pathway is
// structured tuition; the other pathways carry the cost elsewhere.
func ValidateCompletion(rec *models.IntakeRecord) Result {
	var errs []string

	if !rec.IdentityVerified {
		errs = append(errs, "Identity verification not completed")
	}
	if !rec.WorkforceScreeningCompleted {
		errs = append(errs, "Workforce eligibility screening not completed")
	}
	if !rec.EmployerScreeningCompleted {
		errs = append(errs, "Employer sponsorship screening not completed")
	}

	if rec.FundingPathway == models.PathwayStructuredTuition {
		if !rec.FinancialReadinessCompleted {
			errs = append(errs, "Financial readiness confirmation not completed")
		}
		if !rec.CanPayDownPayment {
			errs = append(errs, "Down payment capability not confirmed")
		}
		if !rec.CanCommitMonthly {
			errs = append(errs, "Monthly payment commitment not confirmed")
		}
		if !rec.AcceptsAutoPayment {
			errs = append(errs, "Auto-payment acceptance required")
		}
		if !rec.Understands90DayLimit {
			errs = append(errs, "90-day limit acknowledgment required")
		}
	}

	if !rec.ProgramReadinessCompleted {
		errs = append(errs, "Program readiness confirmation not completed")
	}
	if rec.FundingPathway == "" {
		errs = append(errs, "Funding pathway not assigned")
	}
	if !rec.AcknowledgmentSigned {
		errs = append(errs, "Acknowledgment not signed")
	}

	res := Result{
		Valid:      len(errs) == 0,
		Errors:     errs,
		CanProceed: len(errs) == 0,
	}
	if !res.Valid {
		res.NextStep = NextStep(rec)
	}
	return res
}

// NextStep returns the earliest unmet stage of the intake path.
func NextStep(rec *models.IntakeRecord) models.IntakeStatus {
	if !rec.IdentityVerified {
		return models.StatusIdentityPending
	}
	if !rec.WorkforceScreeningCompleted {
		return models.StatusWorkforceScreening
	}
	if !rec.EmployerScreeningCompleted {
		return models.StatusEmployerScreening
	}
	if !rec.FinancialReadinessCompleted && rec.FundingPathway == models.PathwayStructuredTuition {
		return models.StatusFinancialReadiness
	}
	if !rec.ProgramReadinessCompleted {
		return models.StatusProgramReadiness
	}
	if !rec.AcknowledgmentSigned {
		return models.StatusPendingSignature
	}
	return models.StatusCompleted
}
