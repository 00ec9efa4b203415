// Package steps implements the intake step processor: each step is a typed
// payload with its own transition rule, dispatched by name.
package steps

import (
	"encoding/json"
	"strings"
	"time"

	cerr "intake-service/internal/common/errors"
	"intake-service/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

// Name identifies an intake step.
type Name string

const (
	Identity           Name = "identity"
	WorkforceScreening Name = "workforce_screening"
	EmployerScreening  Name = "employer_screening"
	FinancialReadiness Name = "financial_readiness"
	ProgramReadiness   Name = "program_readiness"
	FundingPathway     Name = "funding_pathway"
	Signature          Name = "signature"
)

// Known reports whether the name maps to a defined step.
func Known(name string) bool {
	_, ok := schemaSources[Name(name)]
	return ok
}

// StaffOnly reports whether the step may only be submitted by staff,
// regardless of record ownership.
func (n Name) StaffOnly() bool {
	return n == FundingPathway
}

// Step is one intake step's typed payload. Apply mutates the record with the
// step's field updates and returns the status the record should hold
// afterwards; gating failures return an error and leave the record untouched.
type Step interface {
	Name() Name
	Apply(rec *models.IntakeRecord, caller models.Caller, now time.Time) (models.IntakeStatus, *cerr.StandardError)
}

// Parse validates the raw payload against the step's schema and decodes it
// into the step's typed struct. Unknown step names are rejected without
// touching the record.
func Parse(name string, data json.RawMessage) (Step, *cerr.StandardError) {
	n := Name(name)
	schema, ok := schemas[n]
	if !ok {
		return nil, cerr.NewUnknownStepError(name)
	}

	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, cerr.NewValidationFailedError(err.Error())
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, cerr.NewValidationFailedError(strings.Join(msgs, "; "))
	}

	var step Step
	switch n {
	case Identity:
		step = &IdentityStep{}
	case WorkforceScreening:
		step = &WorkforceScreeningStep{}
	case EmployerScreening:
		step = &EmployerScreeningStep{}
	case FinancialReadiness:
		step = &FinancialReadinessStep{}
	case ProgramReadiness:
		step = &ProgramReadinessStep{}
	case FundingPathway:
		step = &FundingPathwayStep{}
	case Signature:
		step = &SignatureStep{}
	}

	if err := json.Unmarshal(data, step); err != nil {
		return nil, cerr.NewValidationFailedError(err.Error())
	}
	return step, nil
}

// ==========================
// Step Payloads
// ==========================

// IdentityStep records identity verification. An unverified identity does
// not advance the record past identity_pending.
type IdentityStep struct {
	Verified     bool   `json:"verified"`
	DocumentType string `json:"documentType"`
}

func (s *IdentityStep) Name() Name { return Identity }

func (s *IdentityStep) Apply(rec *models.IntakeRecord, caller models.Caller, now time.Time) (models.IntakeStatus, *cerr.StandardError) {
	rec.IdentityDocumentType = s.DocumentType
	if !s.Verified {
		return rec.Status.AdvanceTo(models.StatusIdentityPending), nil
	}
	rec.IdentityVerified = true
	rec.IdentityVerifiedAt = &now
	return rec.Status.AdvanceTo(models.StatusWorkforceScreening), nil
}

// WorkforceScreeningStep records workforce-funding eligibility. Eligibility
// is recorded, not gating: the step always advances.
type WorkforceScreeningStep struct {
	Eligible    bool   `json:"eligible"`
	Agency      string `json:"agency"`
	CaseManager string `json:"caseManager"`
	FundingType string `json:"fundingType"`
}

func (s *WorkforceScreeningStep) Name() Name { return WorkforceScreening }

func (s *WorkforceScreeningStep) Apply(rec *models.IntakeRecord, caller models.Caller, now time.Time) (models.IntakeStatus, *cerr.StandardError) {
	rec.WorkforceScreeningCompleted = true
	rec.WorkforceEligible = s.Eligible
	rec.WorkforceAgency = s.Agency
	rec.WorkforceCaseManager = s.CaseManager
	rec.WorkforceFundingType = s.FundingType
	rec.WorkforceScreenedAt = &now
	return rec.Status.AdvanceTo(models.StatusEmployerScreening), nil
}

// EmployerScreeningStep is the branch point: an employer-eligible applicant
// skips financial readiness.
type EmployerScreeningStep struct {
	Eligible               bool    `json:"eligible"`
	EmployerName           *string `json:"employerName"`
	Contact                *string `json:"contact"`
	ReimbursementConfirmed bool    `json:"reimbursementConfirmed"`
}

func (s *EmployerScreeningStep) Name() Name { return EmployerScreening }

func (s *EmployerScreeningStep) Apply(rec *models.IntakeRecord, caller models.Caller, now time.Time) (models.IntakeStatus, *cerr.StandardError) {
	rec.EmployerScreeningCompleted = true
	rec.EmployerEligible = s.Eligible
	if s.EmployerName != nil {
		rec.EmployerName = *s.EmployerName
	}
	if s.Contact != nil {
		rec.EmployerContact = *s.Contact
	}
	rec.EmployerReimbursementConfirmed = s.ReimbursementConfirmed
	rec.EmployerScreenedAt = &now

	if s.Eligible {
		return rec.Status.AdvanceTo(models.StatusProgramReadiness), nil
	}
	return rec.Status.AdvanceTo(models.StatusFinancialReadiness), nil
}

// FinancialReadinessStep requires every confirmation at once; partial
// completion is rejected and does not mutate the record.
type FinancialReadinessStep struct {
	CanPayDownPayment     bool `json:"canPayDownPayment"`
	CanCommitMonthly      bool `json:"canCommitMonthly"`
	AcceptsAutoPayment    bool `json:"acceptsAutoPayment"`
	Understands90DayLimit bool `json:"understands90DayLimit"`
}

func (s *FinancialReadinessStep) Name() Name { return FinancialReadiness }

func (s *FinancialReadinessStep) Apply(rec *models.IntakeRecord, caller models.Caller, now time.Time) (models.IntakeStatus, *cerr.StandardError) {
	if !s.CanPayDownPayment || !s.CanCommitMonthly || !s.AcceptsAutoPayment || !s.Understands90DayLimit {
		return rec.Status, cerr.NewFinancialReadinessIncompleteError()
	}
	rec.FinancialReadinessCompleted = true
	rec.CanPayDownPayment = true
	rec.CanCommitMonthly = true
	rec.AcceptsAutoPayment = true
	rec.Understands90DayLimit = true
	rec.FinancialConfirmedAt = &now
	return rec.Status.AdvanceTo(models.StatusProgramReadiness), nil
}

// ProgramReadinessStep records program expectations as given; no
// individual-flag gating at this step.
type ProgramReadinessStep struct {
	StartDateConfirmed           bool `json:"startDateConfirmed"`
	AttendanceUnderstood         bool `json:"attendanceUnderstood"`
	TechnologyConfirmed          bool `json:"technologyConfirmed"`
	TimeCommitmentAcknowledged   bool `json:"timeCommitmentAcknowledged"`
	OutcomeExpectationsExplained bool `json:"outcomeExpectationsExplained"`
}

func (s *ProgramReadinessStep) Name() Name { return ProgramReadiness }

func (s *ProgramReadinessStep) Apply(rec *models.IntakeRecord, caller models.Caller, now time.Time) (models.IntakeStatus, *cerr.StandardError) {
	rec.ProgramReadinessCompleted = true
	rec.StartDateConfirmed = s.StartDateConfirmed
	rec.AttendanceUnderstood = s.AttendanceUnderstood
	rec.TechnologyConfirmed = s.TechnologyConfirmed
	rec.TimeCommitmentAcknowledged = s.TimeCommitmentAcknowledged
	rec.OutcomeExpectationsExplained = s.OutcomeExpectationsExplained
	rec.ProgramConfirmedAt = &now
	return rec.Status.AdvanceTo(models.StatusPendingSignature), nil
}

// FundingPathwayStep assigns the funding pathway. Staff only; status is
// unchanged.
type FundingPathwayStep struct {
	Pathway string `json:"pathway"`
}

func (s *FundingPathwayStep) Name() Name { return FundingPathway }

func (s *FundingPathwayStep) Apply(rec *models.IntakeRecord, caller models.Caller, now time.Time) (models.IntakeStatus, *cerr.StandardError) {
	pathway := models.FundingPathway(s.Pathway)
	if !pathway.IsValid() {
		return rec.Status, cerr.NewInvalidFundingPathwayError(s.Pathway)
	}
	rec.FundingPathway = pathway
	rec.FundingPathwayAssignedBy = caller.UserID
	rec.FundingPathwayAssignedAt = &now
	return rec.Status, nil
}

// SignatureStep captures the acknowledgment signature and the caller IP.
type SignatureStep struct {
	Signed        bool   `json:"signed"`
	SignatureData string `json:"signatureData"`
}

func (s *SignatureStep) Name() Name { return Signature }

func (s *SignatureStep) Apply(rec *models.IntakeRecord, caller models.Caller, now time.Time) (models.IntakeStatus, *cerr.StandardError) {
	if !s.Signed {
		return rec.Status, cerr.NewValidationFailedError("acknowledgment must be signed")
	}
	rec.AcknowledgmentSigned = true
	rec.SignatureData = s.SignatureData
	rec.SignatureIP = caller.IP
	rec.SignedAt = &now
	return rec.Status.AdvanceTo(models.StatusCompleted), nil
}
