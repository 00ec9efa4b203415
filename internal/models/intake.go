package models

import "time"

// IntakeStatus is the single source of truth for where in the intake
// process a record is.
type IntakeStatus string

const (
	StatusNotStarted         IntakeStatus = "not_started"
	StatusIdentityPending    IntakeStatus = "identity_pending"
	StatusWorkforceScreening IntakeStatus = "workforce_screening"
	StatusEmployerScreening  IntakeStatus = "employer_screening"
	StatusFinancialReadiness IntakeStatus = "financial_readiness"
	StatusProgramReadiness   IntakeStatus = "program_readiness"
	StatusPendingSignature   IntakeStatus = "pending_signature"
	StatusCompleted          IntakeStatus = "completed"
)

var statusRank = map[IntakeStatus]int{
	StatusNotStarted:         0,
	StatusIdentityPending:    1,
	StatusWorkforceScreening: 2,
	StatusEmployerScreening:  3,
	StatusFinancialReadiness: 4,
	StatusProgramReadiness:   5,
	StatusPendingSignature:   6,
	StatusCompleted:          7,
}

// Rank returns the position of a status along the intake path. Used to keep
// transitions monotonic: a step never moves a record backwards.
func (s IntakeStatus) Rank() int {
	return statusRank[s]
}

// IsValid reports whether the status is one of the enumerated values.
func (s IntakeStatus) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsTerminal reports whether the intake has reached its final state.
func (s IntakeStatus) IsTerminal() bool {
	return s == StatusCompleted
}

// AdvanceTo returns the computed status if it outranks the current one,
// otherwise the current status. Resubmitting an already-accepted step is a
// no-op for status.
func (s IntakeStatus) AdvanceTo(computed IntakeStatus) IntakeStatus {
	if computed.Rank() > s.Rank() {
		return computed
	}
	return s
}

// FundingPathway is the financial mechanism assigned to an enrollment.
// Assigned only by staff, never by the applicant.
type FundingPathway string

const (
	PathwayWorkforceFunded   FundingPathway = "workforce_funded"
	PathwayEmployerSponsored FundingPathway = "employer_sponsored"
	PathwayStructuredTuition FundingPathway = "structured_tuition"
)

// IsValid reports whether the pathway is one of the enumerated values.
func (p FundingPathway) IsValid() bool {
	switch p {
	case PathwayWorkforceFunded, PathwayEmployerSponsored, PathwayStructuredTuition:
		return true
	}
	return false
}

// IntakeRecord is the shared row per (user, program). Step fields are
// additive: later steps never erase earlier step data.
type IntakeRecord struct {
	ID             string         `json:"id" db:"id"`
	UserID         string         `json:"userId" db:"user_id"`
	ProgramID      string         `json:"programId" db:"program_id"`
	Status         IntakeStatus   `json:"status" db:"status"`
	FundingPathway FundingPathway `json:"fundingPathway,omitempty" db:"funding_pathway"`

	// Optimistic concurrency token, incremented on every successful update.
	Version int `json:"version" db:"version"`

	IdentityVerified     bool       `json:"identityVerified" db:"identity_verified"`
	IdentityDocumentType string     `json:"identityDocumentType,omitempty" db:"identity_document_type"`
	IdentityVerifiedAt   *time.Time `json:"identityVerifiedAt,omitempty" db:"identity_verified_at"`

	WorkforceScreeningCompleted bool       `json:"workforceScreeningCompleted" db:"workforce_screening_completed"`
	WorkforceEligible           bool       `json:"workforceEligible" db:"workforce_eligible"`
	WorkforceAgency             string     `json:"workforceAgency,omitempty" db:"workforce_agency"`
	WorkforceCaseManager        string     `json:"workforceCaseManager,omitempty" db:"workforce_case_manager"`
	WorkforceFundingType        string     `json:"workforceFundingType,omitempty" db:"workforce_funding_type"`
	WorkforceScreenedAt         *time.Time `json:"workforceScreenedAt,omitempty" db:"workforce_screened_at"`

	EmployerScreeningCompleted     bool       `json:"employerScreeningCompleted" db:"employer_screening_completed"`
	EmployerEligible               bool       `json:"employerEligible" db:"employer_eligible"`
	EmployerName                   string     `json:"employerName,omitempty" db:"employer_name"`
	EmployerContact                string     `json:"employerContact,omitempty" db:"employer_contact"`
	EmployerReimbursementConfirmed bool       `json:"employerReimbursementConfirmed" db:"employer_reimbursement_confirmed"`
	EmployerScreenedAt             *time.Time `json:"employerScreenedAt,omitempty" db:"employer_screened_at"`

	FinancialReadinessCompleted bool       `json:"financialReadinessCompleted" db:"financial_readiness_completed"`
	CanPayDownPayment           bool       `json:"canPayDownPayment" db:"can_pay_down_payment"`
	CanCommitMonthly            bool       `json:"canCommitMonthly" db:"can_commit_monthly"`
	AcceptsAutoPayment          bool       `json:"acceptsAutoPayment" db:"accepts_auto_payment"`
	Understands90DayLimit       bool       `json:"understands90DayLimit" db:"understands_90_day_limit"`
	FinancialConfirmedAt        *time.Time `json:"financialConfirmedAt,omitempty" db:"financial_confirmed_at"`

	ProgramReadinessCompleted    bool       `json:"programReadinessCompleted" db:"program_readiness_completed"`
	StartDateConfirmed           bool       `json:"startDateConfirmed" db:"start_date_confirmed"`
	AttendanceUnderstood         bool       `json:"attendanceUnderstood" db:"attendance_understood"`
	TechnologyConfirmed          bool       `json:"technologyConfirmed" db:"technology_confirmed"`
	TimeCommitmentAcknowledged   bool       `json:"timeCommitmentAcknowledged" db:"time_commitment_acknowledged"`
	OutcomeExpectationsExplained bool       `json:"outcomeExpectationsExplained" db:"outcome_expectations_explained"`
	ProgramConfirmedAt           *time.Time `json:"programConfirmedAt,omitempty" db:"program_confirmed_at"`

	AcknowledgmentSigned bool       `json:"acknowledgmentSigned" db:"acknowledgment_signed"`
	SignatureData        string     `json:"signatureData,omitempty" db:"signature_data"`
	SignatureIP          string     `json:"signatureIp,omitempty" db:"signature_ip"`
	SignedAt             *time.Time `json:"signedAt,omitempty" db:"signed_at"`

	FundingPathwayAssignedBy string     `json:"fundingPathwayAssignedBy,omitempty" db:"funding_pathway_assigned_by"`
	FundingPathwayAssignedAt *time.Time `json:"fundingPathwayAssignedAt,omitempty" db:"funding_pathway_assigned_at"`

	IntakeStartedAt   time.Time  `json:"intakeStartedAt" db:"intake_started_at"`
	IntakeCompletedAt *time.Time `json:"intakeCompletedAt,omitempty" db:"intake_completed_at"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
