// Package errors provides standardized error handling for the intake workflow.
package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"

	ErrCodeIntakeNotFound  ErrorCode = "INTAKE_NOT_FOUND"
	ErrCodeDuplicateIntake ErrorCode = "DUPLICATE_INTAKE"

	ErrCodeValidationFailed             ErrorCode = "VALIDATION_FAILED"
	ErrCodeUnknownStep                  ErrorCode = "UNKNOWN_STEP"
	ErrCodeInvalidFundingPathway        ErrorCode = "INVALID_FUNDING_PATHWAY"
	ErrCodeFinancialReadinessIncomplete ErrorCode = "FINANCIAL_READINESS_INCOMPLETE"
	ErrCodeCompletionValidationFailed   ErrorCode = "COMPLETION_VALIDATION_FAILED"

	ErrCodeVersionConflict ErrorCode = "VERSION_CONFLICT"
	ErrCodeRecordLocked    ErrorCode = "RECORD_LOCKED"
	ErrCodeStoreFailure    ErrorCode = "STORE_FAILURE"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewUnauthorizedError creates a non-retryable authentication error.
func NewUnauthorizedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnauthorized,
		Message:   "Authentication required",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewForbiddenError creates a non-retryable authorization error.
func NewForbiddenError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeForbidden,
		Message:   "Caller is not permitted to perform this action",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewIntakeNotFoundError creates a non-retryable lookup error.
func NewIntakeNotFoundError(intakeID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIntakeNotFound,
		Message:   "Intake record not found",
		Details:   fmt.Sprintf("intakeId: %s", intakeID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateIntakeError creates a non-retryable conflict error carrying the
// existing record's id and status for the caller.
func NewDuplicateIntakeError(intakeID, status string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateIntake,
		Message:   "Intake already exists for this user and program",
		Details:   fmt.Sprintf("intakeId: %s", intakeID),
		Retryable: false,
		Metadata: map[string]interface{}{
			"intakeId": intakeID,
			"status":   status,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationFailedError creates a non-retryable request validation error.
func NewValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Request validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownStepError creates a non-retryable error for an unrecognized step name.
func NewUnknownStepError(step string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownStep,
		Message:   "Unknown intake step",
		Details:   fmt.Sprintf("step: %s", step),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidFundingPathwayError creates a non-retryable pathway value error.
func NewInvalidFundingPathwayError(pathway string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidFundingPathway,
		Message:   "Invalid funding pathway",
		Details:   fmt.Sprintf("pathway: %s", pathway),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewFinancialReadinessIncompleteError creates a non-retryable error for a
// partially confirmed financial readiness step. The record is not mutated.
func NewFinancialReadinessIncompleteError() *StandardError {
	return &StandardError{
		Code:      ErrCodeFinancialReadinessIncomplete,
		Message:   "All financial readiness confirmations are required",
		Retryable: false,
		Metadata: map[string]interface{}{
			"canProceed": false,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewCompletionValidationFailedError carries the completion validator's errors.
func NewCompletionValidationFailedError(errs []string, nextStep string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCompletionValidationFailed,
		Message:   "Intake completion validation failed",
		Retryable: false,
		Metadata: map[string]interface{}{
			"errors":   errs,
			"nextStep": nextStep,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewVersionConflictError creates a non-retryable optimistic concurrency error.
func NewVersionConflictError(intakeID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeVersionConflict,
		Message:   "Intake record was modified concurrently",
		Details:   fmt.Sprintf("intakeId: %s", intakeID),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRecordLockedError signals another submission holds the per-record lock.
func NewRecordLockedError(intakeID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecordLocked,
		Message:   "Another step submission is in progress for this record",
		Details:   fmt.Sprintf("intakeId: %s", intakeID),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreFailureError creates a retryable data-store error.
func NewStoreFailureError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreFailure,
		Message:   "Data store operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. HTTP Mapping
// ==========================

// HTTPStatusMapping maps internal error codes to HTTP status codes.
var HTTPStatusMapping = map[ErrorCode]int{
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	ErrCodeIntakeNotFound:  http.StatusNotFound,
	ErrCodeDuplicateIntake: http.StatusConflict,

	ErrCodeValidationFailed:             http.StatusBadRequest,
	ErrCodeUnknownStep:                  http.StatusBadRequest,
	ErrCodeInvalidFundingPathway:        http.StatusBadRequest,
	ErrCodeFinancialReadinessIncomplete: http.StatusBadRequest,
	ErrCodeCompletionValidationFailed:   http.StatusBadRequest,

	ErrCodeVersionConflict: http.StatusConflict,
	ErrCodeRecordLocked:    http.StatusConflict,
	ErrCodeStoreFailure:    http.StatusInternalServerError,
}

// HTTPStatus returns the HTTP status for an error code.
func HTTPStatus(code ErrorCode) int {
	if status, ok := HTTPStatusMapping[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeStoreFailure, ErrCodeVersionConflict, ErrCodeRecordLocked:
		return true
	default:
		return false
	}
}
