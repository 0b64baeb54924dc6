// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidation          ErrorCode = "VALIDATION_ERROR"
	ErrCodeState               ErrorCode = "STATE_ERROR"
	ErrCodeDuplicateVote       ErrorCode = "DUPLICATE_VOTE"
	ErrCodeCapExceeded         ErrorCode = "CAP_EXCEEDED"
	ErrCodeRateLockExpired     ErrorCode = "RATE_LOCK_EXPIRED"
	ErrCodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrCodeConcurrencyConflict ErrorCode = "CONCURRENCY_CONFLICT"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeForbidden           ErrorCode = "FORBIDDEN"
	ErrCodeDatabase            ErrorCode = "DATABASE_ERROR"
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error { return e.Cause }

// Is matches any StandardError carrying the same code, so callers can test
// against the sentinels below with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata attaches a key/value and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation          = &StandardError{Code: ErrCodeValidation}
	ErrState               = &StandardError{Code: ErrCodeState}
	ErrDuplicateVote       = &StandardError{Code: ErrCodeDuplicateVote}
	ErrCapExceeded         = &StandardError{Code: ErrCodeCapExceeded}
	ErrRateLockExpired     = &StandardError{Code: ErrCodeRateLockExpired}
	ErrUpstreamUnavailable = &StandardError{Code: ErrCodeUpstreamUnavailable}
	ErrConcurrencyConflict = &StandardError{Code: ErrCodeConcurrencyConflict}
	ErrNotFound            = &StandardError{Code: ErrCodeNotFound}
	ErrForbidden           = &StandardError{Code: ErrCodeForbidden}
	ErrDatabase            = &StandardError{Code: ErrCodeDatabase}
)

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError creates a non-retryable input error.
func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidation, "Input validation failed", details, false)
}

// NewStateError is returned when an operation is not allowed in the current state.
func NewStateError(details string) *StandardError {
	return newError(ErrCodeState, "Operation not allowed in current state", details, false)
}

func NewDuplicateVoteError(applicationID, voterID string) *StandardError {
	return newError(ErrCodeDuplicateVote, "Member has already voted on this application",
		fmt.Sprintf("applicationId: %s, voterId: %s", applicationID, voterID), false)
}

func NewCapExceededError(details string) *StandardError {
	return newError(ErrCodeCapExceeded, "Allocation exceeds investor cap", details, false)
}

func NewRateLockExpiredError(lockID string, expiresAt time.Time) *StandardError {
	return newError(ErrCodeRateLockExpired, "Exchange rate lock has expired",
		fmt.Sprintf("lockId: %s, expiresAt: %s", lockID, expiresAt.UTC().Format(time.RFC3339)), false)
}

// NewUpstreamUnavailableError creates a retryable error for a failed dependency
// with no usable fallback.
func NewUpstreamUnavailableError(service string, err error) *StandardError {
	e := newError(ErrCodeUpstreamUnavailable, fmt.Sprintf("Upstream service '%s' unavailable", service), "", true)
	if err != nil {
		e.Details = err.Error()
		e.Cause = err
	}
	return e
}

func NewConflictError(err error) *StandardError {
	e := newError(ErrCodeConcurrencyConflict, "Concurrent update conflict", "", true)
	if err != nil {
		e.Details = err.Error()
		e.Cause = err
	}
	return e
}

func NewNotFoundError(resource, id string) *StandardError {
	return newError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), fmt.Sprintf("id: %s", id), false)
}

func NewForbiddenError(details string) *StandardError {
	return newError(ErrCodeForbidden, "Caller is not permitted to perform this operation", details, false)
}

// NewDatabaseError creates a retryable storage error.
func NewDatabaseError(op string, err error) *StandardError {
	e := newError(ErrCodeDatabase, "Database operation failed", op, true)
	if err != nil {
		e.Details = fmt.Sprintf("op: %s, error: %s", op, err.Error())
		e.Cause = err
	}
	return e
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabase, ErrCodeUpstreamUnavailable:
		return 3
	case ErrCodeConcurrencyConflict:
		return 5
	default:
		return 0 // Business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandardError unwraps err to a StandardError, wrapping unknown errors as INTERNAL_ERROR.
func AsStandardError(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// CodeOf returns the error code carried by err, or "" for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return AsStandardError(err).Code
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// HTTPStatus maps an error code to the response status of the HTTP API.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeState, ErrCodeDuplicateVote, ErrCodeConcurrencyConflict:
		return http.StatusConflict
	case ErrCodeCapExceeded:
		return http.StatusUnprocessableEntity
	case ErrCodeRateLockExpired:
		return http.StatusGone
	case ErrCodeUpstreamUnavailable, ErrCodeDatabase:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VOTE") || code == ErrCodeState:
		return "GOVERNANCE"
	case strings.Contains(codeStr, "CAP"):
		return "ALLOCATION"
	case strings.Contains(codeStr, "RATE") || strings.Contains(codeStr, "UPSTREAM"):
		return "EXCHANGE"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "CONCURRENCY"):
		return "DATABASE"
	case strings.Contains(codeStr, "VALIDATION") || code == ErrCodeNotFound || code == ErrCodeForbidden:
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
