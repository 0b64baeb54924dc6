// internal/common/errors/errors_test.go
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
)

func TestStandardError_IsMatchesByCode(t *testing.T) {
	err := NewDuplicateVoteError("app-1", "member-1")
	wrapped := fmt.Errorf("cast vote: %w", err)

	assert.True(t, stderrors.Is(wrapped, ErrDuplicateVote))
	assert.False(t, stderrors.Is(wrapped, ErrState))
	assert.Equal(t, ErrCodeDuplicateVote, CodeOf(wrapped))
}

func TestStandardError_UnwrapCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewDatabaseError("insert vote", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, err.Retryable)
	assert.Contains(t, err.Error(), "insert vote")
}

func TestAsStandardError_WrapsUnknown(t *testing.T) {
	stdErr := AsStandardError(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, stdErr.Code)
	assert.False(t, stdErr.Retryable)
	assert.Nil(t, AsStandardError(nil))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name        string
		err         *StandardError
		wantRetries int
	}{
		{"conflict retries", NewConflictError(nil), 5},
		{"database retries", NewDatabaseError("select", stderrors.New("x")), 3},
		{"upstream retries", NewUpstreamUnavailableError("oracle", nil), 3},
		{"cap exceeded thrown", NewCapExceededError("over"), 0},
		{"state thrown", NewStateError("terminal"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, string(tt.err.Code), bpmn.Code)
			assert.Equal(t, tt.wantRetries, bpmn.Retries)
			vars := bpmn.ToErrorVariables()
			assert.Equal(t, string(tt.err.Code), vars["originalErrorCode"])
			assert.Equal(t, tt.err.Message, vars["errorMessage"])
		})
	}
}

func TestConvertToBPMNError_CarriesMetadata(t *testing.T) {
	err := NewCapExceededError("over cap").WithMetadata("remaining", "25")
	vars := ConvertToBPMNError(err).ToErrorVariables()
	assert.Equal(t, "25", vars["remaining"])
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ErrCodeValidation))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrCodeDuplicateVote))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrCodeState))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(ErrCodeCapExceeded))
	assert.Equal(t, http.StatusGone, HTTPStatus(ErrCodeRateLockExpired))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(ErrCodeForbidden))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(ErrCodeNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(ErrCodeUpstreamUnavailable))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(ErrCodeInternal))
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "GOVERNANCE", GetErrorCategory(ErrCodeDuplicateVote))
	assert.Equal(t, "ALLOCATION", GetErrorCategory(ErrCodeCapExceeded))
	assert.Equal(t, "EXCHANGE", GetErrorCategory(ErrCodeRateLockExpired))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeConcurrencyConflict))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeForbidden))
}

func TestRemainingRetries(t *testing.T) {
	job := entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 1, Retries: 10}}
	assert.Equal(t, int32(3), remainingRetries(job, 3))

	job.Retries = 2
	assert.Equal(t, int32(1), remainingRetries(job, 3))

	job.Retries = 0
	assert.Equal(t, int32(0), remainingRetries(job, 3))
}

func TestNewRateLockExpiredError_Details(t *testing.T) {
	expires := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := NewRateLockExpiredError("lock-1", expires)
	assert.Contains(t, err.Details, "lock-1")
	assert.Contains(t, err.Details, "2026-01-02T03:04:05Z")
	assert.False(t, err.Retryable)
}
