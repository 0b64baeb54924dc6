package camunda

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/common/logger"
	"ican-workers/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// ==========================
// Fake Gateway
// ==========================

type fakeGateway struct {
	pb.GatewayClient

	mu        sync.Mutex
	completed []*pb.CompleteJobRequest
	failed    []*pb.FailJobRequest
	thrown    []*pb.ThrowErrorRequest
}

func (g *fakeGateway) CompleteJob(_ context.Context, in *pb.CompleteJobRequest, _ ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed = append(g.completed, in)
	return &pb.CompleteJobResponse{}, nil
}

func (g *fakeGateway) FailJob(_ context.Context, in *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failed = append(g.failed, in)
	return &pb.FailJobResponse{}, nil
}

func (g *fakeGateway) ThrowError(_ context.Context, in *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.thrown = append(g.thrown, in)
	return &pb.ThrowErrorResponse{}, nil
}

func noRetry(context.Context, error) bool { return false }

type fakeJobClient struct {
	gw *fakeGateway
}

func (c fakeJobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.gw, noRetry)
}

func (c fakeJobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.gw, noRetry)
}

func (c fakeJobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.gw, noRetry)
}

func createMockJob(key int64, retries int32, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               "cast-vote",
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "membership-onboarding",
		ElementId:          "Activity_CastVote",
		CustomHeaders:      "{}",
		Worker:             "test-worker",
		Retries:            retries,
		Variables:          string(variablesJSON),
	}}
}

func newTestRunner(t *testing.T) *JobRunner {
	t.Helper()
	schemas := validation.NewSchemaValidator()
	require.NoError(t, schemas.Register("cast-vote", map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"applicationId"},
		"properties": map[string]interface{}{
			"applicationId": map[string]interface{}{"type": "string", "minLength": 1},
		},
	}))
	return NewJobRunner(RunnerOptions{
		TaskType: "cast-vote",
		Timeout:  time.Second,
		Schemas:  schemas,
		Logger:   logger.NewTestLogger(t),
	})
}

// ==========================
// Runner Tests
// ==========================

func TestJobRunner_CompletesWithOutput(t *testing.T) {
	gw := &fakeGateway{}
	runner := newTestRunner(t)

	var seen struct {
		ApplicationID string `json:"applicationId"`
	}
	runner.Run(fakeJobClient{gw}, createMockJob(7, 3, map[string]interface{}{"applicationId": "app-1"}),
		func(ctx context.Context, job entities.Job) (interface{}, error) {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			require.NoError(t, DecodeVariables(job, &seen))
			return map[string]interface{}{"voteAccepted": true}, nil
		})

	assert.Equal(t, "app-1", seen.ApplicationID)
	require.Len(t, gw.completed, 1)
	assert.Equal(t, int64(7), gw.completed[0].JobKey)
	assert.JSONEq(t, `{"voteAccepted":true}`, gw.completed[0].Variables)
	assert.Empty(t, gw.failed)
	assert.Empty(t, gw.thrown)
}

func TestJobRunner_SchemaViolationThrowsWithoutCallingHandler(t *testing.T) {
	gw := &fakeGateway{}
	runner := newTestRunner(t)

	called := false
	runner.Run(fakeJobClient{gw}, createMockJob(8, 3, map[string]interface{}{"voterId": "m-1"}),
		func(context.Context, entities.Job) (interface{}, error) {
			called = true
			return nil, nil
		})

	assert.False(t, called)
	require.Len(t, gw.thrown, 1)
	assert.Equal(t, string(apperrors.ErrCodeValidation), gw.thrown[0].ErrorCode)
	assert.Empty(t, gw.completed)
}

func TestJobRunner_ErrorOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		retries     int32
		err         error
		wantFailed  bool
		wantRetries int32
		wantCode    string
	}{
		{
			name:        "retryable error with retries left fails the job",
			retries:     3,
			err:         apperrors.NewConflictError(errors.New("serialization failure")),
			wantFailed:  true,
			wantRetries: 2,
		},
		{
			name:     "retryable error on the last attempt throws",
			retries:  1,
			err:      apperrors.NewDatabaseError("insert vote", errors.New("connection reset")),
			wantCode: string(apperrors.ErrCodeDatabase),
		},
		{
			name:     "business error throws its code",
			retries:  3,
			err:      apperrors.NewDuplicateVoteError("app-1", "m-1"),
			wantCode: string(apperrors.ErrCodeDuplicateVote),
		},
		{
			name:     "unknown error throws as internal",
			retries:  3,
			err:      errors.New("boom"),
			wantCode: string(apperrors.ErrCodeInternal),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{}
			runner := newTestRunner(t)

			runner.Run(fakeJobClient{gw}, createMockJob(9, tt.retries, map[string]interface{}{"applicationId": "app-1"}),
				func(context.Context, entities.Job) (interface{}, error) { return nil, tt.err })

			assert.Empty(t, gw.completed)
			if tt.wantFailed {
				require.Len(t, gw.failed, 1)
				assert.Equal(t, tt.wantRetries, gw.failed[0].Retries)
				assert.Empty(t, gw.thrown)
				return
			}
			require.Len(t, gw.thrown, 1)
			assert.Equal(t, tt.wantCode, gw.thrown[0].ErrorCode)

			var vars map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(gw.thrown[0].Variables), &vars))
			assert.Equal(t, tt.wantCode, vars["originalErrorCode"])
		})
	}
}

func TestJobRunner_CapExceededCarriesMetadata(t *testing.T) {
	gw := &fakeGateway{}
	runner := newTestRunner(t)

	capErr := apperrors.NewCapExceededError("over cap").WithMetadata("remaining", "200")
	runner.Run(fakeJobClient{gw}, createMockJob(10, 3, map[string]interface{}{"applicationId": "x"}),
		func(context.Context, entities.Job) (interface{}, error) { return nil, capErr })

	require.Len(t, gw.thrown, 1)
	var vars map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(gw.thrown[0].Variables), &vars))
	assert.Equal(t, "200", vars["remaining"])
}

func TestDecodeVariables_InvalidJSON(t *testing.T) {
	job := entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 1, Variables: "{not json"}}
	var out map[string]interface{}
	err := DecodeVariables(job, &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

// ==========================
// Client Error Mapping
// ==========================

func TestMapZeebeError(t *testing.T) {
	tests := []struct {
		msg  string
		want *apperrors.StandardError
	}{
		{"rpc error: code = Unavailable desc = connection refused", apperrors.ErrUpstreamUnavailable},
		{"context deadline exceeded", apperrors.ErrUpstreamUnavailable},
		{"process definition not found", apperrors.ErrNotFound},
		{"resource already exists", apperrors.ErrConcurrencyConflict},
		{"permission denied", apperrors.ErrForbidden},
		{"something odd", apperrors.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := mapZeebeError(errors.New(tt.msg), "topology")
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestIsRetryableZeebeError(t *testing.T) {
	assert.True(t, isRetryableZeebeError(errors.New("Connection Reset by peer")))
	assert.False(t, isRetryableZeebeError(errors.New("invalid argument")))
}
