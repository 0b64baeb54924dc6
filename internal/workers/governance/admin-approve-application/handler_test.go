package adminapproveapplication

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/common/logger"
	"ican-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) AdminApprove(ctx context.Context, applicationID, adminID string) (*models.MembershipApplication, error) {
	args := m.Called(ctx, applicationID, adminID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MembershipApplication), args.Error(1)
}

func createMockJob(variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:       21,
		Type:      TaskType,
		ElementId: "Activity_AdminApprove",
		Retries:   3,
		Variables: string(variablesJSON),
	}}
}

func TestHandler_Decision(t *testing.T) {
	svc := new(MockService)
	svc.On("AdminApprove", mock.Anything, "app-1", "admin-1").Return(&models.MembershipApplication{
		ID:        "app-1",
		Status:    models.StatusVotingInProgress,
		DecidedBy: "admin-1",
	}, nil)

	h, err := NewHandler(HandlerOptions{Service: svc, Logger: logger.NewTestLogger(t)})
	require.NoError(t, err)

	out, err := h.process(context.Background(), createMockJob(map[string]interface{}{
		"applicationId": "app-1",
		"adminId":       "admin-1",
	}))
	require.NoError(t, err)

	output := out.(*Output)
	assert.Equal(t, string(models.StatusVotingInProgress), output.ApplicationStatus)
	assert.Equal(t, "admin-1", output.DecidedBy)
	assert.True(t, output.VotingOpen)
	svc.AssertExpectations(t)
}

func TestHandler_DecisionErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unknown application", apperrors.NewNotFoundError("application", "app-1"), apperrors.ErrNotFound},
		{"caller is not admin", apperrors.NewForbiddenError("member-2 is not an admin"), apperrors.ErrForbidden},
		{"already decided", apperrors.NewStateError("application is voting_in_progress"), apperrors.ErrState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("AdminApprove", mock.Anything, "app-1", "member-2").Return(nil, tt.err)

			h, err := NewHandler(HandlerOptions{Service: svc, Logger: logger.NewNoOpLogger()})
			require.NoError(t, err)

			out, err := h.Execute(context.Background(), &Input{ApplicationID: "app-1", AdminID: "member-2"})
			assert.Nil(t, out)
			assert.True(t, errors.Is(err, tt.want))
		})
	}
}
