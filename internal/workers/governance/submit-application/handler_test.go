package submitapplication

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

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

func (m *MockService) SubmitApplication(ctx context.Context, groupID, applicantID, text string) (*models.MembershipApplication, error) {
	args := m.Called(ctx, groupID, applicantID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MembershipApplication), args.Error(1)
}

func createMockJob(variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:       11,
		Type:      TaskType,
		Retries:   3,
		Variables: string(variablesJSON),
	}}
}

func TestHandler_SubmitCreatesPendingApplication(t *testing.T) {
	submitted := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	svc := new(MockService)
	svc.On("SubmitApplication", mock.Anything, "group-1", "user-7", "I run a tailoring shop").
		Return(&models.MembershipApplication{
			ID:          "app-1",
			GroupID:     "group-1",
			ApplicantID: "user-7",
			Status:      models.StatusPending,
			CreatedAt:   submitted,
		}, nil)

	h, err := NewHandler(HandlerOptions{Service: svc, Logger: logger.NewTestLogger(t)})
	require.NoError(t, err)

	out, err := h.process(context.Background(), createMockJob(map[string]interface{}{
		"groupId":         "group-1",
		"applicantId":     "user-7",
		"applicationText": "I run a tailoring shop",
	}))
	require.NoError(t, err)

	output := out.(*Output)
	assert.Equal(t, "app-1", output.ApplicationID)
	assert.Equal(t, "pending", output.ApplicationStatus)
	assert.Equal(t, submitted, output.SubmittedAt)
	svc.AssertExpectations(t)
}

func TestHandler_SubmitRejectsOpenApplication(t *testing.T) {
	svc := new(MockService)
	svc.On("SubmitApplication", mock.Anything, "group-1", "user-7", "again").
		Return(nil, apperrors.NewStateError("applicant already has an open application"))

	h, err := NewHandler(HandlerOptions{Service: svc, Logger: logger.NewNoOpLogger()})
	require.NoError(t, err)

	out, err := h.Execute(context.Background(), &Input{GroupID: "group-1", ApplicantID: "user-7", ApplicationText: "again"})
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, apperrors.ErrState))
}
