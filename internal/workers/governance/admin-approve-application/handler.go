// internal/workers/governance/admin-approve-application/handler.go
package adminapproveapplication

import (
	"context"
	"fmt"

	"ican-workers/internal/common/camunda"
	"ican-workers/internal/common/config"
	"ican-workers/internal/common/logger"
	"ican-workers/internal/common/observability"
	"ican-workers/internal/common/validation"
	"ican-workers/internal/models"
	"ican-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = registry.TaskAdminApproveApplication

type Service interface {
	AdminApprove(ctx context.Context, applicationID, adminID string) (*models.MembershipApplication, error)
}

type Handler struct {
	service Service
	runner  *camunda.JobRunner
	logger  logger.Logger
}

type HandlerOptions struct {
	AppConfig     *config.Config
	Service       Service
	Schemas       *validation.SchemaValidator
	Observability *observability.Observability
	Logger        logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Service == nil {
		return nil, fmt.Errorf("invalid configuration for %s: service is required", TaskType)
	}

	loggerInstance := opts.Logger
	if loggerInstance == nil {
		loggerInstance = logger.NewStructured("info", "json")
	}

	return &Handler{
		service: opts.Service,
		runner:  camunda.RunnerFor(opts.AppConfig, TaskType, opts.Schemas, opts.Observability, loggerInstance),
		logger:  loggerInstance.WithFields(map[string]interface{}{"worker": TaskType}),
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Run(client, job, h.process)
}

func (h *Handler) Runner() *camunda.JobRunner { return h.runner }

func (h *Handler) process(ctx context.Context, job entities.Job) (interface{}, error) {
	var input Input
	if err := camunda.DecodeVariables(job, &input); err != nil {
		return nil, err
	}
	return h.Execute(ctx, &input)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	app, err := h.service.AdminApprove(ctx, input.ApplicationID, input.AdminID)
	if err != nil {
		return nil, err
	}

	h.logger.Info("Application approved by admin", map[string]interface{}{
		"applicationId": app.ID,
		"adminId":       input.AdminID,
		"status":        app.Status,
	})

	return &Output{
		ApplicationID:     app.ID,
		ApplicationStatus: string(app.Status),
		DecidedBy:         app.DecidedBy,
		VotingOpen:        app.Status == models.StatusVotingInProgress,
	}, nil
}
