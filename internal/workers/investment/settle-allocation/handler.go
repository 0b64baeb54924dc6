// internal/workers/investment/settle-allocation/handler.go
package settleallocation

import (
	"context"
	"fmt"

	"ican-workers/internal/common/camunda"
	"ican-workers/internal/common/config"
	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/common/logger"
	"ican-workers/internal/common/observability"
	"ican-workers/internal/common/validation"
	"ican-workers/internal/models"
	"ican-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = registry.TaskSettleAllocation

type Service interface {
	Complete(ctx context.Context, allocationID string) (*models.AllocationRecord, error)
	Void(ctx context.Context, allocationID string) (*models.AllocationRecord, error)
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
	var (
		alloc *models.AllocationRecord
		err   error
	)
	switch input.Outcome {
	case OutcomeCompleted:
		alloc, err = h.service.Complete(ctx, input.AllocationID)
	case OutcomeVoid:
		alloc, err = h.service.Void(ctx, input.AllocationID)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("outcome must be %s or %s, got %q", OutcomeCompleted, OutcomeVoid, input.Outcome))
	}
	if err != nil {
		return nil, err
	}

	h.logger.Info("Allocation settled", map[string]interface{}{
		"allocationId": alloc.ID,
		"status":       alloc.Status,
	})

	return &Output{
		AllocationID:     alloc.ID,
		AllocationStatus: string(alloc.Status),
	}, nil
}
