// internal/workers/investment/finalize-allocation/handler.go
package finalizeallocation

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

const TaskType = registry.TaskFinalizeAllocation

type Service interface {
	Finalize(ctx context.Context, allocationID, countryCode string) (*models.AllocationRecord, error)
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
	alloc, err := h.service.Finalize(ctx, input.AllocationID, input.CountryCode)
	if err != nil {
		return nil, err
	}
	if alloc.Conversion == nil {
		return nil, apperrors.NewStateError("allocation " + alloc.ID + " has no conversion after finalize")
	}

	h.logger.Info("Allocation finalized", map[string]interface{}{
		"allocationId":  alloc.ID,
		"rateLockId":    alloc.RateLockID,
		"localCurrency": alloc.Conversion.LocalCurrency,
	})

	return &Output{
		Allocation:    alloc,
		RateLockID:    alloc.RateLockID,
		LocalCurrency: alloc.Conversion.LocalCurrency,
		NetLocal:      alloc.Conversion.NetLocal,
	}, nil
}
