// internal/workers/exchange/consume-rate-lock/handler.go
package consumeratelock

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

const TaskType = registry.TaskConsumeRateLock

type Service interface {
	ConsumeLock(ctx context.Context, lockID string) (*models.ExchangeRateLock, error)
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

// Execute consumes the lock exactly once. Expired locks surface as
// RATE_LOCK_EXPIRED and a second consume as STATE_ERROR.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	lock, err := h.service.ConsumeLock(ctx, input.RateLockID)
	if err != nil {
		return nil, err
	}

	h.logger.Info("Rate lock consumed", map[string]interface{}{
		"rateLockId": lock.ID,
		"txId":       lock.TxID,
	})

	return &Output{
		RateLock:       lock,
		RateLockID:     lock.ID,
		RateLockStatus: string(lock.Status),
	}, nil
}
