// internal/workers/exchange/calculate-conversion/handler.go
package calculateconversion

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
	"github.com/shopspring/decimal"
)

const TaskType = registry.TaskCalculateConversion

// Service is pure: the conversion depends only on its arguments.
type Service interface {
	CalculateConversion(icanAmount, lockedRate decimal.Decimal, countryCode string, txType models.TxType) (*models.ConversionBreakdown, error)
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

func (h *Handler) Execute(_ context.Context, input *Input) (*Output, error) {
	txType, err := models.ParseTxType(input.TxType)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	conv, err := h.service.CalculateConversion(input.ICANAmount, input.LockedRate, input.CountryCode, txType)
	if err != nil {
		return nil, err
	}

	h.logger.Debug("Conversion calculated", map[string]interface{}{
		"countryCode": conv.CountryCode,
		"txType":      conv.TxType,
		"netLocal":    conv.NetLocal.String(),
	})

	return &Output{
		Conversion:    conv,
		NetICAN:       conv.NetICAN,
		NetLocal:      conv.NetLocal,
		LocalCurrency: conv.LocalCurrency,
	}, nil
}
