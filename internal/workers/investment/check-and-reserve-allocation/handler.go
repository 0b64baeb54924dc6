// internal/workers/investment/check-and-reserve-allocation/handler.go
package checkandreserveallocation

import (
	"context"
	"fmt"
	"strconv"

	"ican-workers/internal/allocation"
	"ican-workers/internal/common/camunda"
	"ican-workers/internal/common/config"
	"ican-workers/internal/common/logger"
	"ican-workers/internal/common/observability"
	"ican-workers/internal/common/validation"
	"ican-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/shopspring/decimal"
)

const TaskType = registry.TaskCheckAndReserveAllocation

type Service interface {
	CheckAndReserve(ctx context.Context, investorID, businessID, pitchID string, proposed decimal.Decimal) (*allocation.Decision, error)
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

	output, decision, err := h.execute(ctx, &input)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed && throwOnExceeded(job) {
		return nil, decision.Err()
	}
	return output, nil
}

// Execute checks the cap and reserves the amount when it fits. A denied
// reservation is a normal outcome reported through Allowed.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	output, _, err := h.execute(ctx, input)
	return output, err
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, *allocation.Decision, error) {
	decision, err := h.service.CheckAndReserve(ctx, input.InvestorID, input.BusinessID, input.PitchID, input.ICANAmount)
	if err != nil {
		return nil, nil, err
	}

	output := &Output{
		Allowed:    decision.Allowed,
		CapDetails: decision.Details,
	}
	if decision.Allocation != nil {
		output.AllocationID = decision.Allocation.ID
	}
	if !decision.Allowed {
		output.Reason = fmt.Sprintf("allocation would bring investor total to %s, cap is %s",
			decision.Details.TotalAfter, decision.Details.Cap)
	}

	h.logger.Info("Allocation cap checked", map[string]interface{}{
		"investorId": input.InvestorID,
		"pitchId":    input.PitchID,
		"amount":     input.ICANAmount.String(),
		"allowed":    decision.Allowed,
		"remaining":  decision.Details.Remaining.String(),
	})
	return output, decision, nil
}

func throwOnExceeded(job entities.Job) bool {
	headers, err := job.GetCustomHeadersAsMap()
	if err != nil {
		return false
	}
	v, _ := strconv.ParseBool(headers[ThrowOnExceededHeader])
	return v
}
