// internal/workers/governance/cast-vote/handler.go
package castvote

import (
	"context"
	"fmt"

	"ican-workers/internal/common/camunda"
	"ican-workers/internal/common/config"
	"ican-workers/internal/common/logger"
	"ican-workers/internal/common/observability"
	"ican-workers/internal/common/validation"
	"ican-workers/internal/membership"
	"ican-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = registry.TaskCastVote

// Service is the tally operation this worker drives.
type Service interface {
	CastVote(ctx context.Context, applicationID, voterID, choice string) (*membership.VoteResult, error)
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

// Execute records the vote. A vote that arrives after the application was
// resolved surfaces as STATE_ERROR so the process can branch on it.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	result, err := h.service.CastVote(ctx, input.ApplicationID, input.VoterID, input.Vote)
	if err != nil {
		return nil, err
	}

	h.logger.Info("Vote recorded", map[string]interface{}{
		"applicationId":    input.ApplicationID,
		"voterId":          input.VoterID,
		"thresholdReached": result.ThresholdReached,
		"status":           result.Status,
	})

	return &Output{
		VoteAccepted:      result.Success,
		ThresholdReached:  result.ThresholdReached,
		YesPercentage:     result.YesPercentage,
		VotesNeeded:       result.VotesNeeded,
		YesVotes:          result.YesVotes,
		NoVotes:           result.NoVotes,
		TotalVoted:        result.TotalVoted,
		TotalMembers:      result.TotalMembers,
		ApplicationStatus: string(result.Status),
	}, nil
}
