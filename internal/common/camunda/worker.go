// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ican-workers/internal/common/config"
	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/common/logger"
	"ican-workers/internal/common/metrics"
	"ican-workers/internal/common/observability"
	"ican-workers/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobFunc processes one activated job and returns the object the job is
// completed with.
type JobFunc func(ctx context.Context, job entities.Job) (interface{}, error)

type RunnerOptions struct {
	TaskType      string
	Timeout       time.Duration
	Schemas       *validation.SchemaValidator
	Observability *observability.Observability
	Logger        logger.Logger
}

// JobRunner owns the lifecycle shared by every worker: variable validation,
// timeout, completion, failure mapping and metrics.
type JobRunner struct {
	taskType string
	timeout  time.Duration
	schemas  *validation.SchemaValidator
	obs      *observability.Observability
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

func NewJobRunner(opts RunnerOptions) *JobRunner {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	log := logger.Component(opts.Logger, "job-runner").WithFields(map[string]interface{}{
		"worker": opts.TaskType,
	})
	return &JobRunner{
		taskType: opts.TaskType,
		timeout:  opts.Timeout,
		schemas:  opts.Schemas,
		obs:      opts.Observability,
		errors:   apperrors.NewErrorHandler(log),
		logger:   log,
	}
}

// RunnerFor builds a runner for taskType using the worker timeout configured in cfg.
func RunnerFor(cfg *config.Config, taskType string, schemas *validation.SchemaValidator, obs *observability.Observability, log logger.Logger) *JobRunner {
	timeout := 30 * time.Second
	if cfg != nil {
		timeout = config.GetDuration(config.GetWorkerConfig(cfg, taskType).Timeout)
	}
	return NewJobRunner(RunnerOptions{
		TaskType:      taskType,
		Timeout:       timeout,
		Schemas:       schemas,
		Observability: obs,
		Logger:        log,
	})
}

func (r *JobRunner) TaskType() string { return r.taskType }

// Run processes job with fn and reports the outcome to the broker.
func (r *JobRunner) Run(client worker.JobClient, job entities.Job, fn JobFunc) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(r.taskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(r.taskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	log := r.logger.WithFields(map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})
	log.Debug("Processing job", nil)

	output, err := r.execute(ctx, job, fn)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(r.taskType, string(apperrors.CodeOf(err))).Inc()
		outcome := r.errors.HandleJobError(ctx, client, job, err)
		r.obs.RecordJob(ctx, r.taskType, string(outcome), time.Since(startTime))
		return
	}

	if err := r.complete(ctx, client, job, output); err != nil {
		log.Error("Failed to complete job", map[string]interface{}{"error": err.Error()})
		metrics.WorkerJobsFailed.WithLabelValues(r.taskType, "COMPLETE_FAILED").Inc()
		r.obs.RecordJob(ctx, r.taskType, "complete_failed", time.Since(startTime))
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(r.taskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(r.taskType).Observe(time.Since(startTime).Seconds())
	r.obs.RecordJob(ctx, r.taskType, "completed", time.Since(startTime))
	log.Info("Job completed", map[string]interface{}{"durationMs": time.Since(startTime).Milliseconds()})
}

func (r *JobRunner) execute(ctx context.Context, job entities.Job, fn JobFunc) (interface{}, error) {
	if r.schemas != nil {
		document := job.GetVariables()
		if strings.TrimSpace(document) == "" {
			document = "{}"
		}
		result, err := r.schemas.ValidateJSON(r.taskType, []byte(document))
		if err != nil {
			return nil, apperrors.NewValidationError(err.Error())
		}
		if !result.Valid {
			return nil, apperrors.NewValidationError(strings.Join(result.GetErrorMessages(), "; "))
		}
	}
	return fn(ctx, job)
}

func (r *JobRunner) complete(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}) error {
	step := client.NewCompleteJobCommand().JobKey(job.GetKey())
	if output == nil {
		_, err := step.Send(ctx)
		return err
	}
	request, err := step.VariablesFromObject(output)
	if err != nil {
		return fmt.Errorf("encode job variables: %w", err)
	}
	_, err = request.Send(ctx)
	return err
}

// DecodeVariables unmarshals the job variables into out.
func DecodeVariables(job entities.Job, out interface{}) error {
	if err := job.GetVariablesAs(out); err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("decode job variables: %v", err))
	}
	return nil
}

// Handler is implemented by every task worker.
type Handler interface {
	Runner() *JobRunner
	Handle(client worker.JobClient, job entities.Job)
}

// StartWorker opens a job worker for h's task type. It returns nil when the
// worker is disabled.
func StartWorker(client zbc.Client, h Handler, wcfg config.WorkerConfig, log logger.Logger) worker.JobWorker {
	taskType := h.Runner().TaskType()
	if !wcfg.Enabled {
		log.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return nil
	}

	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(h.Handle).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Name(fmt.Sprintf("%s-worker", taskType)).
		Open()

	log.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})
	return jobWorker
}
