// internal/workers/sql-agent/answer-request/handler.go
package answerrequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "sql-agent-workers/internal/common/errors"
	"sql-agent-workers/internal/common/logger"
	"sql-agent-workers/internal/common/metrics"
	"sql-agent-workers/internal/models"
)

const (
	TaskType = "answer-request"

	// reportTimeout bounds the complete, fail and throw-error calls to Zeebe.
	reportTimeout = 5 * time.Second
)

// Runner answers one request end to end.
type Runner interface {
	Run(ctx context.Context, request string) (models.Summary, error)
}

type Handler struct {
	config       *Config
	runner       Runner
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, runner Runner, log logger.Logger) *Handler {
	scoped := log.With(map[string]interface{}{
		"taskType": TaskType,
	})
	return &Handler{
		config:       config,
		runner:       runner,
		errorHandler: apperrors.NewErrorHandler(scoped),
		logger:       scoped,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(client, job, apperrors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.fail(client, job, err)
		return
	}

	h.completeJob(client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	request := strings.TrimSpace(input.Request)
	if request == "" {
		return nil, apperrors.NewInvalidRequestError("request is required")
	}
	if h.config.MaxRequestLength > 0 && len(request) > h.config.MaxRequestLength {
		return nil, apperrors.NewInvalidRequestError(fmt.Sprintf("request exceeds %d characters", h.config.MaxRequestLength))
	}

	summary, err := h.runner.Run(ctx, request)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("job timed out after %s: %w", h.config.Timeout, err)
		}
		return nil, apperrors.NewPipelineAbortedError(err)
	}

	h.logger.Info("request answered", map[string]interface{}{
		"schema":        summary.SchemaUsed,
		"tableCount":    len(summary.TablesUsed),
		"rowCount":      summary.Result.RowCount,
		"discrepancies": len(summary.Discrepancies),
		"queryError":    summary.Result.Error,
	})

	return &Output{
		Result:        summary.Result,
		Discrepancies: summary.Discrepancies,
		SchemaUsed:    summary.SchemaUsed,
		TablesUsed:    summary.TablesUsed,
		Plan:          summary.Plan,
	}, nil
}

// fail reports on its own context: the job context may already be past its
// deadline, and Zeebe must still hear about the failure.
func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	code := "INTERNAL_ERROR"
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		code = string(stdErr.Code)
	}
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, code).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
