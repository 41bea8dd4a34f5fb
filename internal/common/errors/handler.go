package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler reports a failed job back to Zeebe. Retryable codes fail the
// job so Zeebe redelivers it; everything else is thrown as a BPMN error for
// the process model to catch.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// jobOutcome is what HandleJobError sends: a fail command with the given
// retries left, or a thrown BPMN error.
type jobOutcome struct {
	fail    bool
	retries int32
}

// decide never raises the retries Zeebe has left for the job.
func decide(stdErr *StandardError, remaining int32) jobOutcome {
	budget := int32(GetRetryCount(stdErr.Code))
	if !stdErr.Retryable || budget == 0 || remaining <= 0 {
		return jobOutcome{}
	}
	if remaining <= budget {
		return jobOutcome{fail: true, retries: remaining - 1}
	}
	return jobOutcome{fail: true, retries: budget}
}

func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := h.normalizeError(err)
	bpmnErr := ConvertToBPMNError(stdErr)
	outcome := decide(stdErr, job.Retries)

	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"bpmnErrorCode":    bpmnErr.Code,
		"details":          stdErr.Details,
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"retriesLeft":      outcome.retries,
		"thrown":           !outcome.fail,
		"workflowInstance": job.ProcessInstanceKey,
	})

	vars, _ := json.Marshal(bpmnErr.ToErrorVariables())
	if outcome.fail {
		cmd := client.NewFailJobCommand().
			JobKey(job.Key).
			Retries(outcome.retries).
			ErrorMessage(bpmnErr.Message)
		var dispatch commands.DispatchFailJobCommand = cmd
		if withVars, err := cmd.VariablesFromString(string(vars)); err == nil {
			dispatch = withVars
		}
		if _, err := dispatch.Send(ctx); err != nil {
			h.reportSendFailure("fail job", job, err)
		}
		return
	}

	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)
	if withVars, err := cmd.VariablesFromString(string(vars)); err == nil {
		cmd = withVars
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.reportSendFailure("throw error", job, err)
	}
}

func (h *ErrorHandler) reportSendFailure(command string, job entities.Job, err error) {
	h.logger.Error("failed to send "+command+" command", map[string]interface{}{
		"jobKey": job.Key,
		"error":  err.Error(),
	})
}

func (h *ErrorHandler) normalizeError(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
