// internal/workers/sql-agent/refresh-schema-cache/handler.go
package refreshschemacache

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "sql-agent-workers/internal/common/errors"
	"sql-agent-workers/internal/common/logger"
	"sql-agent-workers/internal/common/metrics"
)

const (
	TaskType = "refresh-schema-cache"

	// reportTimeout bounds the complete, fail and throw-error calls to Zeebe.
	reportTimeout = 5 * time.Second
)

// Refresher reloads the schema catalog. Satisfied by *catalog.Cache.
type Refresher interface {
	Refresh(ctx context.Context) error
	Dump() map[string]map[string][]string
	RefreshedAt() time.Time
}

type Handler struct {
	config       *Config
	cache        Refresher
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, cache Refresher, log logger.Logger) *Handler {
	scoped := log.With(map[string]interface{}{
		"taskType": TaskType,
	})
	return &Handler{
		config:       config,
		cache:        cache,
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
	if job.Variables != "" {
		if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
			h.fail(client, job, apperrors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err)))
			return
		}
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
	if err := h.cache.Refresh(ctx); err != nil {
		return nil, classifyRefreshError(err)
	}

	dump := h.cache.Dump()
	out := &Output{
		Tables:      make(map[string][]string),
		RefreshedAt: h.cache.RefreshedAt(),
	}

	if input.Schema != "" {
		tables, ok := dump[input.Schema]
		if !ok {
			return nil, apperrors.NewInvalidRequestError(fmt.Sprintf("unknown schema %q", input.Schema))
		}
		dump = map[string]map[string][]string{input.Schema: tables}
	}

	for schema, tables := range dump {
		names := make([]string, 0, len(tables))
		for name := range tables {
			names = append(names, name)
		}
		sort.Strings(names)
		out.Tables[schema] = names
		out.SchemaCount++
		out.TableCount += len(names)
	}

	h.logger.Info("schema cache refreshed", map[string]interface{}{
		"schemas": out.SchemaCount,
		"tables":  out.TableCount,
	})
	return out, nil
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

// classifyRefreshError separates a lost connection, which is worth more
// retries, from a catalog query the database rejected.
func classifyRefreshError(err error) *apperrors.StandardError {
	var netErr *net.OpError
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return apperrors.NewDatabaseConnectionFailedError(err)
	}
	return apperrors.NewCatalogAccessFailedError(err)
}
