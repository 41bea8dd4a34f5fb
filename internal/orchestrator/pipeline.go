// Package orchestrator runs a plan's stages in order over one shared context.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"sql-agent-workers/internal/archive"
	"sql-agent-workers/internal/common/metrics"
	"sql-agent-workers/internal/models"
)

var (
	ErrPipelineAborted = errors.New("PIPELINE_ABORTED")
	ErrEmptyPlan       = errors.New("EMPTY_PLAN")
	ErrUnknownStage    = errors.New("UNKNOWN_STAGE")
	ErrStageOutOfOrder = errors.New("STAGE_OUT_OF_ORDER")
)

type Planner interface {
	Build(request string) models.Plan
}

type SchemaResolver interface {
	Resolve(ctx context.Context, request string, hints models.SchemaHints) models.SchemaSelection
}

// QueryRunner generates and executes SQL. Failures are reported in the
// returned result, never as an error.
type QueryRunner interface {
	GenerateAndRun(ctx context.Context, request string, selection models.SchemaSelection) models.QueryResult
}

type DiscrepancyChecker interface {
	Check(ctx context.Context, selection models.SchemaSelection, result *models.QueryResult) []models.DiscrepancyRecord
}

// Alerter is told about every finished run that found discrepancies.
type Alerter interface {
	Alert(ctx context.Context, request string, records []models.DiscrepancyRecord) error
}

type RunRecorder interface {
	RecordRun(ctx context.Context, duration time.Duration, status string)
}

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type Pipeline struct {
	planner      Planner
	resolver     SchemaResolver
	query        QueryRunner
	checker      DiscrepancyChecker
	archive      archive.Appender
	alerter      Alerter
	recorder     RunRecorder
	tracer       trace.Tracer
	logger       Logger
	stageTimeout time.Duration
}

type Option func(*Pipeline)

func WithArchive(store archive.Appender) Option {
	return func(p *Pipeline) { p.archive = store }
}

func WithAlerter(a Alerter) Option {
	return func(p *Pipeline) { p.alerter = a }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

func WithRunRecorder(r RunRecorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithStageTimeout bounds each stage. A query stage that times out still
// yields a result carrying the timeout error.
func WithStageTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.stageTimeout = d }
}

func New(planner Planner, resolver SchemaResolver, query QueryRunner, checker DiscrepancyChecker, log Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		planner:  planner,
		resolver: resolver,
		query:    query,
		checker:  checker,
		logger:   log,
		tracer:   noop.NewTracerProvider().Tracer("orchestrator"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run plans the request and executes the plan.
func (p *Pipeline) Run(ctx context.Context, request string) (models.Summary, error) {
	if p.archive != nil {
		if err := p.archive.Append(ctx, archive.CategoryUserQueries, request, nil); err != nil {
			p.logger.Warn("failed to archive request", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	plan := p.planner.Build(request)
	metrics.PipelinePlans.WithLabelValues(strconv.FormatBool(plan.HasStage(models.AgentDiscrepancy))).Inc()

	return p.Execute(ctx, plan, request)
}

// Execute runs plan's stages in order. On error nothing is archived for the
// run.
func (p *Pipeline) Execute(ctx context.Context, plan models.Plan, request string) (models.Summary, error) {
	start := time.Now()
	runID := uuid.New().String()

	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("plan.stages", len(plan.Steps)),
	))
	defer span.End()

	summary, err := p.execute(ctx, runID, plan, request)

	status := "success"
	if err != nil {
		status = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("pipeline run failed", map[string]interface{}{
			"runId": runID,
			"error": err.Error(),
		})
	}
	if p.recorder != nil {
		p.recorder.RecordRun(ctx, time.Since(start), status)
	}
	return summary, err
}

func (p *Pipeline) execute(ctx context.Context, runID string, plan models.Plan, request string) (models.Summary, error) {
	if len(plan.Steps) == 0 {
		return models.Summary{}, ErrEmptyPlan
	}

	sc := newSharedContext(runID, request)
	for i, stage := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return models.Summary{}, fmt.Errorf("%w: before stage %d: %v", ErrPipelineAborted, i, err)
		}
		if err := p.runStage(ctx, i, stage, sc); err != nil {
			return models.Summary{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return models.Summary{}, fmt.Errorf("%w: before archive: %v", ErrPipelineAborted, err)
	}

	if p.archive != nil {
		meta := map[string]interface{}{"runId": runID, "stages": len(plan.Steps)}
		if err := p.archive.Append(ctx, archive.CategoryQueryContexts, sc, meta); err != nil {
			p.logger.Warn("failed to archive query context", map[string]interface{}{
				"runId": runID,
				"error": err.Error(),
			})
		}
	}

	summary := sc.Summary(plan)
	if p.alerter != nil && len(summary.Discrepancies) > 0 {
		if err := p.alerter.Alert(ctx, request, summary.Discrepancies); err != nil {
			p.logger.Warn("failed to send discrepancy alert", map[string]interface{}{
				"runId": runID,
				"error": err.Error(),
			})
		}
	}

	p.logger.Info("pipeline run finished", map[string]interface{}{
		"runId":         runID,
		"schema":        summary.SchemaUsed,
		"tableCount":    len(summary.TablesUsed),
		"rowCount":      summary.Result.RowCount,
		"discrepancies": len(summary.Discrepancies),
	})
	return summary, nil
}

func (p *Pipeline) runStage(ctx context.Context, index int, stage models.Stage, sc *SharedContext) error {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "stage."+string(stage.Agent), trace.WithAttributes(
		attribute.Int("stage.index", index),
		attribute.String("stage.action", stage.Action),
	))
	defer span.End()

	if p.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.stageTimeout)
		defer cancel()
	}

	p.logger.Debug("running stage", map[string]interface{}{
		"runId":  sc.RunID,
		"stage":  string(stage.Agent),
		"action": stage.Action,
	})

	switch stage.Agent {
	case models.AgentSchema:
		selection := p.resolver.Resolve(ctx, sc.SourceRequest, stage.Hints())
		sc.SchemaSelection = &selection

	case models.AgentQuery:
		if sc.SchemaSelection == nil {
			return fmt.Errorf("%w: query stage %d has no schema selection", ErrStageOutOfOrder, index)
		}
		result := p.query.GenerateAndRun(ctx, sc.SourceRequest, *sc.SchemaSelection)
		if result.Error != "" {
			span.SetAttributes(attribute.String("query.error", result.Error))
		}
		sc.QueryResult = &result

	case models.AgentDiscrepancy:
		var selection models.SchemaSelection
		if sc.SchemaSelection != nil {
			selection = *sc.SchemaSelection
		}
		sc.Discrepancies = []models.DiscrepancyRecord{}
		if sc.QueryResult.HasRows() {
			sc.Discrepancies = p.checker.Check(ctx, selection, sc.QueryResult)
		}

	default:
		err := fmt.Errorf("%w: %q at index %d", ErrUnknownStage, stage.Agent, index)
		span.RecordError(err)
		return err
	}

	metrics.PipelineStageDuration.WithLabelValues(string(stage.Agent)).Observe(time.Since(start).Seconds())
	return nil
}
