// Package discrepancy finds data problems in a query result: an optional AI
// pass, generic null and duplicate checks, and registered business rules.
package discrepancy

import (
	"context"
	"fmt"
	"time"

	"sql-agent-workers/internal/archive"
	"sql-agent-workers/internal/catalog"
	"sql-agent-workers/internal/common/metrics"
	"sql-agent-workers/internal/models"
)

// Analyzer is the optional AI collaborator.
type Analyzer interface {
	Analyze(ctx context.Context, sample []models.Row, rules []models.RuleDefinition) ([]models.DiscrepancyRecord, error)
}

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type Engine struct {
	registry        *Registry
	source          catalog.Source
	analyzer        Analyzer
	archive         archive.Appender
	logger          Logger
	analyzerTimeout time.Duration
	ruleTimeout     time.Duration
}

type Option func(*Engine)

func WithAnalyzer(a Analyzer) Option {
	return func(e *Engine) { e.analyzer = a }
}

func WithArchive(store archive.Appender) Option {
	return func(e *Engine) { e.archive = store }
}

// WithTimeouts bounds each analyzer call and each declarative rule query.
// Zero leaves the caller's deadline in charge.
func WithTimeouts(analyzer, rule time.Duration) Option {
	return func(e *Engine) {
		e.analyzerTimeout = analyzer
		e.ruleTimeout = rule
	}
}

// NewEngine builds an engine. source runs declarative rule queries and may be
// nil when no such rules are registered.
func NewEngine(registry *Registry, source catalog.Source, log Logger, opts ...Option) *Engine {
	if registry == nil {
		registry = NewRegistry()
	}
	e := &Engine{registry: registry, source: source, logger: log}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

// Check returns AI records, then generic records, then business-rule records.
// It never fails; a broken collaborator or rule only loses its own records.
func (e *Engine) Check(ctx context.Context, selection models.SchemaSelection, result *models.QueryResult) []models.DiscrepancyRecord {
	records := []models.DiscrepancyRecord{}
	if !result.HasRows() {
		return records
	}

	rules := e.registry.snapshot()

	if e.analyzer != nil && len(rules) > 0 {
		records = append(records, e.analyze(ctx, result.Data)...)
	}

	columns := columnsOf(result)
	records = append(records, checkNulls(result.Data, columns)...)
	records = append(records, checkDuplicates(result.Data, columns)...)

	for _, rule := range rules {
		records = append(records, e.applyRule(ctx, rule, result.Data)...)
	}

	for _, r := range records {
		metrics.DiscrepanciesFound.WithLabelValues(r.Type, string(r.Severity)).Inc()
	}

	e.logger.Info("discrepancy check finished", map[string]interface{}{
		"schema":  selection.SelectedSchema,
		"rows":    len(result.Data),
		"rules":   len(rules),
		"records": len(records),
	})

	if len(records) > 0 && e.archive != nil {
		meta := map[string]interface{}{
			"schema": selection.SelectedSchema,
			"tables": selection.SelectedTables,
		}
		if err := e.archive.Append(ctx, archive.CategoryDiscrepancies, records, meta); err != nil {
			e.logger.Warn("failed to archive discrepancies", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return records
}

func (e *Engine) analyze(ctx context.Context, data []models.Row) []models.DiscrepancyRecord {
	if e.analyzerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.analyzerTimeout)
		defer cancel()
	}

	records, err := e.analyzer.Analyze(ctx, data, e.registry.Definitions())
	if err != nil {
		e.logger.Warn("AI analysis failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return records
}

func (e *Engine) applyRule(ctx context.Context, rule boundRule, data []models.Row) []models.DiscrepancyRecord {
	switch rule.kind {
	case KindNative:
		return e.withinBatch(rule.Definition.Name, rule.native(data, rule.Definition), len(data))
	case KindPredicate:
		return e.withinBatch(rule.Definition.Name, rule.Predicate(data), len(data))
	case KindQuery:
		records, err := e.runQueryRule(ctx, rule.Definition)
		if err != nil {
			metrics.RuleFailures.WithLabelValues(rule.Definition.Name).Inc()
			e.logger.Error("business rule failed", map[string]interface{}{
				"ruleName": rule.Definition.Name,
				"error":    err.Error(),
			})
			return nil
		}
		return records
	default:
		return nil
	}
}

// withinBatch drops records that point at rows outside [0, n).
func (e *Engine) withinBatch(ruleName string, records []models.DiscrepancyRecord, n int) []models.DiscrepancyRecord {
	kept := make([]models.DiscrepancyRecord, 0, len(records))
	for _, r := range records {
		if bad, ok := outOfRange(r.RowIndices, n); ok {
			e.logger.Warn("dropping rule record with out-of-range row index", map[string]interface{}{
				"ruleName": ruleName,
				"type":     r.Type,
				"rowIndex": bad,
				"rows":     n,
			})
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

func outOfRange(indices []int, n int) (int, bool) {
	for _, i := range indices {
		if i < 0 || i >= n {
			return i, true
		}
	}
	return 0, false
}

// runQueryRule treats every returned row as one violation.
func (e *Engine) runQueryRule(ctx context.Context, def models.RuleDefinition) ([]models.DiscrepancyRecord, error) {
	if e.source == nil {
		return nil, fmt.Errorf("%w: no data source for rule %q", ErrRuleExecutionFailed, def.Name)
	}
	if e.ruleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.ruleTimeout)
		defer cancel()
	}

	rows, err := e.source.Run(ctx, def.SQLQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleExecutionFailed, err)
	}

	out := make([]models.DiscrepancyRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, record(def, fmt.Sprintf("Business rule '%s' violated", def.Name), nil, nil, row))
	}
	return out, nil
}
