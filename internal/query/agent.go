// Package query generates SQL for a request through the model provider and
// runs it against the data source with a row cap.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sql-agent-workers/internal/archive"
	"sql-agent-workers/internal/catalog"
	"sql-agent-workers/internal/common/metrics"
	"sql-agent-workers/internal/llm"
	"sql-agent-workers/internal/models"
)

var (
	ErrSQLGenerationFailed  = errors.New("SQL_GENERATION_FAILED")
	ErrQueryExecutionFailed = errors.New("QUERY_EXECUTION_FAILED")
	ErrQueryTimeout         = errors.New("QUERY_TIMEOUT")
)

const (
	DefaultMaxRows      = 100
	DefaultExampleCount = 3
)

// Writer produces one SQL statement for a request.
type Writer interface {
	WriteSQL(ctx context.Context, request string, selection models.SchemaSelection, examples []llm.Example) (string, error)
}

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type Config struct {
	MaxRows      int
	ExampleCount int
}

// Agent is the query collaborator of the pipeline. It never returns an error;
// failures are carried in QueryResult.Error.
type Agent struct {
	writer Writer
	db     *sql.DB
	store  archive.Store
	config Config
	logger Logger
}

func NewAgent(writer Writer, db *sql.DB, store archive.Store, config Config, log Logger) *Agent {
	if config.MaxRows <= 0 {
		config.MaxRows = DefaultMaxRows
	}
	if config.ExampleCount < 0 {
		config.ExampleCount = 0
	}
	return &Agent{writer: writer, db: db, store: store, config: config, logger: log}
}

func (a *Agent) GenerateAndRun(ctx context.Context, request string, selection models.SchemaSelection) models.QueryResult {
	examples := a.examples(ctx)

	sqlText, err := a.writer.WriteSQL(ctx, request, selection, examples)
	if err != nil {
		if errors.Is(err, llm.ErrLLMTimeout) || ctx.Err() != nil {
			return a.failed("", fmt.Errorf("%w: %v", ErrQueryTimeout, err))
		}
		return a.failed("", fmt.Errorf("%w: %v", ErrSQLGenerationFailed, err))
	}

	result, err := a.Run(ctx, sqlText)
	if err != nil {
		return a.failed(sqlText, err)
	}

	a.logger.Info("query executed", map[string]interface{}{
		"rowCount":  result.RowCount,
		"truncated": result.Truncated,
	})

	if a.store != nil {
		item := llm.Example{Query: request, SQL: sqlText}
		meta := map[string]interface{}{"rowCount": result.RowCount}
		if err := a.store.Append(ctx, archive.CategoryExecutedQueries, item, meta); err != nil {
			a.logger.Warn("failed to archive executed query", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return result
}

// Run executes sqlText and reads at most MaxRows rows.
func (a *Agent) Run(ctx context.Context, sqlText string) (models.QueryResult, error) {
	rows, err := a.db.QueryContext(ctx, sqlText)
	if err != nil {
		return models.QueryResult{}, a.execError(ctx, err)
	}
	defer rows.Close()

	cols, data, err := catalog.ScanRows(rows, a.config.MaxRows)
	if err != nil {
		return models.QueryResult{}, a.execError(ctx, err)
	}

	return models.QueryResult{
		Columns:   cols,
		Data:      data,
		RowCount:  len(data),
		Truncated: len(data) >= a.config.MaxRows,
		SQLQuery:  sqlText,
	}, nil
}

func (a *Agent) execError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrQueryTimeout, ctx.Err())
	}
	return fmt.Errorf("%w: %v", ErrQueryExecutionFailed, err)
}

func (a *Agent) failed(sqlText string, err error) models.QueryResult {
	metrics.QueryErrors.Inc()
	a.logger.Error("query stage failed", map[string]interface{}{
		"error":    err.Error(),
		"sqlQuery": sqlText,
	})
	return models.QueryResult{
		Columns:  []string{},
		Data:     []models.Row{},
		SQLQuery: sqlText,
		Error:    err.Error(),
	}
}

// examples loads recent executed queries. Read failures only cost the
// prompt its examples.
func (a *Agent) examples(ctx context.Context) []llm.Example {
	if a.store == nil || a.config.ExampleCount == 0 {
		return nil
	}
	entries, err := a.store.Recent(ctx, archive.CategoryExecutedQueries, a.config.ExampleCount, nil)
	if err != nil {
		a.logger.Warn("failed to load query examples", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	out := make([]llm.Example, 0, len(entries))
	for _, e := range entries {
		var ex llm.Example
		if err := e.Decode(&ex); err != nil || ex.SQL == "" {
			continue
		}
		out = append(out, ex)
	}
	return out
}
