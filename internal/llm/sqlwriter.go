package llm

import (
	"context"
	"fmt"
	"strings"

	"sql-agent-workers/internal/models"
)

// Example is a prior request and the SQL that answered it.
type Example struct {
	Query string `json:"user_query"`
	SQL   string `json:"sql_query"`
}

// SQLWriter turns a request plus a schema selection into one SQL statement.
type SQLWriter struct {
	completer Completer
	dialect   string
}

func NewSQLWriter(completer Completer, dialect string) *SQLWriter {
	if dialect == "" {
		dialect = "PostgreSQL"
	}
	return &SQLWriter{completer: completer, dialect: dialect}
}

func (w *SQLWriter) WriteSQL(ctx context.Context, request string, selection models.SchemaSelection, examples []Example) (string, error) {
	raw, err := w.completer.Complete(ctx, BuildSQLPrompt(w.dialect, request, selection, examples))
	if err != nil {
		return "", err
	}
	sql := StripCodeFence(raw)
	if sql == "" {
		return "", ErrEmptyCompletion
	}
	return sql, nil
}

// BuildSQLPrompt renders the SQL synthesis prompt. Tables are listed in
// selection order.
func BuildSQLPrompt(dialect, request string, selection models.SchemaSelection, examples []Example) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("You are an expert %s developer. Generate a valid %s query to answer the following question:", dialect, dialect))
	parts = append(parts, fmt.Sprintf("\nUSER QUERY: %s", request))

	parts = append(parts, "\nDATABASE SCHEMA:")
	if selection.SelectedSchema != "" {
		parts = append(parts, fmt.Sprintf("Schema: %s\n", selection.SelectedSchema))
	}
	if len(selection.SelectedTables) == 0 {
		parts = append(parts, "No tables were identified for this request. If the question cannot be answered, return a query that selects an explanatory message.")
	}
	for _, table := range selection.SelectedTables {
		cols, ok := selection.TableColumns[table]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("Table: %s", table))
		parts = append(parts, fmt.Sprintf("Columns: %s\n", strings.Join(cols, ", ")))
	}

	if len(examples) > 0 {
		parts = append(parts, "Here are some examples of similar queries:\n")
		for i, ex := range examples {
			parts = append(parts, fmt.Sprintf("Example %d:", i+1))
			parts = append(parts, fmt.Sprintf("User query: %s", ex.Query))
			parts = append(parts, fmt.Sprintf("SQL: %s\n", ex.SQL))
		}
	}

	parts = append(parts, fmt.Sprintf("Your task is to write a well-optimized %s query that answers the user's question.", dialect))
	parts = append(parts, "Return ONLY the SQL query without any explanations, comments or backticks.")

	return strings.Join(parts, "\n")
}
