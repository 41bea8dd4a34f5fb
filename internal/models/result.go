// internal/models/result.go
package models

// Row is one result row keyed by column name.
type Row = map[string]interface{}

// SchemaSelection is the outcome of schema and table resolution.
// An empty SelectedSchema means no schema could be chosen.
type SchemaSelection struct {
	AvailableSchemas []string            `json:"available_schemas"`
	SelectedSchema   string              `json:"selected_schema"`
	SelectedTables   []string            `json:"selected_tables"`
	TableColumns     map[string][]string `json:"table_columns"`
}

// QueryResult is produced by the query stage. Failures are carried in Error.
type QueryResult struct {
	Columns   []string `json:"columns"`
	Data      []Row    `json:"data"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
	SQLQuery  string   `json:"sql_query,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func (r *QueryResult) HasRows() bool {
	return r != nil && len(r.Data) > 0
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Valid() bool {
	return s.rank() > 0
}

func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	}
	return 0
}

// AtLeast reports whether s is as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.rank() >= min.rank() && s.rank() > 0
}

// Discrepancy record types emitted by the built-in checks.
const (
	TypeNullValue      = "null_value"
	TypeDuplicateValue = "duplicate_value"
	TypeBusinessRule   = "business_rule"
)

type DiscrepancyRecord struct {
	Type       string                 `json:"type"`
	Severity   Severity               `json:"severity"`
	Message    string                 `json:"message"`
	RowIndices []int                  `json:"row_indices"`
	Fields     []string               `json:"fields"`
	RuleName   string                 `json:"rule_name,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Summary is the caller-facing view of one pipeline run.
type Summary struct {
	Result        QueryResult         `json:"result"`
	Discrepancies []DiscrepancyRecord `json:"discrepancies"`
	SchemaUsed    string              `json:"schema_used"`
	TablesUsed    []string            `json:"tables_used"`
	Plan          Plan                `json:"plan"`
}
