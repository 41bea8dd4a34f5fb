// internal/workers/sql-agent/answer-request/models.go
package answerrequest

import "sql-agent-workers/internal/models"

type Input struct {
	Request string `json:"request"`
}

type Output struct {
	Result        models.QueryResult         `json:"result"`
	Discrepancies []models.DiscrepancyRecord `json:"discrepancies"`
	SchemaUsed    string                     `json:"schemaUsed"`
	TablesUsed    []string                   `json:"tablesUsed"`
	Plan          models.Plan                `json:"plan"`
}
