package orchestrator

import (
	"sql-agent-workers/internal/models"
)

// SharedContext accumulates stage outputs for one run. The schema stage
// writes SchemaSelection, the query stage reads it and writes QueryResult,
// and the discrepancy stage reads both and writes Discrepancies. A nil field
// has not been written yet.
type SharedContext struct {
	RunID           string                     `json:"run_id"`
	SourceRequest   string                     `json:"source_request"`
	SchemaSelection *models.SchemaSelection    `json:"schema_selection,omitempty"`
	QueryResult     *models.QueryResult        `json:"query_result,omitempty"`
	Discrepancies   []models.DiscrepancyRecord `json:"discrepancies,omitempty"`
}

func newSharedContext(runID, request string) *SharedContext {
	return &SharedContext{RunID: runID, SourceRequest: request}
}

// Summary renders the caller-facing view, filling unset fields with empty
// values.
func (c *SharedContext) Summary(plan models.Plan) models.Summary {
	s := models.Summary{
		Result:        models.QueryResult{Columns: []string{}, Data: []models.Row{}},
		Discrepancies: []models.DiscrepancyRecord{},
		TablesUsed:    []string{},
		Plan:          plan,
	}
	if c.QueryResult != nil {
		s.Result = *c.QueryResult
	}
	if c.Discrepancies != nil {
		s.Discrepancies = c.Discrepancies
	}
	if c.SchemaSelection != nil {
		s.SchemaUsed = c.SchemaSelection.SelectedSchema
		if c.SchemaSelection.SelectedTables != nil {
			s.TablesUsed = c.SchemaSelection.SelectedTables
		}
	}
	return s
}
