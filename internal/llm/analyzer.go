package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"sql-agent-workers/internal/models"
)

const discrepancySchema = `{
  "type": "object",
  "required": ["type", "severity", "message", "row_indices", "fields"],
  "properties": {
    "type": {"type": "string", "minLength": 1},
    "severity": {"type": "string", "enum": ["low", "medium", "high"]},
    "message": {"type": "string", "minLength": 1},
    "row_indices": {"type": "array", "items": {"type": "integer", "minimum": 0}},
    "fields": {"type": "array", "items": {"type": "string"}}
  }
}`

var discrepancySchemaLoader = gojsonschema.NewStringLoader(discrepancySchema)

// Analyzer asks the model to spot data problems the generic checks miss.
type Analyzer struct {
	completer  Completer
	sampleSize int
	logger     Logger
}

func NewAnalyzer(completer Completer, sampleSize int, log Logger) *Analyzer {
	if sampleSize <= 0 {
		sampleSize = 20
	}
	return &Analyzer{completer: completer, sampleSize: sampleSize, logger: log}
}

func (a *Analyzer) SampleSize() int {
	return a.sampleSize
}

// Analyze returns the records the model reported for sample. Output that is
// not a JSON array yields no records; elements failing validation or
// pointing outside the sample are dropped.
func (a *Analyzer) Analyze(ctx context.Context, sample []models.Row, rules []models.RuleDefinition) ([]models.DiscrepancyRecord, error) {
	if len(sample) == 0 {
		return nil, nil
	}
	if len(sample) > a.sampleSize {
		sample = sample[:a.sampleSize]
	}

	prompt, err := BuildAnalysisPrompt(sample, rules)
	if err != nil {
		return nil, err
	}

	raw, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(StripCodeFence(raw)), &elements); err != nil {
		a.logger.Warn("analyzer returned non-array output", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, nil
	}

	records := make([]models.DiscrepancyRecord, 0, len(elements))
	for i, element := range elements {
		result, err := gojsonschema.Validate(discrepancySchemaLoader, gojsonschema.NewBytesLoader(element))
		if err != nil || !result.Valid() {
			a.logger.Debug("dropping invalid analyzer record", map[string]interface{}{
				"index":  i,
				"errors": schemaErrors(result, err),
			})
			continue
		}

		var rec models.DiscrepancyRecord
		if err := json.Unmarshal(element, &rec); err != nil {
			continue
		}
		if !indicesInRange(rec.RowIndices, len(sample)) {
			a.logger.Debug("dropping analyzer record with out-of-range rows", map[string]interface{}{
				"index":      i,
				"rowIndices": rec.RowIndices,
			})
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// BuildAnalysisPrompt renders the analysis prompt for a row sample.
func BuildAnalysisPrompt(sample []models.Row, rules []models.RuleDefinition) (string, error) {
	data, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode sample: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Analyze the following query results for data discrepancies or business rule violations.\n\n")
	sb.WriteString("DATA:\n")
	sb.Write(data)
	sb.WriteString("\n\n")

	if len(rules) > 0 {
		sb.WriteString("BUSINESS RULES:\n")
		for _, r := range rules {
			desc := r.Description
			if desc == "" {
				desc = r.Name
			}
			fmt.Fprintf(&sb, "- %s: %s\n", r.Name, desc)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Look for missing values, duplicates, outliers, inconsistent values and business rule violations.\n")
	sb.WriteString("Return a JSON array of objects with keys: type, severity (low, medium or high), message, row_indices (0-based), fields.\n")
	sb.WriteString("Return ONLY the JSON array. Return [] when nothing is wrong.")
	return sb.String(), nil
}

func indicesInRange(indices []int, n int) bool {
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			return false
		}
	}
	return true
}

func schemaErrors(result *gojsonschema.Result, err error) string {
	if err != nil {
		return err.Error()
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}
