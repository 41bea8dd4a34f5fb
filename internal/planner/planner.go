// Package planner turns a free-text request into an ordered stage plan.
package planner

import (
	"regexp"
	"strings"

	"sql-agent-workers/internal/models"
)

const (
	TemplateStandard        = "standard_query"
	TemplateWithDiscrepancy = "query_with_discrepancy"
)

// Keywords that mark a request as discrepancy-seeking. Matching is a
// case-insensitive substring test, so "errors" is covered by "error".
var discrepancyKeywords = []string{
	"discrepancy", "discrepancies",
	"inconsistency", "inconsistencies", "inconsistent",
	"error", "errors",
	"mismatch", "mismatches",
	"wrong", "incorrect",
	"validate", "validation",
	"verify", "verification",
	"check",
}

var (
	tableHintPattern  = regexp.MustCompile(`(?:table|tables) (\w+)`)
	schemaHintPattern = regexp.MustCompile(`(?:schema|database) (\w+)`)
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
}

// Builder owns the two fixed stage templates. It is safe for concurrent use:
// templates are never handed out, only cloned.
type Builder struct {
	templates map[string][]models.Stage
	logger    Logger
}

func NewBuilder(log Logger) *Builder {
	schemaStage := models.Stage{
		Agent:       models.AgentSchema,
		Action:      "get_schema_info",
		Description: "Determine which schema and tables to use",
	}
	queryStage := models.Stage{
		Agent:       models.AgentQuery,
		Action:      "execute_query",
		Description: "Generate and execute SQL query",
	}
	discrepancyStage := models.Stage{
		Agent:       models.AgentDiscrepancy,
		Action:      "check_discrepancies",
		Description: "Check for discrepancies in the data",
	}

	return &Builder{
		templates: map[string][]models.Stage{
			TemplateStandard:        {schemaStage, queryStage},
			TemplateWithDiscrepancy: {schemaStage, queryStage, discrepancyStage},
		},
		logger: log,
	}
}

// Build classifies request and returns a customized copy of the matching template.
func (b *Builder) Build(request string) models.Plan {
	lowered := strings.ToLower(request)

	name := TemplateStandard
	if NeedsDiscrepancyCheck(lowered) {
		name = TemplateWithDiscrepancy
	}

	steps := b.copyTemplate(name)
	customize(steps, lowered)

	if b.logger != nil {
		b.logger.Debug("plan built", map[string]interface{}{
			"template": name,
			"stages":   len(steps),
		})
	}

	return models.Plan{Query: request, Steps: steps}
}

func (b *Builder) copyTemplate(name string) []models.Stage {
	tmpl := b.templates[name]
	steps := make([]models.Stage, len(tmpl))
	for i, s := range tmpl {
		steps[i] = s.Clone()
	}
	return steps
}

// NeedsDiscrepancyCheck reports whether text contains any discrepancy keyword.
func NeedsDiscrepancyCheck(text string) bool {
	lowered := strings.ToLower(text)
	for _, kw := range discrepancyKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// customize injects entity hints into every schema stage. lowered must
// already be lower-cased.
func customize(steps []models.Stage, lowered string) {
	var table, schema string
	if m := tableHintPattern.FindStringSubmatch(lowered); m != nil {
		table = m[1]
	}
	if m := schemaHintPattern.FindStringSubmatch(lowered); m != nil {
		schema = m[1]
	}
	if table == "" && schema == "" {
		return
	}

	for i := range steps {
		if steps[i].Agent != models.AgentSchema {
			continue
		}
		if steps[i].Parameters == nil {
			steps[i].Parameters = make(map[string]interface{})
		}
		if table != "" {
			steps[i].Parameters[models.ParamSuggestedTables] = []string{table}
		}
		if schema != "" {
			steps[i].Parameters[models.ParamSuggestedSchema] = schema
		}
	}
}
