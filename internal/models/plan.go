// internal/models/plan.go
package models

// AgentKind selects which component handles a stage.
type AgentKind string

const (
	AgentSchema      AgentKind = "schema"
	AgentQuery       AgentKind = "query"
	AgentDiscrepancy AgentKind = "discrepancy"
)

func (k AgentKind) Valid() bool {
	switch k {
	case AgentSchema, AgentQuery, AgentDiscrepancy:
		return true
	}
	return false
}

// Stage parameter keys set by the plan builder.
const (
	ParamSuggestedTables = "suggested_tables"
	ParamSuggestedSchema = "suggested_schema"
)

type Stage struct {
	Agent       AgentKind              `json:"agent"`
	Action      string                 `json:"action"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Clone returns a copy of the stage whose parameter map shares nothing with s.
func (s Stage) Clone() Stage {
	out := s
	out.Parameters = cloneValue(s.Parameters).(map[string]interface{})
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		if t == nil {
			return map[string]interface{}(nil)
		}
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// SchemaHints are the entity hints a schema stage carries.
type SchemaHints struct {
	SuggestedSchema string
	SuggestedTables []string
}

// Hints reads the suggested schema and tables from the stage parameters.
// Values of the wrong type are ignored.
func (s Stage) Hints() SchemaHints {
	var h SchemaHints
	if v, ok := s.Parameters[ParamSuggestedSchema].(string); ok {
		h.SuggestedSchema = v
	}
	switch v := s.Parameters[ParamSuggestedTables].(type) {
	case []string:
		h.SuggestedTables = append([]string(nil), v...)
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				h.SuggestedTables = append(h.SuggestedTables, str)
			}
		}
	}
	return h
}

// Plan is the ordered stage list built for one request.
type Plan struct {
	Query string  `json:"query"`
	Steps []Stage `json:"steps"`
}

func (p Plan) HasStage(kind AgentKind) bool {
	for _, s := range p.Steps {
		if s.Agent == kind {
			return true
		}
	}
	return false
}
