package models

// RuleDefinition is the serializable part of a business rule, as loaded from
// a rule book and as shown to the AI analyzer.
type RuleDefinition struct {
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Type        string                 `json:"type,omitempty" yaml:"type,omitempty"`
	Severity    Severity               `json:"severity,omitempty" yaml:"severity,omitempty"`
	Message     string                 `json:"message,omitempty" yaml:"message,omitempty"`
	Check       string                 `json:"check,omitempty" yaml:"check,omitempty"`
	SQLQuery    string                 `json:"sql_query,omitempty" yaml:"sql_query,omitempty"`
	Params      map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
}
