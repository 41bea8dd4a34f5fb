// pkg/registry/schema.go
package registry

import "sql-agent-workers/internal/models"

// RuleBook is the on-disk list of business rules.
type RuleBook struct {
	Version     string                  `yaml:"version,omitempty" json:"version,omitempty"`
	LastUpdated string                  `yaml:"last_updated,omitempty" json:"last_updated,omitempty"`
	Rules       []models.RuleDefinition `yaml:"rules" json:"rules"`
}

const ruleBookSchema = `{
  "type": "object",
  "required": ["rules"],
  "properties": {
    "version": {"type": "string"},
    "last_updated": {"type": "string"},
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "pattern": "^[A-Za-z0-9_\\-]+$"},
          "description": {"type": "string"},
          "type": {"type": "string"},
          "severity": {"type": "string", "enum": ["low", "medium", "high"]},
          "message": {"type": "string"},
          "check": {"type": "string"},
          "sql_query": {"type": "string"},
          "params": {"type": "object"}
        },
        "additionalProperties": false
      }
    }
  }
}`
