// internal/workers/sql-agent/refresh-schema-cache/models.go
package refreshschemacache

import "time"

type Input struct {
	// Schema narrows the output to one schema. The whole catalog is still reloaded.
	Schema string `json:"schema,omitempty"`
}

type Output struct {
	SchemaCount int                 `json:"schemaCount"`
	TableCount  int                 `json:"tableCount"`
	Tables      map[string][]string `json:"tables"`
	RefreshedAt time.Time           `json:"refreshedAt"`
}
