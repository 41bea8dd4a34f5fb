// internal/workers/sql-agent/refresh-schema-cache/config.go
package refreshschemacache

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 60 * time.Second,
	}
}
