// internal/workers/sql-agent/answer-request/config.go
package answerrequest

import "time"

type Config struct {
	Timeout          time.Duration
	MaxRequestLength int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:          120 * time.Second,
		MaxRequestLength: 4000,
	}
}
