// Package llm talks to the model provider used for SQL synthesis and for
// AI-assisted discrepancy analysis.
package llm

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrLLMTimeout       = errors.New("LLM_TIMEOUT")
	ErrLLMRequestFailed = errors.New("LLM_REQUEST_FAILED")
	ErrEmptyCompletion  = errors.New("EMPTY_COMPLETION")
)

// Completer returns the model's text completion for a single-turn prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// StripCodeFence removes a leading ``` or ```lang fence and its closing fence.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		if lang := strings.TrimSpace(s[:nl]); lang == "" || !strings.ContainsAny(lang, " \t(;") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
