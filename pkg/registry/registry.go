// pkg/registry/registry.go
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"sql-agent-workers/internal/models"
)

var ErrInvalidRuleBook = errors.New("INVALID_RULE_BOOK")

// LoadRuleBook reads and validates a YAML rule book.
func LoadRuleBook(path string) (*RuleBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRuleBook(data)
}

func ParseRuleBook(data []byte) (*RuleBook, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleBook, err)
	}
	if doc == nil {
		return &RuleBook{Rules: []models.RuleDefinition{}}, nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(ruleBookSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleBook, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidRuleBook, strings.Join(msgs, "; "))
	}

	var book RuleBook
	if err := yaml.Unmarshal(data, &book); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleBook, err)
	}
	if err := book.Validate(); err != nil {
		return nil, err
	}
	return &book, nil
}

// Validate checks what the schema cannot: names are present and unique.
func (b *RuleBook) Validate() error {
	seen := make(map[string]bool, len(b.Rules))
	for _, r := range b.Rules {
		if r.Name == "" {
			return fmt.Errorf("%w: rule missing name", ErrInvalidRuleBook)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate rule name %s", ErrInvalidRuleBook, r.Name)
		}
		seen[r.Name] = true
		if r.Severity != "" && !r.Severity.Valid() {
			return fmt.Errorf("%w: rule %s has invalid severity %s", ErrInvalidRuleBook, r.Name, r.Severity)
		}
	}
	return nil
}

func (b *RuleBook) Find(name string) (int, bool) {
	for i, r := range b.Rules {
		if r.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Upsert replaces the rule with the same name or appends it.
func (b *RuleBook) Upsert(rule models.RuleDefinition) {
	if i, ok := b.Find(rule.Name); ok {
		b.Rules[i] = rule
	} else {
		b.Rules = append(b.Rules, rule)
	}
	b.LastUpdated = time.Now().UTC().Format(time.RFC3339)
}

func (b *RuleBook) Remove(name string) bool {
	i, ok := b.Find(name)
	if !ok {
		return false
	}
	b.Rules = append(b.Rules[:i], b.Rules[i+1:]...)
	b.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	return true
}

// SaveRuleBook writes the rule book as YAML, creating parent directories.
func SaveRuleBook(book *RuleBook, path string) error {
	if err := book.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(book)
	if err != nil {
		return fmt.Errorf("failed to marshal rule book: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write rule book: %w", err)
	}
	return nil
}
