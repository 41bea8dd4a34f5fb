package discrepancy

import (
	"errors"
	"fmt"

	"sql-agent-workers/internal/models"
)

var (
	ErrRuleExecutionFailed = errors.New("RULE_EXECUTION_FAILED")
	ErrInvalidRule         = errors.New("INVALID_RULE")
)

const (
	defaultRuleType     = models.TypeBusinessRule
	defaultRuleSeverity = models.SeverityMedium
)

// Kind is how a rule is evaluated. It is resolved when the rule is
// registered.
type Kind int

const (
	KindNative Kind = iota + 1
	KindPredicate
	KindQuery
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindPredicate:
		return "predicate"
	case KindQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Predicate is a caller-supplied check over the result rows.
type Predicate func(data []models.Row) []models.DiscrepancyRecord

// NativeCheck is a built-in check. It receives the rule definition so it can
// read its params and fill in type, severity and message.
type NativeCheck func(data []models.Row, rule models.RuleDefinition) []models.DiscrepancyRecord

// Rule is a named business rule. Exactly one way of evaluating it is chosen,
// in this order: a native check registered under Definition.Check (or the
// rule name), then Predicate, then Definition.SQLQuery.
type Rule struct {
	Definition models.RuleDefinition
	Predicate  Predicate
}

// NewQueryRule builds a declarative rule whose result rows are violations.
func NewQueryRule(name, query string, severity models.Severity, message string) Rule {
	return Rule{Definition: models.RuleDefinition{
		Name:     name,
		Severity: severity,
		Message:  message,
		SQLQuery: query,
	}}
}

func NewPredicateRule(name string, predicate Predicate) Rule {
	return Rule{Definition: models.RuleDefinition{Name: name}, Predicate: predicate}
}

// boundRule is a rule with its evaluation kind resolved.
type boundRule struct {
	Rule
	kind   Kind
	native NativeCheck
}

// nativeKey is the name a native check is looked up by.
func (r Rule) nativeKey() string {
	if r.Definition.Check != "" {
		return r.Definition.Check
	}
	return r.Definition.Name
}

func bind(rule Rule, natives map[string]NativeCheck) (boundRule, error) {
	def := rule.Definition
	if def.Name == "" {
		return boundRule{}, fmt.Errorf("%w: rule name is required", ErrInvalidRule)
	}
	if def.Severity != "" && !def.Severity.Valid() {
		return boundRule{}, fmt.Errorf("%w: rule %q has unknown severity %q", ErrInvalidRule, def.Name, def.Severity)
	}

	if check, ok := natives[rule.nativeKey()]; ok {
		return boundRule{Rule: rule, kind: KindNative, native: check}, nil
	}
	if def.Check != "" {
		return boundRule{}, fmt.Errorf("%w: rule %q names unknown check %q", ErrInvalidRule, def.Name, def.Check)
	}
	if rule.Predicate != nil {
		return boundRule{Rule: rule, kind: KindPredicate}, nil
	}
	if def.SQLQuery != "" {
		return boundRule{Rule: rule, kind: KindQuery}, nil
	}
	return boundRule{}, fmt.Errorf("%w: rule %q has no check, predicate or query", ErrInvalidRule, def.Name)
}

// record fills the rule-level fields of a violation.
func record(def models.RuleDefinition, message string, rows []int, fields []string, details map[string]interface{}) models.DiscrepancyRecord {
	rec := models.DiscrepancyRecord{
		Type:       def.Type,
		Severity:   def.Severity,
		Message:    def.Message,
		RowIndices: rows,
		Fields:     fields,
		RuleName:   def.Name,
		Details:    details,
	}
	if rec.Type == "" {
		rec.Type = defaultRuleType
	}
	if rec.Severity == "" {
		rec.Severity = defaultRuleSeverity
	}
	if rec.Message == "" {
		rec.Message = message
	}
	if rec.RowIndices == nil {
		rec.RowIndices = []int{}
	}
	if rec.Fields == nil {
		rec.Fields = []string{}
	}
	return rec
}

// FromDefinitions wraps rule-book definitions as rules.
func FromDefinitions(defs []models.RuleDefinition) []Rule {
	out := make([]Rule, 0, len(defs))
	for _, d := range defs {
		out = append(out, Rule{Definition: d})
	}
	return out
}
