package discrepancy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-agent-workers/internal/models"
)

func TestRegistry_ResolvesKinds(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register(Rule{Definition: models.RuleDefinition{Name: "price_consistency"}}))
	require.NoError(t, reg.Register(NewPredicateRule("custom", func([]models.Row) []models.DiscrepancyRecord { return nil })))
	require.NoError(t, reg.Register(NewQueryRule("negative_totals", "SELECT 1", models.SeverityHigh, "")))
	require.NoError(t, reg.Register(Rule{Definition: models.RuleDefinition{Name: "stock", Check: "inventory_balance"}}))

	for name, want := range map[string]Kind{
		"price_consistency": KindNative,
		"custom":            KindPredicate,
		"negative_totals":   KindQuery,
		"stock":             KindNative,
	} {
		got, ok := reg.Kind(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
}

func TestRegistry_NativeWinsOverQuery(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Rule{Definition: models.RuleDefinition{
		Name:     "inventory_balance",
		SQLQuery: "SELECT product_id FROM inventory",
	}}))

	kind, _ := reg.Kind("inventory_balance")
	assert.Equal(t, KindNative, kind)
}

func TestRegistry_RejectsInvalidRules(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name string
		rule Rule
	}{
		{"missing name", Rule{Definition: models.RuleDefinition{SQLQuery: "SELECT 1"}}},
		{"nothing to run", Rule{Definition: models.RuleDefinition{Name: "empty"}}},
		{"unknown check", Rule{Definition: models.RuleDefinition{Name: "x", Check: "nope"}}},
		{"bad severity", Rule{Definition: models.RuleDefinition{Name: "x", SQLQuery: "SELECT 1", Severity: "critical"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, reg.Register(tt.rule), ErrInvalidRule)
		})
	}
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_LastWriteWinsKeepsOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(NewQueryRule("a", "SELECT 1", "", "first")))
	require.NoError(t, reg.Register(NewQueryRule("b", "SELECT 2", "", "")))
	require.NoError(t, reg.Register(NewQueryRule("a", "SELECT 3", "", "second")))

	defs := reg.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "a", defs[0].Name)
	assert.Equal(t, "SELECT 3", defs[0].SQLQuery)
	assert.Equal(t, "second", defs[0].Message)
	assert.Equal(t, "b", defs[1].Name)
}

func TestRegistry_SetBusinessRulesReplaces(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(NewQueryRule("old", "SELECT 1", "", "")))

	err := reg.SetBusinessRules([]Rule{
		NewQueryRule("new", "SELECT 2", "", ""),
		{Definition: models.RuleDefinition{Name: "broken"}},
	})
	require.ErrorIs(t, err, ErrInvalidRule)
	assert.Equal(t, []string{"old"}, names(reg.Definitions()))

	require.NoError(t, reg.SetBusinessRules([]Rule{
		NewQueryRule("new", "SELECT 2", "", ""),
		NewQueryRule("newer", "SELECT 3", "", ""),
	}))
	assert.Equal(t, []string{"new", "newer"}, names(reg.Definitions()))

	assert.True(t, reg.Remove("new"))
	assert.False(t, reg.Remove("new"))
	assert.Equal(t, []string{"newer"}, names(reg.Definitions()))
}

func TestRegistry_RegisterNative(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterNative("always", func(data []models.Row, rule models.RuleDefinition) []models.DiscrepancyRecord {
		return []models.DiscrepancyRecord{record(rule, "always", []int{0}, nil, nil)}
	})
	require.NoError(t, reg.Register(Rule{Definition: models.RuleDefinition{Name: "always"}}))

	kind, _ := reg.Kind("always")
	assert.Equal(t, KindNative, kind)
	assert.Equal(t, "native", kind.String())
}

func names(defs []models.RuleDefinition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Name)
	}
	return out
}
