package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-agent-workers/internal/models"
)

const sampleBook = `
version: "1"
rules:
  - name: price_consistency
    severity: medium
    params:
      group_by: category
      threshold: 0.5
  - name: negative_order_totals
    type: invalid_total
    severity: high
    message: Order has a negative total
    sql_query: SELECT order_id FROM sales.orders WHERE total < 0
`

func TestParseRuleBook(t *testing.T) {
	book, err := ParseRuleBook([]byte(sampleBook))
	require.NoError(t, err)
	require.Len(t, book.Rules, 2)

	assert.Equal(t, "price_consistency", book.Rules[0].Name)
	assert.Equal(t, 0.5, book.Rules[0].Params["threshold"])
	assert.Equal(t, models.SeverityHigh, book.Rules[1].Severity)
	assert.Contains(t, book.Rules[1].SQLQuery, "total < 0")
}

func TestParseRuleBook_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", "rules: [unclosed"},
		{"missing rules", "version: \"1\"\n"},
		{"bad severity", "rules:\n  - name: a\n    severity: critical\n"},
		{"unknown field", "rules:\n  - name: a\n    query: SELECT 1\n"},
		{"missing name", "rules:\n  - sql_query: SELECT 1\n"},
		{"duplicate", "rules:\n  - name: a\n    sql_query: SELECT 1\n  - name: a\n    sql_query: SELECT 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRuleBook([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidRuleBook)
		})
	}
}

func TestParseRuleBook_Empty(t *testing.T) {
	book, err := ParseRuleBook(nil)
	require.NoError(t, err)
	assert.Empty(t, book.Rules)
}

func TestRuleBook_SaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rules.yaml")

	book := &RuleBook{Version: "1"}
	book.Upsert(models.RuleDefinition{Name: "a", SQLQuery: "SELECT 1"})
	book.Upsert(models.RuleDefinition{Name: "b", Check: "inventory_balance", Severity: models.SeverityHigh})
	book.Upsert(models.RuleDefinition{Name: "a", SQLQuery: "SELECT 2"})
	require.NoError(t, SaveRuleBook(book, path))

	loaded, err := LoadRuleBook(path)
	require.NoError(t, err)
	require.Len(t, loaded.Rules, 2)
	assert.Equal(t, "SELECT 2", loaded.Rules[0].SQLQuery)
	assert.Equal(t, "inventory_balance", loaded.Rules[1].Check)
	assert.NotEmpty(t, loaded.LastUpdated)

	assert.True(t, loaded.Remove("a"))
	assert.False(t, loaded.Remove("a"))
	_, found := loaded.Find("b")
	assert.True(t, found)
}

func TestLoadRuleBook_ShippedConfig(t *testing.T) {
	path := filepath.Join("..", "..", "configs", "rules.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skip("configs/rules.yaml not available")
	}
	book, err := LoadRuleBook(path)
	require.NoError(t, err)
	assert.NotEmpty(t, book.Rules)
}
