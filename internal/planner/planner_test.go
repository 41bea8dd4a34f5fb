package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-agent-workers/internal/common/logger"
	"sql-agent-workers/internal/models"
)

func TestBuild_Classification(t *testing.T) {
	b := NewBuilder(logger.NewTestLogger(t))

	tests := []struct {
		request    string
		wantStages int
	}{
		{"show me the customers table", 2},
		{"list all orders from last week", 2},
		{"check for discrepancies in orders", 3},
		{"VALIDATE the invoice totals", 3},
		{"are there any Mismatches between stock and sales", 3},
		{"this looks inconsistent", 3},
		{"find wrong prices", 3},
		{"why are there ERRORS in shipments", 3},
		{"", 2},
	}
	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			plan := b.Build(tt.request)
			require.Len(t, plan.Steps, tt.wantStages)
			assert.Equal(t, tt.request, plan.Query)
			assert.Equal(t, models.AgentSchema, plan.Steps[0].Agent)
			assert.Equal(t, models.AgentQuery, plan.Steps[1].Agent)
			if tt.wantStages == 3 {
				assert.Equal(t, models.AgentDiscrepancy, plan.Steps[2].Agent)
			}
		})
	}
}

func TestBuild_Hints(t *testing.T) {
	b := NewBuilder(logger.NewNoOpLogger())

	tests := []struct {
		name       string
		request    string
		wantTables interface{}
		wantSchema interface{}
	}{
		{"table hint lower-cased", "Show the Table CUSTOMERS please", []string{"customers"}, nil},
		{"plural form", "join tables orders and items", []string{"orders"}, nil},
		{"schema hint", "count rows in schema Sales", nil, "sales"},
		{"database hint", "what is in database hr", nil, "hr"},
		{"both", "in schema sales show table orders", []string{"orders"}, "sales"},
		{"no hints", "how many customers are there", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := b.Build(tt.request)
			params := plan.Steps[0].Parameters
			assert.Equal(t, tt.wantTables, params[models.ParamSuggestedTables])
			assert.Equal(t, tt.wantSchema, params[models.ParamSuggestedSchema])
			assert.Empty(t, plan.Steps[1].Parameters)
		})
	}
}

func TestBuild_TemplatesAreNotShared(t *testing.T) {
	b := NewBuilder(nil)

	first := b.Build("show table orders")
	first.Steps[0].Parameters[models.ParamSuggestedTables].([]string)[0] = "mutated"
	first.Steps[0].Description = "mutated"

	second := b.Build("show me everything")
	assert.Nil(t, second.Steps[0].Parameters)
	assert.Equal(t, "Determine which schema and tables to use", second.Steps[0].Description)

	third := b.Build("show table orders")
	assert.Equal(t, []string{"orders"}, third.Steps[0].Parameters[models.ParamSuggestedTables])
}

func TestNeedsDiscrepancyCheck(t *testing.T) {
	assert.True(t, NeedsDiscrepancyCheck("Please VERIFY this"))
	assert.True(t, NeedsDiscrepancyCheck("spellcheck"))
	assert.False(t, NeedsDiscrepancyCheck("sum revenue by region"))
}
