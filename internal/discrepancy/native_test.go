package discrepancy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sql-agent-workers/internal/models"
)

func TestCheckPriceConsistency(t *testing.T) {
	data := []models.Row{
		{"category": "tools", "price": 10.0},
		{"category": "tools", "price": "12.5"},
		{"category": "tools", "price": 30},
		{"category": "toys", "price": 5.0},
		{"category": "toys", "price": nil},
		{"category": nil, "price": 1000.0},
	}
	rule := models.RuleDefinition{Name: "price_consistency", Type: "price_inconsistency", Severity: models.SeverityMedium}

	records := checkPriceConsistency(data, rule)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "price_inconsistency", rec.Type)
	assert.Equal(t, models.SeverityMedium, rec.Severity)
	assert.Equal(t, []int{0, 2}, rec.RowIndices)
	assert.Equal(t, []string{"price", "category"}, rec.Fields)
	assert.Equal(t, "price_consistency", rec.RuleName)
	assert.Equal(t, 30.0, rec.Details["price"])
}

func TestCheckPriceConsistency_Params(t *testing.T) {
	data := []models.Row{
		{"SUPPLIER": "acme", "COST": 10},
		{"SUPPLIER": "acme", "COST": 12},
	}
	rule := models.RuleDefinition{
		Name:   "price_consistency",
		Params: map[string]interface{}{"group_by": "supplier", "price_field": "cost", "threshold": 0.1},
	}

	records := checkPriceConsistency(data, rule)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"COST", "SUPPLIER"}, records[0].Fields)
	assert.Equal(t, models.TypeBusinessRule, records[0].Type)
	assert.Equal(t, models.SeverityMedium, records[0].Severity)
}

func TestCheckInventoryBalance(t *testing.T) {
	data := []models.Row{
		{"product_id": 1, "transaction_type": "IN", "quantity": 10},
		{"product_id": 2, "transaction_type": "IN", "quantity": 5},
		{"product_id": 1, "transaction_type": "out", "quantity": 10},
		{"product_id": 2, "transaction_type": "OUT", "quantity": "3"},
		{"product_id": 2, "transaction_type": "ADJUST", "quantity": 100},
	}
	rule := models.RuleDefinition{Name: "inventory_balance", Severity: models.SeverityHigh, Message: "Inventory does not balance"}

	records := checkInventoryBalance(data, rule)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, []int{1, 3}, rec.RowIndices)
	assert.Equal(t, "Inventory does not balance", rec.Message)
	assert.Equal(t, models.SeverityHigh, rec.Severity)
	assert.Equal(t, "2", rec.Details["product"])
	assert.Equal(t, 2.0, rec.Details["balance"])
}
