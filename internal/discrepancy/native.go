package discrepancy

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"sql-agent-workers/internal/models"
)

// checkPriceConsistency flags rows whose price strays from the first priced
// row of the same group by more than the threshold ratio.
func checkPriceConsistency(data []models.Row, rule models.RuleDefinition) []models.DiscrepancyRecord {
	groupBy := stringParam(rule.Params, "group_by", "category")
	priceField := stringParam(rule.Params, "price_field", "price")
	threshold := floatParam(rule.Params, "threshold", 0.5)

	type reference struct {
		row   int
		price float64
	}
	refs := make(map[string]reference)

	var out []models.DiscrepancyRecord
	for idx, row := range data {
		groupVal, groupKey, ok := lookup(row, groupBy)
		if !ok || groupVal == nil {
			continue
		}
		priceVal, priceKey, ok := lookup(row, priceField)
		if !ok {
			continue
		}
		price, ok := toFloat(priceVal)
		if !ok {
			continue
		}

		group := fmt.Sprint(groupVal)
		ref, seen := refs[group]
		if !seen {
			refs[group] = reference{row: idx, price: price}
			continue
		}
		if ref.price == 0 {
			continue
		}
		if math.Abs(price-ref.price)/math.Abs(ref.price) <= threshold {
			continue
		}

		out = append(out, record(rule,
			fmt.Sprintf("Price %v in %s '%s' differs from %v at row %d", price, groupKey, group, ref.price, ref.row+1),
			[]int{ref.row, idx},
			[]string{priceKey, groupKey},
			map[string]interface{}{
				"group":           group,
				"reference_price": ref.price,
				"price":           price,
			},
		))
	}
	return out
}

// checkInventoryBalance flags products whose IN and OUT quantities do not
// cancel out.
func checkInventoryBalance(data []models.Row, rule models.RuleDefinition) []models.DiscrepancyRecord {
	productField := stringParam(rule.Params, "product_field", "product_id")
	quantityField := stringParam(rule.Params, "quantity_field", "quantity")
	kindField := stringParam(rule.Params, "kind_field", "transaction_type")

	type balance struct {
		total float64
		rows  []int
	}
	balances := make(map[string]*balance)
	var products []string
	quantityKey := quantityField

	for idx, row := range data {
		productVal, _, ok := lookup(row, productField)
		if !ok || productVal == nil {
			continue
		}
		qtyVal, key, ok := lookup(row, quantityField)
		if !ok {
			continue
		}
		qty, ok := toFloat(qtyVal)
		if !ok {
			continue
		}
		kindVal, _, _ := lookup(row, kindField)

		var sign float64
		switch strings.ToUpper(strings.TrimSpace(fmt.Sprint(kindVal))) {
		case "IN":
			sign = 1
		case "OUT":
			sign = -1
		default:
			continue
		}
		quantityKey = key

		product := fmt.Sprint(productVal)
		b, ok := balances[product]
		if !ok {
			b = &balance{}
			balances[product] = b
			products = append(products, product)
		}
		b.total += sign * qty
		b.rows = append(b.rows, idx)
	}

	var out []models.DiscrepancyRecord
	for _, product := range products {
		b := balances[product]
		if math.Abs(b.total) < 1e-9 {
			continue
		}
		out = append(out, record(rule,
			fmt.Sprintf("Inventory for product '%s' is off by %v", product, b.total),
			b.rows,
			[]string{quantityKey},
			map[string]interface{}{
				"product": product,
				"balance": b.total,
			},
		))
	}
	return out
}

// lookup finds a column case-insensitively and returns its actual name.
func lookup(row models.Row, field string) (interface{}, string, bool) {
	if v, ok := row[field]; ok {
		return v, field, true
	}
	for k, v := range row {
		if strings.EqualFold(k, field) {
			return v, k, true
		}
	}
	return nil, field, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringParam(params map[string]interface{}, key, fallback string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func floatParam(params map[string]interface{}, key string, fallback float64) float64 {
	if v, ok := params[key]; ok {
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return fallback
}
