package discrepancy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"sql-agent-workers/internal/models"
)

var (
	nullExempt      = map[string]struct{}{"id": {}, "created_at": {}, "updated_at": {}, "notes": {}, "description": {}}
	duplicateFields = []string{"id", "code", "key"}
)

// columnsOf returns the result's columns, or the sorted union of row keys
// when the result carries none.
func columnsOf(result *models.QueryResult) []string {
	if len(result.Columns) > 0 {
		return result.Columns
	}
	set := make(map[string]struct{})
	for _, row := range result.Data {
		for k := range row {
			set[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func checkNulls(data []models.Row, columns []string) []models.DiscrepancyRecord {
	var out []models.DiscrepancyRecord
	for idx, row := range data {
		for _, field := range columns {
			if _, exempt := nullExempt[strings.ToLower(field)]; exempt {
				continue
			}
			if v, ok := row[field]; ok && v != nil {
				continue
			}
			out = append(out, models.DiscrepancyRecord{
				Type:       models.TypeNullValue,
				Severity:   models.SeverityLow,
				Message:    fmt.Sprintf("Null value detected in field '%s' at row %d", field, idx+1),
				RowIndices: []int{idx},
				Fields:     []string{field},
			})
		}
	}
	return out
}

func checkDuplicates(data []models.Row, columns []string) []models.DiscrepancyRecord {
	var out []models.DiscrepancyRecord
	for _, candidate := range duplicateFields {
		field, ok := matchColumn(columns, candidate)
		if !ok {
			continue
		}

		seen := make(map[string]int)
		for idx, row := range data {
			v := row[field]
			if v == nil {
				continue
			}
			key := duplicateKey(v)
			first, dup := seen[key]
			if !dup {
				seen[key] = idx
				continue
			}
			out = append(out, models.DiscrepancyRecord{
				Type:       models.TypeDuplicateValue,
				Severity:   models.SeverityHigh,
				Message:    fmt.Sprintf("Duplicate value '%v' in field '%s' at rows %d and %d", v, field, first+1, idx+1),
				RowIndices: []int{first, idx},
				Fields:     []string{field},
				Details:    map[string]interface{}{"value": v},
			})
		}
	}
	return out
}

func matchColumn(columns []string, name string) (string, bool) {
	for _, c := range columns {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}

// duplicateKey folds numeric types together so 1 and 1.0 collide. Strings
// keep their own namespace.
func duplicateKey(v interface{}) string {
	switch v.(type) {
	case string, []byte:
		return fmt.Sprintf("%T:%v", v, v)
	}
	if f, ok := toFloat(v); ok {
		return "num:" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	return fmt.Sprintf("%T:%v", v, v)
}
