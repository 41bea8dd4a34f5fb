package discrepancy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"sql-agent-workers/internal/archive"
	"sql-agent-workers/internal/catalog"
	"sql-agent-workers/internal/common/logger"
	"sql-agent-workers/internal/models"
)

type fakeAnalyzer struct {
	records []models.DiscrepancyRecord
	err     error
	calls   int
	rules   []models.RuleDefinition
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, sample []models.Row, rules []models.RuleDefinition) ([]models.DiscrepancyRecord, error) {
	f.calls++
	f.rules = rules
	return f.records, f.err
}

type failingSource struct{ catalog.Source }

func (failingSource) Run(ctx context.Context, query string) ([]models.Row, error) {
	return nil, catalog.ErrCatalogAccessFailed
}

func resultOf(rows ...models.Row) *models.QueryResult {
	return &models.QueryResult{Data: rows, RowCount: len(rows)}
}

func TestEngine_DuplicateCheck(t *testing.T) {
	engine := NewEngine(nil, nil, logger.NewTestLogger(t))

	records := engine.Check(context.Background(), models.SchemaSelection{}, resultOf(
		models.Row{"id": 1}, models.Row{"id": 2}, models.Row{"id": 1},
	))
	require.Len(t, records, 1)
	assert.Equal(t, models.TypeDuplicateValue, records[0].Type)
	assert.Equal(t, models.SeverityHigh, records[0].Severity)
	assert.Equal(t, []int{0, 2}, records[0].RowIndices)
	assert.Equal(t, []string{"id"}, records[0].Fields)
	assert.Equal(t, 1, records[0].Details["value"])
}

func TestEngine_NullCheck(t *testing.T) {
	engine := NewEngine(nil, nil, logger.NewTestLogger(t))

	records := engine.Check(context.Background(), models.SchemaSelection{}, resultOf(
		models.Row{"id": 1, "price": nil, "Notes": nil},
	))
	require.Len(t, records, 1)
	assert.Equal(t, models.TypeNullValue, records[0].Type)
	assert.Equal(t, models.SeverityLow, records[0].Severity)
	assert.Equal(t, []int{0}, records[0].RowIndices)
	assert.Equal(t, []string{"price"}, records[0].Fields)
	assert.Equal(t, "Null value detected in field 'price' at row 1", records[0].Message)
}

func TestEngine_NullCheckUsesColumns(t *testing.T) {
	engine := NewEngine(nil, nil, logger.NewTestLogger(t))
	result := &models.QueryResult{
		Columns: []string{"name", "email"},
		Data:    []models.Row{{"name": "Ada"}},
	}

	records := engine.Check(context.Background(), models.SchemaSelection{}, result)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"email"}, records[0].Fields)
}

func TestEngine_EmptyDataSkipsEverything(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	reg := NewRegistry()
	require.NoError(t, reg.Register(NewPredicateRule("p", func([]models.Row) []models.DiscrepancyRecord {
		t.Fatal("predicate must not run on empty data")
		return nil
	})))
	engine := NewEngine(reg, failingSource{}, logger.NewTestLogger(t), WithAnalyzer(analyzer))

	assert.Empty(t, engine.Check(context.Background(), models.SchemaSelection{}, resultOf()))
	assert.Empty(t, engine.Check(context.Background(), models.SchemaSelection{}, nil))
	assert.Equal(t, 0, analyzer.calls)
}

func TestEngine_AnalyzerNeedsRules(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	engine := NewEngine(NewRegistry(), nil, logger.NewTestLogger(t), WithAnalyzer(analyzer))

	engine.Check(context.Background(), models.SchemaSelection{}, resultOf(models.Row{"name": "x"}))
	assert.Equal(t, 0, analyzer.calls)
}

func TestEngine_OrderAndArchive(t *testing.T) {
	ctx := context.Background()
	analyzer := &fakeAnalyzer{records: []models.DiscrepancyRecord{{
		Type: "outlier", Severity: models.SeverityMedium, Message: "odd", RowIndices: []int{0}, Fields: []string{"total"},
	}}}

	reg := NewRegistry()
	require.NoError(t, reg.Register(NewPredicateRule("big_total", func(data []models.Row) []models.DiscrepancyRecord {
		return []models.DiscrepancyRecord{{Type: "big", Severity: models.SeverityLow, Message: "big", RowIndices: []int{1}}}
	})))

	store := archive.NewMemoryStore(archive.MemoryOptions{TTL: time.Hour}, logger.NewTestLogger(t))
	engine := NewEngine(reg, nil, logger.NewTestLogger(t), WithAnalyzer(analyzer), WithArchive(store))

	records := engine.Check(ctx, models.SchemaSelection{SelectedSchema: "sales"}, resultOf(
		models.Row{"id": 1, "total": 10},
		models.Row{"id": 1, "total": nil},
	))

	require.Len(t, records, 4)
	assert.Equal(t, "outlier", records[0].Type)
	assert.Equal(t, models.TypeNullValue, records[1].Type)
	assert.Equal(t, models.TypeDuplicateValue, records[2].Type)
	assert.Equal(t, "big", records[3].Type)
	assert.Equal(t, []string{"big_total"}, names(analyzer.rules))

	entries, err := store.Recent(ctx, archive.CategoryDiscrepancies, 0, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	var archived []models.DiscrepancyRecord
	require.NoError(t, entries[0].Decode(&archived))
	assert.Len(t, archived, 4)
	assert.Equal(t, "sales", entries[0].Metadata["schema"])
}

func TestEngine_AnalyzerFailureIsDropped(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(NewPredicateRule("none", func([]models.Row) []models.DiscrepancyRecord { return nil })))
	engine := NewEngine(reg, nil, logger.NewTestLogger(t), WithAnalyzer(&fakeAnalyzer{err: errors.New("LLM_TIMEOUT")}))

	records := engine.Check(context.Background(), models.SchemaSelection{}, resultOf(models.Row{"name": "x"}))
	assert.Empty(t, records)
}

func TestEngine_QueryRule(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT order_id, total FROM sales.orders WHERE total < 0").
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "total"}).AddRow(7, []byte("-3.50")))

	reg := NewRegistry()
	require.NoError(t, reg.Register(NewQueryRule("negative_order_totals",
		"SELECT order_id, total FROM sales.orders WHERE total < 0", "", "")))

	engine := NewEngine(reg, catalog.NewSQLSource(db), logger.NewTestLogger(t), WithTimeouts(0, time.Second))
	records := engine.Check(context.Background(), models.SchemaSelection{}, resultOf(models.Row{"name": "x"}))

	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, models.TypeBusinessRule, rec.Type)
	assert.Equal(t, models.SeverityMedium, rec.Severity)
	assert.Equal(t, "Business rule 'negative_order_totals' violated", rec.Message)
	assert.Equal(t, "negative_order_totals", rec.RuleName)
	assert.Equal(t, "-3.50", rec.Details["total"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_QueryRuleFailureDoesNotStopOtherRules(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(NewQueryRule("broken", "SELECT nope", "", "")))
	require.NoError(t, reg.Register(NewPredicateRule("works", func([]models.Row) []models.DiscrepancyRecord {
		return []models.DiscrepancyRecord{{Type: "custom", Severity: models.SeverityLow, Message: "ok"}}
	})))

	engine := NewEngine(reg, failingSource{}, logger.NewTestLogger(t))
	records := engine.Check(context.Background(), models.SchemaSelection{}, resultOf(models.Row{"name": "x"}))

	require.Len(t, records, 1)
	assert.Equal(t, "custom", records[0].Type)
}

func TestEngine_DropsRuleRecordsOutsideBatch(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	reg := NewRegistry()
	require.NoError(t, reg.Register(NewPredicateRule("stray", func([]models.Row) []models.DiscrepancyRecord {
		return []models.DiscrepancyRecord{
			{Type: "past_end", Severity: models.SeverityLow, Message: "x", RowIndices: []int{5}},
			{Type: "negative", Severity: models.SeverityLow, Message: "x", RowIndices: []int{-1}},
			{Type: "mixed", Severity: models.SeverityLow, Message: "x", RowIndices: []int{0, 5, -1}},
			{Type: "valid", Severity: models.SeverityLow, Message: "x", RowIndices: []int{0}},
			{Type: "no_rows", Severity: models.SeverityLow, Message: "x"},
		}
	})))
	engine := NewEngine(reg, nil, logger.NewZapAdapter(zap.New(core)))

	records := engine.Check(context.Background(), models.SchemaSelection{}, resultOf(models.Row{"name": "x"}))

	require.Len(t, records, 2)
	assert.Equal(t, "valid", records[0].Type)
	assert.Equal(t, "no_rows", records[1].Type)
	for _, r := range records {
		for _, idx := range r.RowIndices {
			assert.True(t, idx >= 0 && idx < 1, "row index %d outside batch", idx)
		}
	}

	dropped := logs.FilterMessage("dropping rule record with out-of-range row index").All()
	require.Len(t, dropped, 3)
	assert.Equal(t, "stray", dropped[0].ContextMap()["ruleName"])
	assert.EqualValues(t, 5, dropped[0].ContextMap()["rowIndex"])
}

func TestEngine_NativeRuleRecordsStayInBatch(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterNative("always_far", func(data []models.Row, rule models.RuleDefinition) []models.DiscrepancyRecord {
		return []models.DiscrepancyRecord{{Type: "far", Severity: models.SeverityHigh, Message: "x", RowIndices: []int{len(data)}}}
	})
	require.NoError(t, reg.Register(Rule{Definition: models.RuleDefinition{Name: "always_far", Severity: models.SeverityHigh}}))
	engine := NewEngine(reg, nil, logger.NewTestLogger(t))

	records := engine.Check(context.Background(), models.SchemaSelection{}, resultOf(models.Row{"name": "a"}, models.Row{"name": "b"}))
	assert.Empty(t, records)
}

func TestEngine_DuplicateCheckAcrossNumericTypes(t *testing.T) {
	engine := NewEngine(nil, nil, logger.NewTestLogger(t))

	records := engine.Check(context.Background(), models.SchemaSelection{}, resultOf(
		models.Row{"id": int64(1)}, models.Row{"id": float64(1)}, models.Row{"id": "1"},
	))

	require.Len(t, records, 1)
	assert.Equal(t, []int{0, 1}, records[0].RowIndices)
	assert.Equal(t, float64(1), records[0].Details["value"])
}
