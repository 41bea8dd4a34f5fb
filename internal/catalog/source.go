// Package catalog reads schema, table and column listings from the data
// source and keeps them in a refreshable in-process cache.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sql-agent-workers/internal/models"
)

var ErrCatalogAccessFailed = errors.New("CATALOG_ACCESS_FAILED")

// Source is the data-source catalog the resolver and declarative rules depend on.
type Source interface {
	ListSchemas(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, schema string) ([]string, error)
	ListColumns(ctx context.Context, schema, table string) ([]string, error)
	Run(ctx context.Context, query string) ([]models.Row, error)
}

const (
	listSchemasQuery = `SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		AND schema_name NOT LIKE 'pg_temp%'
		ORDER BY schema_name`

	listTablesQuery = `SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	listColumnsQuery = `SELECT column_name FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`
)

// SQLSource implements Source over a postgres database/sql handle.
type SQLSource struct {
	db *sql.DB
}

func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

func (s *SQLSource) ListSchemas(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, listSchemasQuery)
}

func (s *SQLSource) ListTables(ctx context.Context, schema string) ([]string, error) {
	return s.listStrings(ctx, listTablesQuery, schema)
}

func (s *SQLSource) ListColumns(ctx context.Context, schema, table string) ([]string, error) {
	return s.listStrings(ctx, listColumnsQuery, schema, table)
}

// Run executes an arbitrary read query and returns every row.
func (s *SQLSource) Run(ctx context.Context, query string) ([]models.Row, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogAccessFailed, err)
	}
	defer rows.Close()

	_, data, err := ScanRows(rows, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogAccessFailed, err)
	}
	return data, nil
}

func (s *SQLSource) listStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogAccessFailed, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCatalogAccessFailed, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogAccessFailed, err)
	}
	return out, nil
}

// ScanRows reads rows into column-keyed maps. When limit > 0 at most limit
// rows are read; the caller owns closing rows.
func ScanRows(rows *sql.Rows, limit int) ([]string, []models.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get columns: %w", err)
	}

	data := make([]models.Row, 0)
	for rows.Next() {
		if limit > 0 && len(data) >= limit {
			break
		}

		values := make([]interface{}, len(cols))
		valuePtrs := make([]interface{}, len(cols))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, nil, fmt.Errorf("scan failed: %w", err)
		}

		record := make(models.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
				continue
			}
			record[col] = values[i]
		}
		data = append(data, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return cols, data, nil
}
